// Package identity verifies bearer tokens and creates accounts. Two providers
// exist: a local one that signs its own JWTs and a Supabase-compatible remote one.
package identity

import (
	"context"
	"strings"
	"time"
)

type AuthUser struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	Metadata  map[string]any `json:"user_metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        AuthUser  `json:"user"`
}

// Verifier resolves a bearer token to the principal's user id.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type Provider interface {
	Verifier
	CreateUser(ctx context.Context, email, password string, metadata map[string]any) (AuthUser, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
