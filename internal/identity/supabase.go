package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pansan0/saleidia/internal/apperr"
	"github.com/pkg/errors"
)

// SupabaseProvider talks to a Supabase-compatible GoTrue auth API.
type SupabaseProvider struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

type SupabaseConfig struct {
	URL        string
	ServiceKey string
	HTTPClient *http.Client
}

func NewSupabaseProvider(cfg SupabaseConfig) (*SupabaseProvider, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.ServiceKey == "" {
		return nil, fmt.Errorf("service key is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &SupabaseProvider{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		serviceKey: cfg.ServiceKey,
		httpClient: httpClient,
	}, nil
}

type gotrueError struct {
	Message          string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e gotrueError) text(status int) string {
	for _, s := range []string{e.Message, e.ErrorDescription, e.Error} {
		if s != "" {
			return s
		}
	}
	return fmt.Sprintf("HTTP %d", status)
}

func (p *SupabaseProvider) do(ctx context.Context, method, path, bearer string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, errors.Wrap(err, "encode request")
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, rd)
	if err != nil {
		return 0, errors.Wrap(err, "build request")
	}
	req.Header.Set("apikey", p.serviceKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrapf(apperr.ErrAuthProvider, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, errors.Wrap(err, "read response")
	}
	if resp.StatusCode >= 300 {
		var ge gotrueError
		_ = json.Unmarshal(raw, &ge)
		return resp.StatusCode, errors.New(ge.text(resp.StatusCode))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, errors.Wrap(err, "decode response")
		}
	}
	return resp.StatusCode, nil
}

func (p *SupabaseProvider) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", errors.Wrap(apperr.ErrUnauthorized, "missing token")
	}
	var u AuthUser
	if _, err := p.do(ctx, http.MethodGet, "/auth/v1/user", token, nil, &u); err != nil {
		return "", errors.Wrapf(apperr.ErrUnauthorized, "verify token: %v", err)
	}
	if u.ID == "" {
		return "", errors.Wrap(apperr.ErrUnauthorized, "token has no subject")
	}
	return u.ID, nil
}

func (p *SupabaseProvider) CreateUser(ctx context.Context, email, password string, metadata map[string]any) (AuthUser, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return AuthUser{}, errors.Wrap(apperr.ErrValidation, "email and password are required")
	}
	body := map[string]any{
		"email":         email,
		"password":      password,
		"user_metadata": metadata,
		// no mail server is configured, so accounts are confirmed on creation
		"email_confirm": true,
	}
	var u AuthUser
	if _, err := p.do(ctx, http.MethodPost, "/auth/v1/admin/users", p.serviceKey, body, &u); err != nil {
		if errors.Is(err, apperr.ErrAuthProvider) {
			return AuthUser{}, err
		}
		return AuthUser{}, errors.Wrap(apperr.ErrAuthProvider, err.Error())
	}
	return u, nil
}

func (p *SupabaseProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	body := map[string]string{"email": normalizeEmail(email), "password": password}
	var resp struct {
		AccessToken string   `json:"access_token"`
		TokenType   string   `json:"token_type"`
		ExpiresIn   int64    `json:"expires_in"`
		User        AuthUser `json:"user"`
	}
	status, err := p.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", p.serviceKey, body, &resp)
	if err != nil {
		if status == http.StatusBadRequest || status == http.StatusUnauthorized {
			return Session{}, errors.Wrap(apperr.ErrUnauthorized, err.Error())
		}
		return Session{}, errors.Wrap(apperr.ErrAuthProvider, err.Error())
	}
	return Session{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
		ExpiresAt:   time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		User:        resp.User,
	}, nil
}
