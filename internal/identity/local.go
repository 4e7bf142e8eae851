package identity

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pansan0/saleidia/internal/apperr"
	"github.com/pansan0/saleidia/internal/kv"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 6

type credential struct {
	UserID       string         `json:"userId"`
	Email        string         `json:"email"`
	PasswordHash string         `json:"passwordHash"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// LocalProvider keeps bcrypt credentials in the KV store and issues HS256 JWTs.
type LocalProvider struct {
	Store  kv.Store
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func NewLocalProvider(store kv.Store, secret string, ttl time.Duration) *LocalProvider {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &LocalProvider{Store: store, Secret: []byte(secret), TTL: ttl, Now: time.Now}
}

func credentialKey(email string) string { return kv.Key("auth_user", normalizeEmail(email)) }

func (p *LocalProvider) CreateUser(ctx context.Context, email, password string, metadata map[string]any) (AuthUser, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return AuthUser{}, errors.Wrap(apperr.ErrValidation, "email and password are required")
	}
	if len(password) < minPasswordLen {
		return AuthUser{}, errors.Wrapf(apperr.ErrAuthProvider, "password should be at least %d characters", minPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return AuthUser{}, errors.Wrap(err, "hash password")
	}

	cred := credential{
		UserID:       uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Metadata:     metadata,
		CreatedAt:    p.Now().UTC(),
	}
	created, err := kv.SetJSONIfAbsent(ctx, p.Store, credentialKey(email), cred)
	if err != nil {
		return AuthUser{}, err
	}
	if !created {
		return AuthUser{}, errors.Wrap(apperr.ErrAuthProvider, "a user with this email address has already been registered")
	}

	return AuthUser{ID: cred.UserID, Email: email, Metadata: metadata, CreatedAt: cred.CreatedAt}, nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	var cred credential
	ok, err := kv.GetJSON(ctx, p.Store, credentialKey(email), &cred)
	if err != nil {
		return Session{}, err
	}
	if !ok || bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return Session{}, errors.Wrap(apperr.ErrUnauthorized, "wrong email/password")
	}

	token, exp, err := p.Issue(cred.UserID)
	if err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   exp,
		User:        AuthUser{ID: cred.UserID, Email: cred.Email, Metadata: cred.Metadata, CreatedAt: cred.CreatedAt},
	}, nil
}

// Issue signs an access token for userID.
func (p *LocalProvider) Issue(userID string) (string, time.Time, error) {
	now := p.Now()
	exp := now.Add(p.TTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.Secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign token")
	}
	return token, exp, nil
}

func (p *LocalProvider) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", errors.Wrap(apperr.ErrUnauthorized, "missing token")
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return p.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.Now),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", errors.Wrap(apperr.ErrUnauthorized, "invalid token")
	}
	return claims.Subject, nil
}
