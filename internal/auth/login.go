package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/org/dealership/internal/storage"
	"github.com/org/dealership/pkg/models"
)

// ErrAuthenticationFailed is returned for an unknown email or a wrong secret.
// Callers cannot tell the two apart.
var ErrAuthenticationFailed = errors.New("authentication failed")

// PrincipalFinder looks up principals by login email.
type PrincipalFinder interface {
	FindPrincipalByEmail(ctx context.Context, email string) (*models.Principal, error)
}

// Authenticator exchanges credentials for a session token.
type Authenticator struct {
	store     PrincipalFinder
	tokens    *TokenService
	ttl       time.Duration
	dummyHash string
}

// NewAuthenticator returns an Authenticator. cost should match the cost of
// stored hashes so that unknown emails take as long as wrong secrets.
func NewAuthenticator(store PrincipalFinder, tokens *TokenService, ttl time.Duration, cost int) (*Authenticator, error) {
	dummy, err := HashPassword("dealership-timing-equalizer", cost)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Authenticator{store: store, tokens: tokens, ttl: ttl, dummyHash: dummy}, nil
}

// TTL returns the lifetime of issued sessions.
func (a *Authenticator) TTL() time.Duration { return a.ttl }

// Login verifies email and secret and issues a session token.
func (a *Authenticator) Login(ctx context.Context, email, secret string) (string, *models.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || secret == "" {
		VerifyPassword(secret, a.dummyHash)
		return "", nil, ErrAuthenticationFailed
	}

	p, err := a.store.FindPrincipalByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			VerifyPassword(secret, a.dummyHash)
			return "", nil, ErrAuthenticationFailed
		}
		return "", nil, fmt.Errorf("looking up principal: %w", err)
	}
	if !VerifyPassword(secret, p.PasswordHash) {
		return "", nil, ErrAuthenticationFailed
	}
	return a.tokens.Issue(p.Claims(), a.ttl)
}
