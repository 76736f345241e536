// Package auth verifies credentials, issues and verifies session tokens, and
// decides whether a request may reach a protected route.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/org/dealership/internal/clock"
	"github.com/org/dealership/pkg/models"
)

// DefaultTokenTTL is the lifetime of a session token. Tokens are never refreshed.
const DefaultTokenTTL = 24 * time.Hour

const tokenIssuer = "dealership"

var (
	ErrSigningKeyMissing = errors.New("token signing secret is not configured")
	ErrTokenMissing      = errors.New("no session token")
	ErrTokenMalformed    = errors.New("session token is malformed or forged")
	ErrTokenExpired      = errors.New("session token has expired")
)

type sessionClaims struct {
	PrincipalID int64  `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256-signed session tokens. It keeps no
// per-token state.
type TokenService struct {
	secret []byte
	clock  clock.Clock
}

// NewTokenService returns a TokenService signing with secret.
func NewTokenService(secret []byte, clk clock.Clock) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, ErrSigningKeyMissing
	}
	if clk == nil {
		clk = clock.System()
	}
	return &TokenService{secret: append([]byte(nil), secret...), clock: clk}, nil
}

// Issue signs a token for claims that expires ttl from now.
func (s *TokenService) Issue(claims models.Claims, ttl time.Duration) (string, *models.Session, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := s.clock.Now().Truncate(time.Second)
	sc := sessionClaims{
		PrincipalID: claims.ID,
		Name:        claims.Name,
		Email:       claims.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(claims.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, sc).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}
	return signed, sc.session(), nil
}

// Verify checks the signature and expiry of token and returns its session.
// The error is ErrTokenMissing, ErrTokenExpired, or wraps ErrTokenMalformed.
func (s *TokenService) Verify(token string) (*models.Session, error) {
	if token == "" {
		return nil, ErrTokenMissing
	}
	var sc sessionClaims
	_, err := jwt.ParseWithClaims(token, &sc,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tokenIssuer),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if sc.PrincipalID == 0 || sc.Subject != strconv.FormatInt(sc.PrincipalID, 10) {
		return nil, fmt.Errorf("%w: subject does not match principal", ErrTokenMalformed)
	}
	return sc.session(), nil
}

func (c *sessionClaims) session() *models.Session {
	sess := &models.Session{
		Claims:  models.Claims{ID: c.PrincipalID, Name: c.Name, Email: c.Email},
		TokenID: c.ID,
	}
	if c.IssuedAt != nil {
		sess.IssuedAt = c.IssuedAt.Time.UTC()
	}
	if c.ExpiresAt != nil {
		sess.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return sess
}
