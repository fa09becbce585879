// Package auth verifies the session tokens issued by the platform frontend.
// Tokens are HS256 JWTs whose subject is the owner principal.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid session token")
)

// Claims is the session token payload. Subject carries the owner id.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier validates session tokens against the shared server secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier. The secret must match the token issuer's.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Verify checks the token signature and registered claims and returns the
// owner id from the subject.
func (v *Verifier) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// FromRequest extracts and verifies the bearer token of an HTTP request,
// returning the owner id.
func (v *Verifier) FromRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrMissingToken
	}
	return v.Verify(strings.TrimPrefix(header, prefix))
}

// Sign issues a session token for an owner. Used by the local development
// issuer and by tests; production tokens come from the platform frontend.
func Sign(secret, ownerID string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
