// Package auth resolves the caller identity from an HS256 bearer token.
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
	// ErrUnauthorized is the parent of every identity failure.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMissingToken means no "Authorization: Bearer" header was sent.
	ErrMissingToken = fmt.Errorf("%w: missing authorization token", ErrUnauthorized)
	// ErrInvalidToken covers bad signatures, expiry, and a missing subject.
	ErrInvalidToken = fmt.Errorf("%w: invalid token", ErrUnauthorized)
)

// Identity is an authenticated caller.
type Identity struct {
	UserID string
}

// Authenticator resolves the caller of a request.
type Authenticator interface {
	// CurrentUserOrNull returns nil for anonymous callers and for invalid tokens.
	CurrentUserOrNull(r *http.Request) *Identity
	// CurrentUserOrFail returns an error wrapping ErrUnauthorized when the
	// caller cannot be identified.
	CurrentUserOrFail(r *http.Request) (*Identity, error)
}

// TokenAuthenticator verifies HS256 JWTs whose "sub" claim is the user id.
type TokenAuthenticator struct {
	secret []byte
	now    func() time.Time
}

// NewTokenAuthenticator returns an authenticator for secret. With an empty
// secret every token is rejected.
func NewTokenAuthenticator(secret string) *TokenAuthenticator {
	return &TokenAuthenticator{secret: []byte(secret), now: time.Now}
}

// CurrentUserOrNull implements Authenticator.
func (a *TokenAuthenticator) CurrentUserOrNull(r *http.Request) *Identity {
	id, err := a.CurrentUserOrFail(r)
	if err != nil {
		return nil
	}
	return id
}

// CurrentUserOrFail implements Authenticator.
func (a *TokenAuthenticator) CurrentUserOrFail(r *http.Request) (*Identity, error) {
	token, ok := bearerToken(r)
	if !ok {
		return nil, ErrMissingToken
	}
	return a.verify(token)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return token, token != ""
}

func (a *TokenAuthenticator) verify(token string) (*Identity, error) {
	if len(a.secret) == 0 {
		return nil, fmt.Errorf("%w: SECRET_KEY not set", ErrInvalidToken)
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub missing", ErrInvalidToken)
	}
	return &Identity{UserID: claims.Subject}, nil
}

// SignToken issues a token for userID valid for ttl. Account login lives
// outside this service; this is used by tooling and tests.
func SignToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
