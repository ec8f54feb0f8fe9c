// Package auth holds the trusted identity attached to every authenticated
// request and the JWT plumbing that produces it. The portal never issues
// tokens; it decodes what the backend auth endpoint returns.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the trusted per-user context sourced from the backend-issued
// token. Fields are read-only once the session is established.
type Identity struct {
	LACode   string `json:"laCode"`
	LAName   string `json:"laName"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Claims is the JWT claim set the backend auth endpoint signs.
type Claims struct {
	LACode   string `json:"laCode"`
	LAName   string `json:"laName"`
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// ErrInvalidToken is returned when a bearer token fails signature or claim
// validation.
var ErrInvalidToken = errors.New("invalid bearer token")

// ParseToken validates an HMAC-signed token and extracts the identity.
func ParseToken(token string, key []byte) (Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return key, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.LACode == "" {
		return Identity{}, ErrInvalidToken
	}
	ident := Identity{
		LACode:   claims.LACode,
		LAName:   claims.LAName,
		Username: claims.Username,
		Email:    claims.Email,
	}
	if ident.Email == "" {
		// Older backend tokens carry the email in the username claim.
		ident.Email = claims.Username
	}
	return ident, nil
}

type contextKey struct{}

// WithIdentity stores an identity on the context for downstream handlers.
func WithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, ident)
}

// FromContext retrieves the identity placed by the verify middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(contextKey{}).(Identity)
	return ident, ok
}
