// Package auth verifies owner identity tokens. Tokens are issued by
// the external authentication provider; this layer only checks the
// signature and lifts the identity claims into the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/urlify/urlify/internal/httpx"
)

// CookieName is the cookie the provider stores the token in. A bearer
// Authorization header takes precedence when both are present.
const CookieName = "auth_token"

// Identity is the authenticated creator of a link record. OwnerName is
// a display-name snapshot; it is stored at creation and never
// re-synced.
type Identity struct {
	OwnerID   string
	OwnerName string
}

type identityContextKey struct{}

// Verifier validates identity tokens signed with a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier for tokens signed with secret (HS256).
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// Parse validates tokenString and returns the identity it carries.
// The subject claim is the owner ID.
func (v *Verifier) Parse(tokenString string) (Identity, error) {
	claims := &tokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return Identity{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Identity{}, errors.New("token has no subject")
	}

	return Identity{OwnerID: claims.Subject, OwnerName: claims.Name}, nil
}

// Optional attaches the caller's identity to the context when a token
// is presented. Requests without a token proceed anonymously; requests
// with an invalid token are rejected.
func (v *Verifier) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractToken(r)
		if tokenString == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := v.Parse(tokenString)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized",
				"invalid or expired token", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// Require rejects requests that carry no valid identity. Must run
// inside Optional.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFrom(r.Context()); !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized",
				"authentication required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFrom returns the identity attached to ctx, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

// WithIdentity attaches an identity to ctx. Exposed for tests.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
			return rest
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}
