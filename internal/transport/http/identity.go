package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the caller as asserted by the credential issuer.
type Identity struct {
	UserID      string
	DisplayName string
}

type identityKey struct{}

// IdentityFrom returns the identity resolved by Authenticator.Middleware, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UserID != ""
}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

var errInvalidToken = errors.New("invalid bearer token")

// Authenticator verifies HS256 bearer tokens. With no secret configured it trusts the
// X-User-ID and X-User-Name headers instead, which is only meant for local development.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Middleware resolves the caller identity. Requests without credentials pass through
// anonymously; requests with a bad token are rejected.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.identify(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})
			return
		}
		if id.UserID != "" {
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) identify(r *http.Request) (Identity, error) {
	if len(a.secret) == 0 {
		return Identity{
			UserID:      strings.TrimSpace(r.Header.Get("X-User-ID")),
			DisplayName: strings.TrimSpace(r.Header.Get("X-User-Name")),
		}, nil
	}

	raw := r.Header.Get("Authorization")
	if raw == "" {
		// Browsers cannot set headers on a websocket handshake.
		raw = r.URL.Query().Get("token")
	}
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer"))
	if raw == "" {
		return Identity{}, nil
	}
	return a.Parse(raw)
}

// Parse verifies token and extracts the sub and name claims.
func (a *Authenticator) Parse(token string) (Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", errInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, fmt.Errorf("%w: missing sub claim", errInvalidToken)
	}
	name, _ := claims["name"].(string)
	return Identity{UserID: sub, DisplayName: name}, nil
}

// Sign issues a token for id. Used by tests and local tooling; production tokens come from
// the credential issuer.
func (a *Authenticator) Sign(id Identity, claims jwt.MapClaims) (string, error) {
	if claims == nil {
		claims = jwt.MapClaims{}
	}
	claims["sub"] = id.UserID
	if id.DisplayName != "" {
		claims["name"] = id.DisplayName
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
