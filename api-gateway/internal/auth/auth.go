// Package auth resolves the principal calling the gateway.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/vault"
)

// PrincipalHeader carries the caller in development mode.
const PrincipalHeader = "X-Principal"

var (
	// ErrMissingCredentials is returned when a request names no caller.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrInvalidToken is returned for tokens that fail verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidPrincipal is returned when the named caller is not a valid principal.
	ErrInvalidPrincipal = errors.New("invalid principal")
	// ErrReservedPrincipal is returned for principals no client may act as.
	ErrReservedPrincipal = errors.New("reserved principal")
)

// Resolver extracts the calling principal from a request. With a secret it
// requires an HS256 bearer token whose subject is the principal; without one
// it trusts the X-Principal header.
type Resolver struct {
	secret   []byte
	reserved map[vault.Principal]struct{}
}

// NewResolver returns a resolver. An empty secret enables header mode.
// Reserved principals, such as the vault escrow, are always rejected.
func NewResolver(secret string, reserved ...vault.Principal) *Resolver {
	r := &Resolver{secret: []byte(secret), reserved: make(map[vault.Principal]struct{}, len(reserved))}
	for _, p := range reserved {
		r.reserved[p] = struct{}{}
	}
	return r
}

// HeaderMode reports whether the resolver trusts the X-Principal header.
func (r *Resolver) HeaderMode() bool {
	return len(r.secret) == 0
}

// Resolve returns the caller of req.
func (r *Resolver) Resolve(req *http.Request) (vault.Principal, error) {
	p, err := r.resolve(req)
	if err != nil {
		return "", err
	}
	if _, ok := r.reserved[p]; ok {
		return "", ErrReservedPrincipal
	}
	return p, nil
}

func (r *Resolver) resolve(req *http.Request) (vault.Principal, error) {
	if r.HeaderMode() {
		p := vault.Principal(strings.TrimSpace(req.Header.Get(PrincipalHeader)))
		if p == "" {
			return "", ErrMissingCredentials
		}
		if !p.Valid() {
			return "", ErrInvalidPrincipal
		}
		return p, nil
	}

	header := req.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", ErrMissingCredentials
	}
	return r.parse(strings.TrimPrefix(header, "Bearer "))
}

func (r *Resolver) parse(tokenStr string) (vault.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	p := vault.Principal(claims.Subject)
	if !p.Valid() {
		return "", ErrInvalidPrincipal
	}
	return p, nil
}

// Issue signs a token for p valid for ttl. It is used by tests and tooling.
func (r *Resolver) Issue(p vault.Principal, ttl time.Duration) (string, error) {
	if r.HeaderMode() {
		return "", errors.New("no signing secret configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   string(p),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p vault.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by Middleware.
func PrincipalFrom(ctx context.Context) (vault.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(vault.Principal)
	return p, ok && p != ""
}

// Middleware rejects unauthenticated requests with 401 and stores the
// caller in the request context.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		p, err := r.Resolve(req)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, req.WithContext(WithPrincipal(req.Context(), p)))
	})
}
