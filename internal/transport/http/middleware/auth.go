package middleware

import (
	"context"
	"net/http"

	"github.com/go-shop-api/internal/domain"
	jwtinfra "github.com/go-shop-api/internal/infrastructure/jwt"
	"github.com/go-shop-api/internal/transport/http/cookie"
)

type contextKey string

const identityKey contextKey = "identity"

// AccessVerifier validates access tokens. *jwtinfra.Provider satisfies it.
type AccessVerifier interface {
	VerifyAccess(token string) (*jwtinfra.Claims, error)
}

// Auth rejects requests without a valid access token. The Authorization
// header wins over the access_token cookie when both are present.
func Auth(verifier AccessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := accessToken(r)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "access token required")
				return
			}
			claims, err := verifier.VerifyAccess(tokenStr)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, domain.ErrInvalidToken.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims.Identity())))
		})
	}
}

// OptionalAuth attaches an identity when a valid token is present and
// otherwise passes the request through untouched.
func OptionalAuth(verifier AccessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenStr, ok := accessToken(r); ok {
				if claims, err := verifier.VerifyAccess(tokenStr); err == nil {
					r = r.WithContext(WithIdentity(r.Context(), claims.Identity()))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func accessToken(r *http.Request) (string, bool) {
	if tok, ok := jwtinfra.ExtractBearerToken(r.Header.Get("Authorization")); ok {
		return tok, true
	}
	return cookie.AccessToken(r)
}

func WithIdentity(ctx context.Context, ident domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// IdentityFromContext returns the caller attached by Auth or OptionalAuth.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	ident, ok := ctx.Value(identityKey).(domain.Identity)
	return ident, ok
}
