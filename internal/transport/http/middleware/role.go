package middleware

import (
	"net/http"
	"slices"

	"github.com/go-shop-api/internal/domain"
)

// RequireRole must run after Auth. Callers whose role is not listed get 403;
// a request with no identity at all gets 401.
func RequireRole(allowed ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, ok := IdentityFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error())
				return
			}
			if !slices.Contains(allowed, ident.Role) {
				writeJSONError(w, http.StatusForbidden, "you do not have permission to perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
