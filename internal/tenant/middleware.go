package tenant

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/facturio/facturio/internal/platform/httpx"
)

// APIKeyHeader carries the tenant credential: "<prefix>.<secret>".
// Session handling proper lives outside this service; the engine only binds
// an already-issued key to a tenant scope.
const APIKeyHeader = "X-Api-Key"

// Middleware authenticates the request's API key and injects the tenant
// scope into the context. Handlers behind it can rely on ScopeFromContext.
func Middleware(logger *slog.Logger, repo Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			prefix, secret, ok := strings.Cut(key, ".")
			if !ok || prefix == "" || secret == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing or malformed api key")
				return
			}

			t, err := repo.GetByAPIKeyPrefix(r.Context(), prefix)
			if err != nil {
				if err != ErrNotFound {
					logger.Error("tenant lookup failed", slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "unknown api key")
				return
			}
			if !t.IsActive {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "tenant is deactivated")
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(t.APIKeyHash), []byte(secret)); err != nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid api key")
				return
			}

			scope, err := NewScope(t.ID)
			if err != nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid tenant")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithScope(r.Context(), scope)))
		})
	}
}

// RequireScope pulls the scope from the request context or writes a 401.
func RequireScope(w http.ResponseWriter, r *http.Request) (Scope, bool) {
	scope, ok := ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no tenant bound to request")
	}
	return scope, ok
}
