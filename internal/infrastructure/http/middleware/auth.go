package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rezkam/flotilla/internal/infrastructure/http/response"
)

// AdminAuth gates admin endpoints behind a bearer token. When no token
// is configured the gated routes are disabled entirely: every request
// gets 401 rather than an open admin surface.
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				slog.WarnContext(r.Context(), "admin endpoint called but no admin token configured",
					"path", r.URL.Path)
				response.Unauthorized(w, "admin API disabled: no token configured")
				return
			}

			presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				slog.WarnContext(r.Context(), "missing or malformed authorization header", "path", r.URL.Path)
				response.Unauthorized(w, "missing bearer token")
				return
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				slog.WarnContext(r.Context(), "invalid admin token presented", "path", r.URL.Path)
				response.Unauthorized(w, "invalid admin token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
