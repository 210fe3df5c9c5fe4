package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
)

const headerAdminKey = "X-Admin-Key"

// KeySource yields the current platform admin key.
type KeySource interface {
	Token(ctx context.Context) (string, error)
}

// AdminKey returns middleware that admits only requests presenting the
// platform admin key in X-Admin-Key.
func AdminKey(src KeySource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(headerAdminKey)
			if presented == "" {
				writeError(w, http.StatusUnauthorized, "admin key required")
				return
			}

			expected, err := src.Token(r.Context())
			if err != nil || expected == "" {
				slog.ErrorContext(r.Context(), "admin key unavailable", "error", err)
				writeError(w, http.StatusServiceUnavailable, "admin authentication unavailable")
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
				writeError(w, http.StatusForbidden, "invalid admin key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
