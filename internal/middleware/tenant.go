package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Strob0t/MarketForge/internal/logger"
)

type tenantCtxKey struct{}

// HostResolver maps a request host to a tenant id ("" for none).
type HostResolver interface {
	Resolve(ctx context.Context, host string) (string, error)
}

// ResolveTenant resolves the request Host to a tenant before any handler
// runs. Unresolved hosts pass through without a tenant; a failing store
// answers 503.
func ResolveTenant(res HostResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tid, err := res.Resolve(r.Context(), r.Host)
			if err != nil {
				slog.ErrorContext(r.Context(), "tenant resolution failed", "host", r.Host, "error", err)
				writeError(w, http.StatusServiceUnavailable, "tenant resolution unavailable")
				return
			}
			if tid == "" {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithTenantID(r.Context(), tid)))
		})
	}
}

// RequireTenant rejects requests whose host did not resolve to a tenant.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if TenantIDFromContext(r.Context()) == "" {
			writeError(w, http.StatusNotFound, "no tenant")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithTenantID stores the resolved tenant in ctx and in the log context.
func WithTenantID(ctx context.Context, id string) context.Context {
	ctx = logger.WithTenantID(ctx, id)
	return context.WithValue(ctx, tenantCtxKey{}, id)
}

// TenantIDFromContext returns the resolved tenant ID, or "" if none.
func TenantIDFromContext(ctx context.Context) string {
	tid, _ := ctx.Value(tenantCtxKey{}).(string)
	return tid
}
