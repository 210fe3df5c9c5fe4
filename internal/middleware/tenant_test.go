package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Strob0t/MarketForge/internal/logger"
	"github.com/Strob0t/MarketForge/internal/middleware"
)

type fakeResolver struct {
	hosts map[string]string
	err   error
	seen  []string
}

func (f *fakeResolver) Resolve(_ context.Context, host string) (string, error) {
	f.seen = append(f.seen, host)
	if f.err != nil {
		return "", f.err
	}
	return f.hosts[host], nil
}

func TestResolveTenant_SetsContext(t *testing.T) {
	res := &fakeResolver{hosts: map[string]string{"shop.saeaa.com": "t-1"}}

	var got, logged string
	handler := middleware.ResolveTenant(res)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = middleware.TenantIDFromContext(r.Context())
		logged = logger.TenantID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Host = "shop.saeaa.com"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != "t-1" {
		t.Fatalf("tenant = %q, want t-1", got)
	}
	if logged != "t-1" {
		t.Fatalf("log context tenant = %q, want t-1", logged)
	}
	if len(res.seen) != 1 || res.seen[0] != "shop.saeaa.com" {
		t.Fatalf("resolver saw %v", res.seen)
	}
}

func TestResolveTenant_UnknownHostPassesThrough(t *testing.T) {
	res := &fakeResolver{hosts: map[string]string{}}

	called := false
	handler := middleware.ResolveTenant(res)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if tid := middleware.TenantIDFromContext(r.Context()); tid != "" {
			t.Errorf("tenant = %q, want empty", tid)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Host = "nowhere.example.org"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("called = %v, status = %d", called, rec.Code)
	}
}

func TestResolveTenant_StoreErrorReturns503(t *testing.T) {
	res := &fakeResolver{err: errors.New("connection refused")}
	handler := middleware.ResolveTenant(res)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestRequireTenant(t *testing.T) {
	handler := middleware.RequireTenant(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("without tenant: status = %d, want 404", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req = req.WithContext(middleware.WithTenantID(req.Context(), "t-1"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("with tenant: status = %d, want 200", rec.Code)
	}
}

func TestTenantIDFromContextMissing(t *testing.T) {
	if got := middleware.TenantIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty tenant, got %q", got)
	}
}
