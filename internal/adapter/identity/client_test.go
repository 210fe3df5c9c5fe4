package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/MarketForge/internal/config"
	"github.com/Strob0t/MarketForge/internal/domain"
	"github.com/Strob0t/MarketForge/internal/domain/user"
	"github.com/Strob0t/MarketForge/internal/port/identity"
	"github.com/Strob0t/MarketForge/internal/resilience"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.Identity{
		URL:            srv.URL,
		Timeout:        2 * time.Second,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
	})
}

var caller = &user.Session{UserID: "u-1", Email: "owner@example.com", Token: "user-token"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestCheckCanCreate(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/markets/can-create" || r.URL.Query().Get("userId") != "u-1" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer user-token" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{"allowed": false, "currentCount": 3, "limit": 3})
	}))

	q, err := c.CheckCanCreate(context.Background(), caller)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Allowed || q.CurrentCount != 3 || q.Limit != 3 {
		t.Fatalf("quota = %+v", q)
	}
}

func TestCheckCanCreate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"message":"boom"}`},
		{"forbidden", http.StatusForbidden, `{"error":"nope"}`},
		{"malformed json", http.StatusOK, `{not json`},
		{"missing allowed", http.StatusOK, `{"limit":3}`},
		{"empty body", http.StatusOK, ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			q, err := c.CheckCanCreate(context.Background(), caller)
			if !errors.Is(err, domain.ErrExternalService) {
				t.Fatalf("expected ErrExternalService, got %v", err)
			}
			if q != nil {
				t.Fatalf("quota must be nil on failure, got %+v", q)
			}
		})
	}
}

func TestAPIErrorMessage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "market exists"})
	}))
	err := c.LinkExisting(context.Background(), caller, "t-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError in chain, got %v", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Message != "market exists" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestCreateAndLink(t *testing.T) {
	var calls []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		switch r.URL.Path {
		case "/auth/markets/create":
			var m identity.Market
			if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
				t.Errorf("decode: %v", err)
			}
			if m.ID != "t-1" || m.Subdomain != "acme" || m.Plan != "BASIC" || m.Status != "ACTIVE" {
				t.Errorf("unexpected market %+v", m)
			}
			writeJSON(w, http.StatusCreated, m)
		case "/auth/markets/link":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["userId"] != "u-1" || body["tenantId"] != "t-1" {
				t.Errorf("unexpected link body %v", body)
			}
			w.WriteHeader(http.StatusNoContent)
		}
	}))

	err := c.CreateAndLink(context.Background(), caller, identity.Market{ID: "t-1", Name: "Acme", Subdomain: "acme", Plan: "BASIC", Status: "ACTIVE"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 2 || calls[0] != "/auth/markets/create" || calls[1] != "/auth/markets/link" {
		t.Fatalf("calls = %v", calls)
	}
}

func TestCreateAndLink_EchoMismatch(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"id": "someone-else"})
	}))
	err := c.CreateAndLink(context.Background(), caller, identity.Market{ID: "t-1"})
	if !errors.Is(err, domain.ErrExternalService) || !errors.Is(err, errMalformed) {
		t.Fatalf("expected malformed external error, got %v", err)
	}
}

func TestCreateAndLink_ServerErrorNotRetried(t *testing.T) {
	var n atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	err := c.CreateAndLink(context.Background(), caller, identity.Market{ID: "t-1"})
	if !errors.Is(err, domain.ErrExternalService) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
	if got := n.Load(); got != 1 {
		t.Fatalf("application errors must not be retried, got %d calls", got)
	}
}

func TestTransportErrorRetried(t *testing.T) {
	var n atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if n.Add(1) == 1 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("hijack unsupported")
			}
			conn, _, _ := hj.Hijack()
			_ = conn.Close()
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"allowed": true, "currentCount": 0, "limit": 1})
	}))

	q, err := c.CheckCanCreate(context.Background(), caller)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Allowed {
		t.Fatal("expected allowed after retry")
	}
	if got := n.Load(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

// dropConn closes the connection without answering, so the request reached
// the server but its response is lost.
func dropConn(w http.ResponseWriter, t *testing.T) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		t.Fatal("hijack unsupported")
	}
	conn, _, _ := hj.Hijack()
	_ = conn.Close()
}

func TestCreateAndLink_DuplicateAfterLostResponse(t *testing.T) {
	var creates, links atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/markets/create":
			if creates.Add(1) == 1 {
				dropConn(w, t)
				return
			}
			writeJSON(w, http.StatusConflict, map[string]string{"message": "market already exists"})
		case "/auth/markets/link":
			links.Add(1)
			w.WriteHeader(http.StatusNoContent)
		}
	}))

	if err := c.CreateAndLink(context.Background(), caller, identity.Market{ID: "t-1"}); err != nil {
		t.Fatalf("duplicate after a lost response must count as created, got %v", err)
	}
	if creates.Load() != 2 || links.Load() != 1 {
		t.Fatalf("creates = %d, links = %d", creates.Load(), links.Load())
	}
}

func TestCreateAndLink_ConflictWithoutRetryFails(t *testing.T) {
	var links atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/markets/link" {
			links.Add(1)
		}
		writeJSON(w, http.StatusConflict, map[string]string{"message": "subdomain taken"})
	}))

	err := c.CreateAndLink(context.Background(), caller, identity.Market{ID: "t-1"})
	if !errors.Is(err, domain.ErrExternalService) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict || apiErr.Retried {
		t.Fatalf("expected first-attempt 409, got %v", err)
	}
	if links.Load() != 0 {
		t.Fatal("link must not run after a rejected create")
	}
}

func TestCreateAndLink_DuplicateAfterRetryStillNeedsLink(t *testing.T) {
	var creates atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/markets/create":
			if creates.Add(1) == 1 {
				dropConn(w, t)
				return
			}
			writeJSON(w, http.StatusConflict, map[string]string{"message": "market already exists"})
		case "/auth/markets/link":
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "unknown market"})
		}
	}))

	err := c.CreateAndLink(context.Background(), caller, identity.Market{ID: "t-1"})
	if !errors.Is(err, domain.ErrExternalService) {
		t.Fatalf("expected ErrExternalService when the market cannot be linked, got %v", err)
	}
}

// fakeTokens is a TokenSource whose value changes after Invalidate.
type fakeTokens struct {
	current     string
	next        string
	invalidated int
}

func (f *fakeTokens) Token(context.Context) (string, error) { return f.current, nil }
func (f *fakeTokens) Invalidate(context.Context) error {
	f.invalidated++
	f.current = f.next
	return nil
}

func TestServiceTokenRefreshOn401(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	tokens := &fakeTokens{current: "stale", next: "fresh"}
	c.SetTokenSource(tokens)

	// No session token: the service credential is used.
	if err := c.LinkExisting(context.Background(), &user.Session{UserID: "u-1"}, "t-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens.invalidated != 1 {
		t.Fatalf("invalidated = %d, want 1", tokens.invalidated)
	}
}

func TestUserToken401NotRefreshed(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	tokens := &fakeTokens{current: "svc", next: "svc2"}
	c.SetTokenSource(tokens)

	err := c.LinkExisting(context.Background(), caller, "t-1")
	if !errors.Is(err, domain.ErrExternalService) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
	if tokens.invalidated != 0 {
		t.Fatal("user token rejection must not invalidate the service credential")
	}
}

func TestNoCredential(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("request must not be sent without a credential")
	}))
	if err := c.LinkExisting(context.Background(), &user.Session{UserID: "u-1"}, "t-1"); !errors.Is(err, domain.ErrExternalService) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
}

func TestBreakerTripsOnServerErrorsOnly(t *testing.T) {
	status := http.StatusBadRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	b := resilience.NewBreaker(2, time.Minute, resilience.WithTripClassifier(Trips))
	c.SetBreaker(b)
	ctx := context.Background()

	for range 3 {
		_ = c.LinkExisting(ctx, caller, "t-1")
	}
	if b.State() != "closed" {
		t.Fatalf("4xx must not trip the breaker, state = %s", b.State())
	}

	status = http.StatusBadGateway
	_ = c.LinkExisting(ctx, caller, "t-1")
	_ = c.LinkExisting(ctx, caller, "t-1")
	err := c.LinkExisting(ctx, caller, "t-1")
	if !errors.Is(err, resilience.ErrCircuitOpen) || !errors.Is(err, domain.ErrExternalService) {
		t.Fatalf("expected open circuit as external error, got %v", err)
	}
}
