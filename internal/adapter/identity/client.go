// Package identity implements the identity store port over its HTTP API.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/Strob0t/MarketForge/internal/config"
	"github.com/Strob0t/MarketForge/internal/domain"
	"github.com/Strob0t/MarketForge/internal/domain/user"
	"github.com/Strob0t/MarketForge/internal/logger"
	"github.com/Strob0t/MarketForge/internal/port/identity"
	"github.com/Strob0t/MarketForge/internal/resilience"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// TokenSource supplies the platform service credential used when the caller
// carries no session token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

// APIError is a non-2xx answer from the identity store. Retried is set
// when the answer came after a transport failure of the same request, so an
// earlier attempt may have reached the server.
type APIError struct {
	Status  int
	Message string
	Retried bool
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity store returned %d", e.Status)
	}
	return fmt.Sprintf("identity store returned %d: %s", e.Status, e.Message)
}

// errMalformed marks a 2xx response whose body could not be understood.
var errMalformed = errors.New("malformed response")

// Client talks to the identity store. It implements identity.Client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.Breaker
	tokens     TokenSource
	maxRetries uint64
	retryBase  time.Duration
}

var _ identity.Client = (*Client)(nil)

// NewClient creates a client from the identity config.
func NewClient(cfg config.Identity) *Client {
	base := cfg.RetryBaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		retryBase:  base,
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// SetTokenSource sets the fallback service credential.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// Trips reports whether err should count against the circuit breaker:
// transport failures and 5xx answers do, well-formed 4xx rejections don't.
func Trips(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return true
}

// CheckCanCreate asks whether the caller may create another market.
func (c *Client) CheckCanCreate(ctx context.Context, caller *user.Session) (*identity.Quota, error) {
	var body struct {
		Allowed      *bool `json:"allowed"`
		CurrentCount int   `json:"currentCount"`
		Limit        int   `json:"limit"`
	}
	path := "/auth/markets/can-create?userId=" + url.QueryEscape(caller.UserID)
	if err := c.call(ctx, caller, http.MethodGet, path, nil, &body); err != nil {
		return nil, mapError("check can create", err)
	}
	if body.Allowed == nil {
		return nil, mapError("check can create", fmt.Errorf("%w: missing allowed", errMalformed))
	}
	return &identity.Quota{Allowed: *body.Allowed, CurrentCount: body.CurrentCount, Limit: body.Limit}, nil
}

// CreateAndLink registers the market then links the caller as owner. A
// failure of the link step after a successful create is still reported as
// a failure; the identity store has no compensating call.
//
// The create POST is not idempotent but transport errors are retried. A 409
// that follows a lost response is taken as our own earlier write, since the
// market id is fresh per setup; the link call then confirms the market
// exists.
func (c *Client) CreateAndLink(ctx context.Context, caller *user.Session, m identity.Market) error {
	var echo struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, caller, http.MethodPost, "/auth/markets/create", m, &echo); err != nil {
		if !duplicateOfRetry(err) {
			return mapError("create market", err)
		}
		slog.WarnContext(ctx, "identity store reported existing market after retried create", "tenant_id", m.ID)
		echo.ID = m.ID
	}
	if echo.ID != "" && echo.ID != m.ID {
		return mapError("create market", fmt.Errorf("%w: echoed id %q, sent %q", errMalformed, echo.ID, m.ID))
	}
	return c.LinkExisting(ctx, caller, m.ID)
}

func duplicateOfRetry(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict && apiErr.Retried
}

// LinkExisting links the caller to an existing market.
func (c *Client) LinkExisting(ctx context.Context, caller *user.Session, tenantID string) error {
	req := struct {
		UserID   string `json:"userId"`
		TenantID string `json:"tenantId"`
	}{UserID: caller.UserID, TenantID: tenantID}
	if err := c.call(ctx, caller, http.MethodPost, "/auth/markets/link", req, nil); err != nil {
		return mapError("link market", err)
	}
	return nil
}

// mapError is the single place identity failures become domain errors.
func mapError(op string, err error) error {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return fmt.Errorf("%w: %s: identity store unavailable: %w", domain.ErrExternalService, op, err)
	default:
		return fmt.Errorf("%w: %s: %w", domain.ErrExternalService, op, err)
	}
}

// call performs one logical request: credential selection, breaker, transport
// retries, a single re-authentication on 401 with the service credential,
// and response decoding into out (when non-nil).
func (c *Client) call(ctx context.Context, caller *user.Session, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	token, service, err := c.credential(ctx, caller)
	if err != nil {
		return err
	}

	data, err := c.execute(ctx, method, path, token, body)
	var apiErr *APIError
	if service && errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		if ierr := c.tokens.Invalidate(ctx); ierr != nil {
			return errors.Join(err, ierr)
		}
		if token, err = c.tokens.Token(ctx); err != nil {
			return fmt.Errorf("refresh service token: %w", err)
		}
		data, err = c.execute(ctx, method, path, token, body)
	}
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		if out != nil {
			return fmt.Errorf("%w: empty body", errMalformed)
		}
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %w", errMalformed, err)
	}
	return nil
}

func (c *Client) credential(ctx context.Context, caller *user.Session) (token string, service bool, err error) {
	if caller != nil && caller.Token != "" {
		return caller.Token, false, nil
	}
	if c.tokens == nil {
		return "", false, errors.New("no bearer credential")
	}
	token, err = c.tokens.Token(ctx)
	if err != nil {
		return "", false, fmt.Errorf("service token: %w", err)
	}
	return token, true, nil
}

// execute runs the HTTP exchange behind the breaker, retrying transport
// errors only. Non-idempotent callers see APIError.Retried.
func (c *Client) execute(ctx context.Context, method, path, token string, body []byte) ([]byte, error) {
	var result []byte
	attempt := func(ctx context.Context) error {
		backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBase))
		transportFailed := false
		return retry.Do(ctx, backoff, func(ctx context.Context) error {
			data, err := c.roundTrip(ctx, method, path, token, body)
			if err != nil {
				var apiErr *APIError
				if errors.As(err, &apiErr) {
					apiErr.Retried = transportFailed
					return err
				}
				if ctx.Err() != nil {
					return err
				}
				transportFailed = true
				return retry.RetryableError(err)
			}
			result = data
			return nil
		})
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.ExecuteContext(ctx, attempt)
	} else {
		err = attempt(ctx)
	}
	return result, err
}

func (c *Client) roundTrip(ctx context.Context, method, path, token string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if id := logger.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

// errorMessage extracts a human-readable reason from an error body.
func errorMessage(data []byte) string {
	if len(data) > maxErrorBody {
		data = data[:maxErrorBody]
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(data))
}
