package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrNotVisible is wrapped by every VisibilityTimeoutError.
var ErrNotVisible = errors.New("record not visible")

// diagnoseTimeout bounds the diagnostic reads made after the budget is spent.
const diagnoseTimeout = 2 * time.Second

// VisibilityPolicy bounds read-after-write polling. MaxAttempts counts every
// read including the first, immediate one. The delay before retry k (k >= 1)
// is min(BaseDelay * 2^(k-1), CapDelay).
type VisibilityPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	CapDelay    time.Duration
}

// DefaultVisibilityPolicy is 10 reads with 50ms doubling up to 500ms.
var DefaultVisibilityPolicy = VisibilityPolicy{
	MaxAttempts: 10,
	BaseDelay:   50 * time.Millisecond,
	CapDelay:    500 * time.Millisecond,
}

// Diagnostics describe store state when a record never became visible.
type Diagnostics struct {
	VisibleCount int    // records of the same kind visible to the reader
	Conflict     bool   // a record with the same natural key but another identity exists
	ConflictID   string // identity of that record
	Err          error  // diagnostic read failure, if any
}

// VisibilityTimeoutError is returned when the read budget is exhausted.
type VisibilityTimeoutError struct {
	Attempts    int
	Waited      time.Duration
	LastErr     error
	Diagnostics Diagnostics
}

func (e *VisibilityTimeoutError) Error() string {
	msg := fmt.Sprintf("record not visible after %d attempts (%s waited)", e.Attempts, e.Waited)
	if e.Diagnostics.Conflict {
		msg += fmt.Sprintf(", conflicting record %s", e.Diagnostics.ConflictID)
	}
	if e.LastErr != nil {
		msg += ": " + e.LastErr.Error()
	}
	return msg
}

// Unwrap exposes ErrNotVisible and the last read error.
func (e *VisibilityTimeoutError) Unwrap() []error {
	if e.LastErr == nil {
		return []error{ErrNotVisible}
	}
	return []error{ErrNotVisible, e.LastErr}
}

// Verifier polls a read primitive until a just-written record is visible.
// It is store-agnostic; callers supply the read and diagnose functions.
type Verifier struct {
	policy    VisibilityPolicy
	sleep     func(ctx context.Context, d time.Duration) error
	onAttempt func(attempt int, visible bool)
}

// VerifierOption customizes a Verifier.
type VerifierOption func(*Verifier)

// WithSleep replaces the delay function, used by tests to avoid real waits.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) VerifierOption {
	return func(v *Verifier) { v.sleep = fn }
}

// WithAttemptHook registers a callback invoked after every read.
func WithAttemptHook(fn func(attempt int, visible bool)) VerifierOption {
	return func(v *Verifier) { v.onAttempt = fn }
}

// NewVerifier creates a Verifier. Non-positive policy fields fall back to
// DefaultVisibilityPolicy, and CapDelay is never below BaseDelay.
func NewVerifier(p VisibilityPolicy, opts ...VerifierOption) *Verifier {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultVisibilityPolicy.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultVisibilityPolicy.BaseDelay
	}
	if p.CapDelay < p.BaseDelay {
		p.CapDelay = p.BaseDelay
	}
	v := &Verifier{policy: p, sleep: sleepContext}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Policy returns the effective policy.
func (v *Verifier) Policy() VisibilityPolicy { return v.policy }

// MaxWait is the total delay a fully exhausted run sleeps.
func (v *Verifier) MaxWait() time.Duration {
	var total time.Duration
	b := v.backoff()
	for {
		d, stop := b.Next()
		if stop {
			return total
		}
		total += d
	}
}

func (v *Verifier) backoff() retry.Backoff {
	b := retry.NewExponential(v.policy.BaseDelay)
	b = retry.WithCappedDuration(v.policy.CapDelay, b)
	return retry.WithMaxRetries(uint64(v.policy.MaxAttempts-1), b) //nolint:gosec // MaxAttempts >= 1
}

// AwaitVisible calls read until it reports the record as found. The first
// read happens immediately. On exhaustion diagnose (optional) is called once
// and its result is attached to the returned *VisibilityTimeoutError.
//
// read returns (record, found, err); an error is treated as "not yet visible"
// and kept as LastErr.
func AwaitVisible[T any](
	ctx context.Context,
	v *Verifier,
	read func(ctx context.Context) (T, bool, error),
	diagnose func(ctx context.Context) Diagnostics,
) (T, error) {
	var (
		zero    T
		lastErr error
		waited  time.Duration
		attempt int
	)
	b := v.backoff()

	for {
		attempt++
		rec, found, err := read(ctx)
		if v.onAttempt != nil {
			v.onAttempt(attempt, found && err == nil)
		}
		if err == nil && found {
			return rec, nil
		}
		lastErr = err

		d, stop := b.Next()
		if stop {
			break
		}
		if serr := v.sleep(ctx, d); serr != nil {
			lastErr = serr
			break
		}
		waited += d
	}

	terr := &VisibilityTimeoutError{Attempts: attempt, Waited: waited, LastErr: lastErr}
	if diagnose != nil {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), diagnoseTimeout)
		terr.Diagnostics = diagnose(dctx)
		cancel()
	}
	return zero, terr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
