// Package resilience wraps arbitrary operations (plain func() error
// calls) with retry and circuit-breaker behavior for transient I/O
// failures (spec's supplemented resilience layer, grounded on the
// teacher's reconciler retry/backoff loop). It does not wrap a Trunk
// itself; callers pass the trunk call in as the operation.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/acorndb/acorndb/pkg/acorn/acornerr"
)

// RetryPolicy configures RetryTransient's backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy makes up to 3 attempts in total with doubling
// backoff starting at 50ms, capped at 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}
}

// RetryTransient runs op, retrying only when it fails with
// acornerr.ErrTransientIO, up to policy.MaxAttempts, with exponential
// backoff between attempts. Any other error, including
// acornerr.ErrPermanentIO, returns immediately.
func RetryTransient(ctx context.Context, policy RetryPolicy, op func() error) error {
	delay := policy.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, acornerr.ErrTransientIO) {
			return lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return lastErr
}
