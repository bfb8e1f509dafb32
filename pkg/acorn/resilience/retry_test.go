package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/acorndb/acorndb/pkg/acorn/acornerr"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryTransientSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := RetryTransient(context.Background(), fastPolicy(), func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryTransientRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := RetryTransient(context.Background(), fastPolicy(), func() error {
		calls++
		if calls < 3 {
			return acornerr.ErrTransientIO
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryTransientGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := RetryTransient(context.Background(), fastPolicy(), func() error {
		calls++
		return acornerr.ErrTransientIO
	})
	assert.ErrorIs(t, err, acornerr.ErrTransientIO)
	assert.Equal(t, 3, calls)
}

func TestRetryTransientDoesNotRetryPermanentError(t *testing.T) {
	calls := 0
	err := RetryTransient(context.Background(), fastPolicy(), func() error {
		calls++
		return acornerr.ErrPermanentIO
	})
	assert.ErrorIs(t, err, acornerr.ErrPermanentIO)
	assert.Equal(t, 1, calls)
}

func TestRetryTransientDoesNotRetryUnrelatedError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := RetryTransient(context.Background(), fastPolicy(), func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryTransientStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryTransient(ctx, RetryPolicy{MaxAttempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}, func() error {
		calls++
		cancel()
		return acornerr.ErrTransientIO
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
