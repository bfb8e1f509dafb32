package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/acorndb/acorndb/pkg/acorn/acornerr"
)

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	b := NewCircuitBreaker(DefaultBreakerConfig())
	for i := 0; i < 10; i++ {
		err := b.Call(func() error { return nil }, nil)
		assert.NoError(t, err)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerTripsOpenAfterThreshold(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 3, OpenDuration: time.Minute}
	b := NewCircuitBreaker(cfg)

	for i := 0; i < 3; i++ {
		_ = b.Call(func() error { return acornerr.ErrTransientIO }, nil)
	}
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerOpenShortCircuitsCalls(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 1, OpenDuration: time.Minute}
	b := NewCircuitBreaker(cfg)

	_ = b.Call(func() error { return acornerr.ErrTransientIO }, nil)
	assert.Equal(t, StateOpen, b.State())

	calls := 0
	err := b.Call(func() error { calls++; return nil }, nil)
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, 0, calls)
}

func TestBreakerOpenRunsFallbackInsteadOfErroring(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 1, OpenDuration: time.Minute}
	b := NewCircuitBreaker(cfg)
	_ = b.Call(func() error { return acornerr.ErrTransientIO }, nil)

	fallbackCalled := false
	err := b.Call(func() error { return nil }, func() error {
		fallbackCalled = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, fallbackCalled)
}

func TestBreakerNonTransientFailureDoesNotTrip(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 2, OpenDuration: time.Minute}
	b := NewCircuitBreaker(cfg)

	for i := 0; i < 5; i++ {
		_ = b.Call(func() error { return acornerr.ErrPermanentIO }, nil)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerNonTransientFailureResetsConsecutiveCount(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 2, OpenDuration: time.Minute}
	b := NewCircuitBreaker(cfg)

	_ = b.Call(func() error { return acornerr.ErrTransientIO }, nil)
	_ = b.Call(func() error { return acornerr.ErrPermanentIO }, nil)
	_ = b.Call(func() error { return acornerr.ErrTransientIO }, nil)

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenProbeAfterOpenDurationElapses(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 1, OpenDuration: 10 * time.Millisecond}
	b := NewCircuitBreaker(cfg)
	_ = b.Call(func() error { return acornerr.ErrTransientIO }, nil)
	assert.Equal(t, StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)

	probed := false
	err := b.Call(func() error {
		probed = true
		return nil
	}, nil)
	assert.NoError(t, err)
	assert.True(t, probed)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 1, OpenDuration: 10 * time.Millisecond}
	b := NewCircuitBreaker(cfg)
	_ = b.Call(func() error { return acornerr.ErrTransientIO }, nil)

	time.Sleep(20 * time.Millisecond)

	err := b.Call(func() error { return acornerr.ErrTransientIO }, nil)
	assert.ErrorIs(t, err, acornerr.ErrTransientIO)
	assert.Equal(t, StateOpen, b.State())
}
