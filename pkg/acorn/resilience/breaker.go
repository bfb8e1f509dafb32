package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/acorndb/acorndb/pkg/acorn/acornerr"
)

// State is a circuit breaker's current posture.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// BreakerConfig configures when a CircuitBreaker trips and how long it
// waits before probing again.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive transient failures
	// that trips the breaker open.
	FailureThreshold int
	// OpenDuration is how long the breaker stays open before allowing a
	// single half-open probe through.
	OpenDuration time.Duration
}

// DefaultBreakerConfig trips after 5 consecutive failures and probes
// again after 10 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, OpenDuration: 10 * time.Second}
}

// CircuitBreaker wraps calls to a failure-prone dependency (typically a
// Trunk operating over the network or a remote branch), short-circuiting
// calls once consecutive transient failures cross FailureThreshold. It
// cycles closed -> open -> half-open -> closed (or back to open on a
// failed probe).
type CircuitBreaker struct {
	cfg BreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	probeInFlight bool
}

// NewCircuitBreaker creates a closed breaker with cfg.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// ErrBreakerOpen is returned by Call when the breaker refuses to attempt
// the wrapped operation.
var ErrBreakerOpen = errors.New("acorn: circuit breaker open")

// State reports the breaker's current state.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Call runs op through the breaker. If a fallback is supplied, it runs
// whenever the breaker is open instead of returning ErrBreakerOpen.
func (b *CircuitBreaker) Call(op func() error, fallback func() error) error {
	if !b.allow() {
		if fallback != nil {
			return fallback()
		}
		return ErrBreakerOpen
	}

	err := op()
	b.record(err)
	return err
}

func (b *CircuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.openedAt) < b.cfg.OpenDuration {
			return false
		}
		if b.probeInFlight {
			return false
		}
		b.state = StateHalfOpen
		b.probeInFlight = true
		return true
	case StateHalfOpen:
		return false
	default:
		return true
	}
}

func (b *CircuitBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	transient := err != nil && errors.Is(err, acornerr.ErrTransientIO)

	switch b.state {
	case StateHalfOpen:
		b.probeInFlight = false
		if transient {
			b.state = StateOpen
			b.openedAt = time.Now()
			return
		}
		b.state = StateClosed
		b.failures = 0
	case StateClosed:
		if !transient {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = time.Now()
		}
	}
}
