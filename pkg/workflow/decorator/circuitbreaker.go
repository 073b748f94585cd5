package decorator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kadirpekel/conduit/pkg/workflow"
)

// breakerState is the circuit breaker's position in its closed/open/
// half-open state machine.
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// CircuitBreakerConfig tunes when a breaker trips and when it probes again.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker from closed to open.
	FailureThreshold int
	// OpenDuration is how long the breaker stays open before allowing one
	// half-open probe call.
	OpenDuration time.Duration
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.OpenDuration <= 0 {
		c.OpenDuration = 30 * time.Second
	}
	return c
}

// CircuitBreaker guards a node's Executor, refusing calls outright once the
// failure threshold trips and probing with a single half-open call once
// OpenDuration elapses.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
}

// NewCircuitBreaker creates a closed breaker with the given config.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg.withDefaults(), state: stateClosed}
}

// Wrap returns a decorated Executor that runs next through this breaker.
func (cb *CircuitBreaker) Wrap(next workflow.Executor) workflow.Executor {
	return func(ctx context.Context, snap workflow.Snapshot, input any) (any, error) {
		if !cb.allow() {
			return nil, &workflow.CircuitOpenError{NodeName: snap.CurrentNode}
		}

		output, err := next(ctx, snap, input)
		cb.record(err)
		return output, err
	}
}

// allow reports whether a call may proceed, transitioning open -> half-open
// once OpenDuration has elapsed.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case stateClosed:
		return true
	case stateOpen:
		if time.Since(cb.openedAt) >= cb.cfg.OpenDuration {
			cb.state = stateHalfOpen
			return true
		}
		return false
	case stateHalfOpen:
		return false
	default:
		return true
	}
}

// record updates the breaker's state after a call completes: a half-open
// success closes it, any failure (re-)opens it.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == stateHalfOpen {
			cb.state = stateClosed
		}
		cb.failures = 0
		return
	}

	if cb.state == stateHalfOpen {
		cb.state = stateOpen
		cb.openedAt = time.Now()
		return
	}

	cb.failures++
	if cb.failures >= cb.cfg.FailureThreshold {
		cb.state = stateOpen
		cb.openedAt = time.Now()
	}
}

// String renders the breaker's current state, useful for diagnostics.
func (cb *CircuitBreaker) String() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case stateOpen:
		return fmt.Sprintf("open(failures=%d)", cb.failures)
	case stateHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("closed(failures=%d)", cb.failures)
	}
}
