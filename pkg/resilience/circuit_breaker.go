package resilience

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
)

// CircuitBreakerState is the state of a circuit breaker.
type CircuitBreakerState string

const (
	// StateClosed admits calls normally.
	StateClosed CircuitBreakerState = "closed"

	// StateOpen rejects calls without executing them.
	StateOpen CircuitBreakerState = "open"

	// StateHalfOpen admits probe calls to test recovery.
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens (default 5).
	FailureThreshold int

	// SuccessThreshold is the number of successes in half-open before the
	// circuit closes again (default 2).
	SuccessThreshold int

	// Timeout is how long an open circuit waits before admitting a probe
	// (default 30s).
	Timeout time.Duration

	// Name identifies the breaker in errors and logs.
	Name string
}

// CircuitBreaker sheds load from a failing dependency: consecutive
// failures open the circuit, and calls are rejected until a cool-down
// probe succeeds often enough to close it again. The guarded function
// runs outside the breaker's lock, so concurrent calls do not serialize.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu        sync.Mutex
	state     CircuitBreakerState
	failures  int
	successes int
	openedAt  time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given config.
// Zero-valued fields fall back to defaults.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold < 1 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Name == "" {
		config.Name = "circuit_breaker"
	}
	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// Call executes fn if the circuit admits it and records the outcome.
// A rejected call returns a recoverable INTERNAL_ERROR carrying the
// breaker name. Context cancellation is returned as-is and does not
// count against the circuit: the dependency was never at fault.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cb.allow(); err != nil {
		return err
	}

	err := fn()

	if err != nil && (stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	cb.record(err == nil)
	return err
}

// transition switches state and clears both counters. Entering the open
// state starts the cool-down clock. Callers hold mu.
func (cb *CircuitBreaker) transition(to CircuitBreakerState) {
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	if to == StateOpen {
		cb.openedAt = time.Now()
	}
}

// allow admits or rejects a call, transitioning open circuits to
// half-open after the cool-down.
func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.openedAt) <= cb.config.Timeout {
			return errors.New(errors.CodeInternal, "circuit open", nil).
				WithContext("breaker", cb.config.Name).
				WithRecoverable(true)
		}
		cb.transition(StateHalfOpen)
	}
	return nil
}

// record updates counters and state from one call outcome.
func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		switch cb.state {
		case StateHalfOpen:
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				cb.transition(StateClosed)
			}
		case StateClosed:
			cb.failures = 0
		}
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
		cb.transition(StateOpen)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the circuit closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
}

// Open forces the circuit open, starting the cool-down now.
func (cb *CircuitBreaker) Open() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateOpen)
}
