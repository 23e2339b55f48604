// Package resilience provides retry and timeout patterns for provider and
// tool calls.
package resilience

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"time"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
)

// RetryConfig controls retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxAttempts bounds the total number of calls, first try included.
	MaxAttempts int

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the grown backoff delay. Zero leaves it uncapped.
	MaxDelay time.Duration

	// Multiplier grows the delay after each retry (default 2.0).
	Multiplier float64

	// IsRecoverable decides whether an error is worth retrying. Nil
	// honors the FrameworkError recoverable flag and retries the rest.
	IsRecoverable func(error) bool

	// Jitter spreads delays by the given fraction, 0.1 meaning +-10%,
	// so synchronized callers do not retry in lockstep.
	Jitter float64

	// OnRetry, when set, observes every scheduled retry before its
	// backoff wait. Used for logging; must not block.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryConfig returns the retry policy used for provider calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		Multiplier:    2.0,
		Jitter:        0.1,
		IsRecoverable: isRecoverableDefault,
	}
}

// WithMaxAttempts returns a copy of the config with MaxAttempts set.
func (rc RetryConfig) WithMaxAttempts(max int) RetryConfig {
	rc.MaxAttempts = max
	return rc
}

// WithInitialDelay returns a copy of the config with InitialDelay set.
func (rc RetryConfig) WithInitialDelay(d time.Duration) RetryConfig {
	rc.InitialDelay = d
	return rc
}

// WithMaxDelay returns a copy of the config with MaxDelay set.
func (rc RetryConfig) WithMaxDelay(d time.Duration) RetryConfig {
	rc.MaxDelay = d
	return rc
}

// WithIsRecoverable returns a copy of the config with IsRecoverable set.
func (rc RetryConfig) WithIsRecoverable(fn func(error) bool) RetryConfig {
	rc.IsRecoverable = fn
	return rc
}

// Do runs fn until it succeeds, fails unrecoverably, or MaxAttempts is
// spent, backing off between attempts. Cancellation during a backoff wait
// surfaces as a TIMEOUT error; cancellation during fn is fn's concern.
func (rc RetryConfig) Do(ctx context.Context, fn func() error) error {
	attempts := rc.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	recoverable := rc.IsRecoverable
	if recoverable == nil {
		recoverable = isRecoverableDefault
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !recoverable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := calculateBackoff(attempt, rc)
		if rc.OnRetry != nil {
			rc.OnRetry(attempt, delay, err)
		}
		select {
		case <-ctx.Done():
			return errors.New(errors.CodeTimeout, "context canceled during retry", ctx.Err()).
				WithContext("attempt", attempt).
				WithContext("max_attempts", attempts)
		case <-time.After(delay):
		}
	}

	return lastErr
}

// DoWithResult is Do for calls that produce a value.
func DoWithResult[T any](ctx context.Context, rc RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	err := rc.Do(ctx, func() error {
		var fnErr error
		result, fnErr = fn()
		return fnErr
	})
	return result, err
}

// calculateBackoff returns the wait before the attempt'th retry: the
// initial delay grown by the multiplier per retry, capped at MaxDelay,
// with multiplicative jitter applied last.
func calculateBackoff(attempt int, rc RetryConfig) time.Duration {
	multiplier := rc.Multiplier
	if multiplier == 0 {
		multiplier = 2.0
	}

	delay := float64(rc.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	if rc.MaxDelay > 0 && delay > float64(rc.MaxDelay) {
		delay = float64(rc.MaxDelay)
	}
	if rc.Jitter > 0 {
		delay *= 1 + rc.Jitter*(2*rand.Float64()-1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// isRecoverableDefault honors the FrameworkError recoverable flag anywhere
// in the chain. Foreign errors default to recoverable; callers needing
// finer control pass their own IsRecoverable.
func isRecoverableDefault(err error) bool {
	if err == nil {
		return false
	}
	var fe *errors.FrameworkError
	if stderrors.As(err, &fe) {
		return fe.Recoverable
	}
	return true
}
