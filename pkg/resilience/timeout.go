package resilience

import (
	"context"
	"time"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
)

// TimeoutConfig bounds a single call.
type TimeoutConfig struct {
	// Duration is the time budget for the call. Zero disables the
	// boundary.
	Duration time.Duration
}

// WithTimeout runs fn under the timeout. fn receives a context carrying
// the deadline; if fn ignores it and hangs, the call is abandoned with a
// TIMEOUT error while fn's goroutine drains in the background.
func WithTimeout(ctx context.Context, config TimeoutConfig, fn func(ctx context.Context) error) error {
	_, err := WithTimeoutResult(ctx, config, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// WithTimeoutResult is WithTimeout for calls that produce a value.
func WithTimeoutResult[T any](ctx context.Context, config TimeoutConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	if config.Duration == 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, config.Duration)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := fn(callCtx)
		done <- result{value, err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-callCtx.Done():
		var zero T
		return zero, errors.New(errors.CodeTimeout, "operation exceeded timeout", callCtx.Err()).
			WithContext("timeout", config.Duration.String()).
			WithRecoverable(true)
	}
}
