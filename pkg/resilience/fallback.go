package resilience

import (
	"context"
)

// FallbackStrategy produces a substitute result after a primary
// operation has failed.
type FallbackStrategy interface {
	Execute(ctx context.Context, primaryErr error) (any, error)
}

// FallbackFunc adapts a function to the FallbackStrategy interface.
type FallbackFunc func(ctx context.Context, primaryErr error) (any, error)

func (f FallbackFunc) Execute(ctx context.Context, primaryErr error) (any, error) {
	return f(ctx, primaryErr)
}

// StaticFallback swallows the failure and returns a fixed value.
type StaticFallback struct {
	Value any
}

func (s *StaticFallback) Execute(context.Context, error) (any, error) {
	return s.Value, nil
}

// ChainedFallback tries strategies in order until one succeeds. Each
// strategy sees the error of the previous attempt, not the original.
type ChainedFallback struct {
	Fallbacks []FallbackStrategy
}

func (c *ChainedFallback) Execute(ctx context.Context, primaryErr error) (any, error) {
	lastErr := primaryErr
	for _, fallback := range c.Fallbacks {
		value, err := fallback.Execute(ctx, lastErr)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// WithFallback runs fn and, on error, delegates to the fallback strategy.
func WithFallback(ctx context.Context, fn func() (any, error), fallback FallbackStrategy) (any, error) {
	value, err := fn()
	if err == nil {
		return value, nil
	}
	return fallback.Execute(ctx, err)
}
