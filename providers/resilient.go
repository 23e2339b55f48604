package providers

import (
	"context"
	"log/slog"
	"time"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/llm"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/resilience"
)

// Resilient is a provider chain with per-backend circuit breakers. A chat
// request goes to the first backend whose circuit admits it; on failure
// the next backend is tried. Backends that keep failing trip their
// breaker and are skipped without a network round trip until the
// cool-down elapses. Context cancellation stops the chain immediately.
type Resilient struct {
	chain    []llm.Provider
	breakers []*resilience.CircuitBreaker
	timeout  resilience.TimeoutConfig
}

// ResilientOption configures a Resilient provider.
type ResilientOption func(*resilientConfig)

type resilientConfig struct {
	breaker     resilience.CircuitBreakerConfig
	callTimeout time.Duration
}

// WithBreakerConfig overrides the circuit breaker settings applied to
// every backend in the chain. The Name field is ignored; each breaker is
// named after its backend.
func WithBreakerConfig(cfg resilience.CircuitBreakerConfig) ResilientOption {
	return func(c *resilientConfig) {
		c.breaker = cfg
	}
}

// WithCallTimeout bounds each backend attempt. Without it a hung backend
// holds the whole chain until the caller's context expires; with it the
// chain moves on to the next backend once the budget is spent.
func WithCallTimeout(d time.Duration) ResilientOption {
	return func(c *resilientConfig) {
		c.callTimeout = d
	}
}

// NewResilient builds a failover chain from primary plus backups, in
// order of preference.
func NewResilient(primary llm.Provider, backups ...llm.Provider) *Resilient {
	return NewResilientWithOptions(append([]llm.Provider{primary}, backups...))
}

// NewResilientWithOptions builds a failover chain over the given
// backends.
func NewResilientWithOptions(chain []llm.Provider, opts ...ResilientOption) *Resilient {
	cfg := resilientConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	r := &Resilient{
		chain:   chain,
		timeout: resilience.TimeoutConfig{Duration: cfg.callTimeout},
	}
	for _, backend := range chain {
		bcfg := cfg.breaker
		bcfg.Name = backend.Name()
		r.breakers = append(r.breakers, resilience.NewCircuitBreaker(bcfg))
	}
	return r
}

// Name reports the primary backend's name so logs and health output
// stay recognizable.
func (r *Resilient) Name() string {
	if len(r.chain) == 0 {
		return "resilient"
	}
	return r.chain[0].Name() + "+failover"
}

// Chat tries each backend in order until one answers.
func (r *Resilient) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if len(r.chain) == 0 {
		return nil, errors.New(errors.CodeValidation, "resilient provider has no backends", nil)
	}

	var lastErr error
	for i, backend := range r.chain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var resp *llm.ChatResponse
		err := r.breakers[i].Call(ctx, func() error {
			var callErr error
			resp, callErr = resilience.WithTimeoutResult(ctx, r.timeout, func(ctx context.Context) (*llm.ChatResponse, error) {
				return backend.Chat(ctx, req)
			})
			return callErr
		})
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if i+1 < len(r.chain) {
			slog.Debug("provider.failover",
				slog.String("from", backend.Name()),
				slog.String("to", r.chain[i+1].Name()),
				slog.String("error", err.Error()))
		}
	}

	return nil, errors.New(errors.CodeProvider, "all providers in the failover chain failed", lastErr).
		WithContext("chain_length", len(r.chain)).
		WithRecoverable(true)
}

var _ llm.Provider = (*Resilient)(nil)
