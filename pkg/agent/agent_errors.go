package agent

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/telemetry"
)

// ErrorMetricsIntegration wraps telemetry.ErrorMetrics for the agent
// runtime. A nil or disabled integration degrades to no-ops so runs never
// fail because metrics could not be set up.
type ErrorMetricsIntegration struct {
	metrics *telemetry.ErrorMetrics
	enabled bool
}

var (
	globalErrorMetrics     *ErrorMetricsIntegration
	globalErrorMetricsOnce sync.Once
)

// InitErrorMetrics initializes the global error metrics for agents. Call
// once during application startup; later calls return the first result.
func InitErrorMetrics(ctx context.Context) *ErrorMetricsIntegration {
	globalErrorMetricsOnce.Do(func() {
		metrics, err := telemetry.NewErrorMetrics(ctx)
		if err != nil {
			globalErrorMetrics = &ErrorMetricsIntegration{enabled: false}
			return
		}
		globalErrorMetrics = &ErrorMetricsIntegration{
			metrics: metrics,
			enabled: true,
		}
	})
	return globalErrorMetrics
}

// GetErrorMetrics returns the global error metrics integration, or nil if
// InitErrorMetrics was never called.
func GetErrorMetrics() *ErrorMetricsIntegration {
	return globalErrorMetrics
}

// RecordError records an error metric for the given component.
func (e *ErrorMetricsIntegration) RecordError(ctx context.Context, err error, component string) {
	if e == nil || !e.enabled || e.metrics == nil {
		return
	}
	e.metrics.RecordErrorMetric(ctx, err, component)
}

// RecordRecovery records a successful recovery for the given error code.
func (e *ErrorMetricsIntegration) RecordRecovery(ctx context.Context, code errors.ErrorCode) {
	if e == nil || !e.enabled || e.metrics == nil {
		return
	}
	e.metrics.RecordRecovery(ctx, code)
}

// WrapProviderError classifies a provider failure surfaced by the retry
// layer. Errors already carrying a framework code pass through unchanged;
// bare context cancellation maps to a timeout; anything else becomes a
// recoverable provider error.
func WrapProviderError(err error, provider, model string) error {
	if err == nil {
		return nil
	}
	var fe *errors.FrameworkError
	if stderrors.As(err, &fe) {
		return err
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.New(errors.CodeTimeout, "provider call canceled", err).
			WithContext("provider", provider).
			WithContext("model", model)
	}
	return errors.New(errors.CodeProvider, "provider call failed", err).
		WithContext("provider", provider).
		WithContext("model", model).
		WithAttribute("llm.model", model).
		WithRecoverable(true)
}
