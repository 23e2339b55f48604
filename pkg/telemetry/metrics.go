package telemetry

import (
	"context"
	stderrors "errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
)

// ErrorMetrics tracks error rates, types, and recovery patterns.
type ErrorMetrics struct {
	errorCounter    metric.Int64Counter
	recoveryCounter metric.Int64Counter
	errorRateGauge  metric.Float64Gauge
}

// NewErrorMetrics creates error tracking instruments with OTEL meters.
func NewErrorMetrics(ctx context.Context) (*ErrorMetrics, error) {
	meter := otel.Meter("haf/errors")

	var em ErrorMetrics
	var err error

	em.errorCounter, err = meter.Int64Counter(
		"haf.errors.total",
		metric.WithDescription("Errors observed by code and component"),
	)
	if err != nil {
		return nil, err
	}

	em.recoveryCounter, err = meter.Int64Counter(
		"haf.errors.recovered",
		metric.WithDescription("Retries that recovered, by error code"),
	)
	if err != nil {
		return nil, err
	}

	em.errorRateGauge, err = meter.Float64Gauge(
		"haf.errors.rate",
		metric.WithDescription("Errors per minute by component"),
	)
	if err != nil {
		return nil, err
	}

	return &em, nil
}

// RecordErrorMetric counts an error against a component. Framework errors
// carry their code and recoverability; anything else counts as UNKNOWN.
func (em *ErrorMetrics) RecordErrorMetric(ctx context.Context, err error, component string) {
	if em == nil || err == nil {
		return
	}

	code, recoverable := "UNKNOWN", "unknown"
	var fe *errors.FrameworkError
	if stderrors.As(err, &fe) {
		code = string(fe.Code)
		recoverable = fe.RecoverableString()
	}
	em.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.code", code),
		attribute.String("component", component),
		attribute.String("recoverable", recoverable),
	))
}

// RecordRecovery counts a recoverable failure that a later attempt cleared.
func (em *ErrorMetrics) RecordRecovery(ctx context.Context, errorCode errors.ErrorCode) {
	if em == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("error.code", string(errorCode)))
	em.recoveryCounter.Add(ctx, 1, attrs)
}

// RecordErrorRate records the current error rate for a component.
func (em *ErrorMetrics) RecordErrorRate(ctx context.Context, component string, ratePerMinute float64) {
	if em == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("component", component))
	em.errorRateGauge.Record(ctx, ratePerMinute, attrs)
}

// RunMetrics tracks orchestrator and agent run outcomes.
type RunMetrics struct {
	runCounter         metric.Int64Counter
	taskCounter        metric.Int64Counter
	iterationHistogram metric.Int64Histogram
	tokenCounter       metric.Int64Counter
	taskDuration       metric.Float64Histogram
}

// NewRunMetrics creates run metrics instruments with OTEL meters.
func NewRunMetrics(ctx context.Context) (*RunMetrics, error) {
	meter := otel.Meter("haf/runs")

	var rm RunMetrics
	var err error

	rm.runCounter, err = meter.Int64Counter(
		"haf.runs.total",
		metric.WithDescription("Orchestrator runs by outcome"),
	)
	if err != nil {
		return nil, err
	}

	rm.taskCounter, err = meter.Int64Counter(
		"haf.tasks.total",
		metric.WithDescription("Scheduled subtasks by terminal status"),
	)
	if err != nil {
		return nil, err
	}

	rm.iterationHistogram, err = meter.Int64Histogram(
		"haf.agent.iterations",
		metric.WithDescription("Iterations consumed per agent run"),
	)
	if err != nil {
		return nil, err
	}

	rm.tokenCounter, err = meter.Int64Counter(
		"haf.tokens.total",
		metric.WithDescription("Tokens consumed by direction"),
	)
	if err != nil {
		return nil, err
	}

	rm.taskDuration, err = meter.Float64Histogram(
		"haf.task.duration_ms",
		metric.WithDescription("Subtask wall time in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	return &rm, nil
}

// RecordRun records one orchestrator run outcome.
func (rm *RunMetrics) RecordRun(ctx context.Context, success bool) {
	if rm == nil {
		return
	}
	rm.runCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("success", success)),
	)
}

// RecordTask records a subtask reaching a terminal status.
func (rm *RunMetrics) RecordTask(ctx context.Context, role, status string, durationMs float64) {
	if rm == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("role", role),
		attribute.String("status", status),
	)
	rm.taskCounter.Add(ctx, 1, attrs)
	if durationMs > 0 {
		rm.taskDuration.Record(ctx, durationMs, attrs)
	}
}

// RecordIterations records the iteration count of a finished agent run.
func (rm *RunMetrics) RecordIterations(ctx context.Context, role string, iterations int) {
	if rm == nil {
		return
	}
	rm.iterationHistogram.Record(ctx, int64(iterations),
		metric.WithAttributes(attribute.String("role", role)),
	)
}

// RecordTokens records token usage for one run.
func (rm *RunMetrics) RecordTokens(ctx context.Context, promptTokens, completionTokens int) {
	if rm == nil {
		return
	}
	if promptTokens > 0 {
		rm.tokenCounter.Add(ctx, int64(promptTokens),
			metric.WithAttributes(attribute.String("direction", "prompt")),
		)
	}
	if completionTokens > 0 {
		rm.tokenCounter.Add(ctx, int64(completionTokens),
			metric.WithAttributes(attribute.String("direction", "completion")),
		)
	}
}
