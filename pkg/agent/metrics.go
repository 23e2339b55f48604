package agent

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	agentMetricsOnce  sync.Once
	agentRunCounter   metric.Int64Counter
	agentErrorCounter metric.Int64Counter
	agentRunLatencyMs metric.Float64Histogram
	llmLatencyMs      metric.Float64Histogram
	toolLatencyMs     metric.Float64Histogram
)

// initAgentMetrics creates the package instruments lazily, after the
// application has had a chance to install its meter provider. Instruments
// that fail to build stay nil and recording is skipped.
func initAgentMetrics() {
	agentMetricsOnce.Do(func() {
		meter := otel.Meter("haf/agent")
		agentRunCounter, _ = meter.Int64Counter(
			"haf.agent.runs",
			metric.WithDescription("Agent runs started, by role"),
		)
		agentErrorCounter, _ = meter.Int64Counter(
			"haf.agent.run.errors",
			metric.WithDescription("Agent runs that ended in error, by code"),
		)
		agentRunLatencyMs, _ = meter.Float64Histogram(
			"haf.agent.run.duration_ms",
			metric.WithDescription("Agent run wall time in milliseconds"),
		)
		llmLatencyMs, _ = meter.Float64Histogram(
			"haf.llm.duration_ms",
			metric.WithDescription("LLM call latency in milliseconds"),
		)
		toolLatencyMs, _ = meter.Float64Histogram(
			"haf.tool.duration_ms",
			metric.WithDescription("Tool call latency in milliseconds"),
		)
	})
}

// traceIDs extracts the span's trace and span ids for log correlation.
func traceIDs(span trace.Span) (string, string) {
	sc := span.SpanContext()
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
