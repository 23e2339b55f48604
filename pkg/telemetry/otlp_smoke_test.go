package telemetry

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/core"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
)

// TestOTLPSmoke pushes the span and metric shapes a real orchestrator run
// produces through a live OTLP collector. Opt-in because it needs one.
func TestOTLPSmoke(t *testing.T) {
	if os.Getenv("HAF_OTLP_SMOKE_TEST") != "1" {
		t.Skip("set HAF_OTLP_SMOKE_TEST=1 to run")
	}

	endpoint := os.Getenv("HAF_TELEMETRY_ENDPOINT")
	if endpoint == "" {
		t.Skip("set HAF_TELEMETRY_ENDPOINT for OTLP smoke test")
	}

	cfg := Config{
		Exporter: "otlp",
		Endpoint: endpoint,
	}
	if os.Getenv("HAF_TELEMETRY_INSECURE") == "true" {
		cfg.Insecure = true
	}
	if raw := os.Getenv("HAF_TELEMETRY_TIMEOUT_SECONDS"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			cfg.TimeoutSeconds = parsed
		}
	}

	shutdown, err := InitWithConfig("haf-smoke", "v0.1.0", cfg)
	if err != nil {
		t.Fatalf("failed to init telemetry: %v", err)
	}

	ctx := core.WithRunID(context.Background(), "run-smoke")
	tracer := otel.Tracer("haf/orchestrator")

	ctx, runSpan := tracer.Start(ctx, "orchestrator.run",
		trace.WithAttributes(PlanAttributes("plan-smoke", "exercise the export path", 1)...))
	taskCtx, taskSpan := tracer.Start(core.WithTaskID(ctx, "task-1"), "task.execute",
		trace.WithAttributes(TaskAttributes("task-1", "verify collector ingest", "coder", "completed")...))
	taskSpan.End()
	runSpan.End()

	runMetrics, err := NewRunMetrics(taskCtx)
	if err != nil {
		t.Fatalf("run metrics: %v", err)
	}
	runMetrics.RecordRun(taskCtx, true)
	runMetrics.RecordTask(taskCtx, "coder", "completed", 42)
	runMetrics.RecordTokens(taskCtx, 120, 80)

	errMetrics, err := NewErrorMetrics(taskCtx)
	if err != nil {
		t.Fatalf("error metrics: %v", err)
	}
	errMetrics.RecordErrorMetric(taskCtx,
		errors.New(errors.CodeTimeout, "synthetic timeout", nil), "smoke")

	// Shutdown flushes both providers; no settle sleep needed.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdown(flushCtx); err != nil {
		t.Fatalf("telemetry shutdown failed: %v", err)
	}
}
