package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/core"
)

// ConfigureSlog sets the global slog logger. Records pick up trace_id,
// span_id, run_id, and task_id from the context so agent logs correlate
// with spans and audit records.
func ConfigureSlog(output io.Writer, level, format string) *slog.Logger {
	handler := newSlogHandler(output, level, format)
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func newSlogHandler(output io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(level),
	}
	var base slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		base = slog.NewJSONHandler(output, opts)
	default:
		base = slog.NewTextHandler(output, opts)
	}
	return &contextHandler{next: base}
}

// contextHandler decorates records with correlation ids from the context.
// Explicit attributes win over injected ones.
type contextHandler struct {
	next slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, record slog.Record) error {
	if ctx == nil {
		ctx = context.Background()
	}

	present := make(map[string]bool, record.NumAttrs())
	record.Attrs(func(attr slog.Attr) bool {
		present[attr.Key] = true
		return true
	})
	add := func(key, value string) {
		if value != "" && !present[key] {
			record.AddAttrs(slog.String(key, value))
		}
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		add("trace_id", sc.TraceID().String())
		add("span_id", sc.SpanID().String())
	}
	if runID, ok := core.RunID(ctx); ok {
		add("run_id", runID)
	}
	if taskID, ok := core.TaskIDFromContext(ctx); ok {
		add("task_id", taskID)
	}
	return h.next.Handle(ctx, record)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name)}
}

// parseLogLevel accepts the slog level names plus "warning". Anything
// unrecognized falls back to info.
func parseLogLevel(level string) slog.Level {
	text := strings.TrimSpace(level)
	if strings.EqualFold(text, "warning") {
		text = "warn"
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(text)); err != nil {
		return slog.LevelInfo
	}
	return l
}
