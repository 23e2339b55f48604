package core

import (
	"context"

	"github.com/google/uuid"
)

type runIDKey struct{}
type taskIDKey struct{}
type memoryKey struct{}

// WithRunID attaches a run id to the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the run id if present.
func RunID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok
}

// EnsureRunID ensures a run id exists in the context. Orchestrator and
// agents share one run id so audit records and logs correlate.
func EnsureRunID(ctx context.Context) (context.Context, string) {
	if id, ok := RunID(ctx); ok {
		return ctx, id
	}
	id := "run-" + uuid.NewString()[:8]
	return WithRunID(ctx, id), id
}

// WithTaskID attaches the id of the task being executed to the context.
// The scheduler sets it so agent events and audit records carry the task
// they ran for.
func WithTaskID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, taskIDKey{}, id)
}

// TaskIDFromContext returns the task id if present.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(taskIDKey{}).(string)
	return id, ok
}

// WithMemory attaches a memory backend to the context.
func WithMemory(ctx context.Context, mem Memory) context.Context {
	return context.WithValue(ctx, memoryKey{}, mem)
}

// MemoryFromContext returns the memory backend if present.
func MemoryFromContext(ctx context.Context) (Memory, bool) {
	mem, ok := ctx.Value(memoryKey{}).(Memory)
	return mem, ok
}
