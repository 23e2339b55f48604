package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
)

// HealthStatus grades the outcome of a component probe.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "HEALTHY"
	HealthDegraded  HealthStatus = "DEGRADED"
	HealthUnhealthy HealthStatus = "UNHEALTHY"
)

func (s HealthStatus) severity() int {
	switch s {
	case HealthUnhealthy:
		return 2
	case HealthDegraded:
		return 1
	default:
		return 0
	}
}

// HealthResult is one component's answer to a probe.
type HealthResult struct {
	Component string
	Status    HealthStatus
	Message   string
	Error     error
	LastCheck time.Time
}

// HealthChecker probes a single backend, typically an LLM provider, a
// memory store, or an MCP server. Checks must honor ctx so a hung backend
// comes back UNHEALTHY instead of stalling the whole sweep.
type HealthChecker interface {
	Check(ctx context.Context) HealthResult
}

// HealthCheckerFunc adapts a plain function to the HealthChecker interface.
type HealthCheckerFunc func(ctx context.Context) HealthResult

func (f HealthCheckerFunc) Check(ctx context.Context) HealthResult { return f(ctx) }

// HealthRegistry fans a health sweep out over named checkers and folds the
// answers into a single overall status.
type HealthRegistry struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthRegistry creates an empty health registry.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{checkers: make(map[string]HealthChecker)}
}

// Register adds a checker under a component name. Registering a name again
// replaces the previous checker.
func (r *HealthRegistry) Register(name string, checker HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
}

// CheckAll probes every registered checker concurrently and returns the
// results ordered by component name. The overall status is the worst
// individual status, so one UNHEALTHY backend marks the sweep UNHEALTHY.
func (r *HealthRegistry) CheckAll(ctx context.Context) ([]HealthResult, HealthStatus) {
	r.mu.RLock()
	snapshot := make(map[string]HealthChecker, len(r.checkers))
	for name, checker := range r.checkers {
		snapshot[name] = checker
	}
	r.mu.RUnlock()

	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]HealthResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string, checker HealthChecker) {
			defer wg.Done()
			results[i] = normalizeResult(name, checker.Check(ctx))
		}(i, name, snapshot[name])
	}
	wg.Wait()

	overall := HealthHealthy
	for _, res := range results {
		if res.Status.severity() > overall.severity() {
			overall = res.Status
		}
	}
	return results, overall
}

// Check probes a single component by name.
func (r *HealthRegistry) Check(ctx context.Context, name string) (HealthResult, error) {
	r.mu.RLock()
	checker, ok := r.checkers[name]
	r.mu.RUnlock()
	if !ok {
		return HealthResult{}, errors.Newf(errors.CodeNotFound, "no health checker registered for %q", name)
	}
	return normalizeResult(name, checker.Check(ctx)), nil
}

// normalizeResult backfills the component name and timestamp so checkers
// only have to report status and message.
func normalizeResult(name string, res HealthResult) HealthResult {
	if res.Component == "" {
		res.Component = name
	}
	if res.LastCheck.IsZero() {
		res.LastCheck = time.Now()
	}
	return res
}
