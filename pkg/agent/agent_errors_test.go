package agent

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/core"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/memory"
)

func TestWrapProviderError(t *testing.T) {
	if got := WrapProviderError(nil, "stub", "m1"); got != nil {
		t.Fatalf("nil error wrapped to %v", got)
	}

	// Framework errors keep their original code.
	rate := errors.Newf(errors.CodeRateLimit, "slow down")
	if got := WrapProviderError(rate, "stub", "m1"); !errors.HasCode(got, errors.CodeRateLimit) {
		t.Fatalf("framework error reclassified: %v", got)
	}

	// Bare context errors become timeouts.
	for _, cause := range []error{context.Canceled, context.DeadlineExceeded} {
		got := WrapProviderError(cause, "stub", "m1")
		if !errors.HasCode(got, errors.CodeTimeout) {
			t.Fatalf("%v wrapped to %v", cause, got)
		}
		if !stderrors.Is(got, cause) {
			t.Fatalf("cause not preserved for %v", cause)
		}
	}

	// Anything else is a recoverable provider failure.
	got := WrapProviderError(stderrors.New("socket closed"), "stub", "m1")
	if !errors.HasCode(got, errors.CodeProvider) {
		t.Fatalf("foreign error wrapped to %v", got)
	}
	fe := errors.AsFrameworkError(got)
	if !fe.Recoverable {
		t.Fatal("provider errors must be recoverable")
	}
	if fe.Context["provider"] != "stub" || fe.Context["model"] != "m1" {
		t.Fatalf("context = %v", fe.Context)
	}
}

func TestErrorMetricsIntegration(t *testing.T) {
	ctx := context.Background()

	em := InitErrorMetrics(ctx)
	if em == nil {
		t.Fatal("InitErrorMetrics returned nil")
	}
	if GetErrorMetrics() != em {
		t.Fatal("global integration not set")
	}

	// Recording never panics, enabled or not.
	em.RecordError(ctx, errors.Newf(errors.CodeToolExecution, "boom"), "test-component")
	em.RecordRecovery(ctx, errors.CodeToolExecution)

	var nilIntegration *ErrorMetricsIntegration
	nilIntegration.RecordError(ctx, stderrors.New("x"), "test-component")
	nilIntegration.RecordRecovery(ctx, errors.CodeInternal)
}

func TestAgentHealthChecker(t *testing.T) {
	reg, _ := newEchoRegistry(t)
	provider := &stubProvider{steps: []scriptedStep{{resp: contentResponse("ok")}}}
	a, err := New("a1", provider, WithTools(reg))
	if err != nil {
		t.Fatalf("agent creation failed: %v", err)
	}

	result := NewAgentHealthChecker(a).Check(context.Background())
	if result.Component != "agent:a1" {
		t.Fatalf("component = %q", result.Component)
	}
	if result.Status != core.HealthHealthy {
		t.Fatalf("status = %v, message = %q", result.Status, result.Message)
	}
	if result.LastCheck.IsZero() {
		t.Fatal("last check not stamped")
	}
}

func TestAgentHealthCheckerNoTools(t *testing.T) {
	provider := &stubProvider{steps: []scriptedStep{{resp: contentResponse("ok")}}}
	a, err := New("a1", provider)
	if err != nil {
		t.Fatalf("agent creation failed: %v", err)
	}

	result := NewAgentHealthChecker(a).Check(context.Background())
	if result.Status != core.HealthDegraded {
		t.Fatalf("status = %v, want degraded", result.Status)
	}
}

func TestAgentHealthCheckerNoProvider(t *testing.T) {
	result := NewAgentHealthChecker(&Agent{id: "bare"}).Check(context.Background())
	if result.Status != core.HealthUnhealthy {
		t.Fatalf("status = %v, want unhealthy", result.Status)
	}
	if result.Message != "provider not configured" {
		t.Fatalf("message = %q", result.Message)
	}
}

func TestProviderHealthChecker(t *testing.T) {
	probed := false
	checker := NewProviderHealthChecker("stub", func(_ context.Context) error {
		probed = true
		return nil
	})

	result := checker.Check(context.Background())
	if !probed {
		t.Fatal("probe was not called")
	}
	if result.Status != core.HealthHealthy || result.Component != "provider:stub" {
		t.Fatalf("result = %+v", result)
	}
}

func TestProviderHealthCheckerProbeFailure(t *testing.T) {
	checker := NewProviderHealthChecker("stub", func(_ context.Context) error {
		return stderrors.New("connection refused")
	})

	result := checker.Check(context.Background())
	if result.Status != core.HealthUnhealthy {
		t.Fatalf("status = %v", result.Status)
	}
	if result.Error == nil {
		t.Fatal("probe error not carried")
	}
}

func TestProviderHealthCheckerNoProbe(t *testing.T) {
	result := NewProviderHealthChecker("stub", nil).Check(context.Background())
	if result.Status != core.HealthHealthy {
		t.Fatalf("status = %v", result.Status)
	}
}

func TestProviderHealthCheckerCache(t *testing.T) {
	calls := 0
	checker := NewProviderHealthChecker("stub", func(_ context.Context) error {
		calls++
		return nil
	})
	checker.cache.ttl = 50 * time.Millisecond

	ctx := context.Background()
	checker.Check(ctx)
	checker.Check(ctx)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (second check cached)", calls)
	}

	time.Sleep(80 * time.Millisecond)
	checker.Check(ctx)
	if calls != 2 {
		t.Fatalf("calls = %d, want 2 after cache expiry", calls)
	}
}

func TestMemoryHealthChecker(t *testing.T) {
	// An empty backend answers not-found, which still counts as reachable.
	result := NewMemoryHealthChecker("inmemory", memory.NewInMemory()).Check(context.Background())
	if result.Status != core.HealthHealthy {
		t.Fatalf("status = %v, message = %q", result.Status, result.Message)
	}
	if result.Component != "memory:inmemory" {
		t.Fatalf("component = %q", result.Component)
	}
}

func TestMemoryHealthCheckerNotConfigured(t *testing.T) {
	result := NewMemoryHealthChecker("inmemory", nil).Check(context.Background())
	if result.Status != core.HealthUnhealthy {
		t.Fatalf("status = %v", result.Status)
	}
}

func TestMemoryHealthCheckerBackendFailure(t *testing.T) {
	result := NewMemoryHealthChecker("vector", failingMemory{}).Check(context.Background())
	if result.Status != core.HealthDegraded {
		t.Fatalf("status = %v", result.Status)
	}
	if !strings.Contains(result.Message, "backend down") {
		t.Fatalf("message = %q", result.Message)
	}
}

func TestMCPHealthChecker(t *testing.T) {
	checker := NewMCPHealthChecker("files", func(_ context.Context) (int, error) {
		return 5, nil
	})

	result := checker.Check(context.Background())
	if result.Status != core.HealthHealthy {
		t.Fatalf("status = %v", result.Status)
	}
	if !strings.Contains(result.Message, "5 tools") {
		t.Fatalf("message = %q", result.Message)
	}
}

func TestMCPHealthCheckerDiscoveryFailure(t *testing.T) {
	checker := NewMCPHealthChecker("files", func(_ context.Context) (int, error) {
		return 0, stderrors.New("server gone")
	})

	result := checker.Check(context.Background())
	if result.Status != core.HealthUnhealthy {
		t.Fatalf("status = %v", result.Status)
	}
}

type failingMemory struct{}

func (failingMemory) Store(context.Context, any) error { return stderrors.New("backend down") }

func (failingMemory) Retrieve(context.Context, any) (any, error) {
	return nil, stderrors.New("backend down")
}
