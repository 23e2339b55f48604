package core

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
)

func staticChecker(status HealthStatus, msg string) HealthChecker {
	return HealthCheckerFunc(func(context.Context) HealthResult {
		return HealthResult{Status: status, Message: msg}
	})
}

func TestHealthStatusStrings(t *testing.T) {
	// The literal strings surface in CLI output and JSON reports.
	if HealthHealthy != "HEALTHY" || HealthDegraded != "DEGRADED" || HealthUnhealthy != "UNHEALTHY" {
		t.Fatalf("status constants changed: %s %s %s", HealthHealthy, HealthDegraded, HealthUnhealthy)
	}
}

func TestCheckAllAggregatesWorstStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []HealthStatus
		want     HealthStatus
	}{
		{"all healthy", []HealthStatus{HealthHealthy, HealthHealthy}, HealthHealthy},
		{"one degraded", []HealthStatus{HealthHealthy, HealthDegraded}, HealthDegraded},
		{"unhealthy wins", []HealthStatus{HealthDegraded, HealthUnhealthy, HealthHealthy}, HealthUnhealthy},
		{"empty registry", nil, HealthHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewHealthRegistry()
			for i, status := range tt.statuses {
				reg.Register(fmt.Sprintf("component-%d", i), staticChecker(status, "probe"))
			}

			results, overall := reg.CheckAll(context.Background())
			if len(results) != len(tt.statuses) {
				t.Fatalf("results = %d, want %d", len(results), len(tt.statuses))
			}
			if overall != tt.want {
				t.Errorf("overall = %s, want %s", overall, tt.want)
			}
		})
	}
}

func TestCheckAllOrdersByComponent(t *testing.T) {
	reg := NewHealthRegistry()
	for _, name := range []string{"provider:openai", "memory:qdrant", "mcp:files"} {
		reg.Register(name, staticChecker(HealthHealthy, "ok"))
	}

	results, _ := reg.CheckAll(context.Background())

	got := make([]string, len(results))
	for i, res := range results {
		got[i] = res.Component
	}
	want := []string{"mcp:files", "memory:qdrant", "provider:openai"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestCheckAllBackfillsComponentAndTimestamp(t *testing.T) {
	reg := NewHealthRegistry()
	reg.Register("memory", staticChecker(HealthHealthy, "reachable"))

	results, _ := reg.CheckAll(context.Background())
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Component != "memory" {
		t.Errorf("Component = %q, want registration name", results[0].Component)
	}
	if results[0].LastCheck.IsZero() {
		t.Error("LastCheck not backfilled")
	}
}

func TestCheckAllRunsCheckersConcurrently(t *testing.T) {
	// Each checker blocks until the other has started. Serial execution
	// would leave the first one waiting out the fallback timer.
	var entered atomic.Int32
	release := make(chan struct{})
	barrier := HealthCheckerFunc(func(ctx context.Context) HealthResult {
		if entered.Add(1) == 2 {
			close(release)
		}
		select {
		case <-release:
			return HealthResult{Status: HealthHealthy}
		case <-time.After(2 * time.Second):
			return HealthResult{Status: HealthUnhealthy, Message: "peer never started"}
		}
	})

	reg := NewHealthRegistry()
	reg.Register("first", barrier)
	reg.Register("second", barrier)

	_, overall := reg.CheckAll(context.Background())
	if overall != HealthHealthy {
		t.Errorf("overall = %s, want HEALTHY: checkers did not overlap", overall)
	}
}

func TestCheckByName(t *testing.T) {
	reg := NewHealthRegistry()
	reg.Register("provider", staticChecker(HealthDegraded, "slow"))

	res, err := reg.Check(context.Background(), "provider")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Status != HealthDegraded || res.Message != "slow" {
		t.Errorf("result = %+v", res)
	}

	_, err = reg.Check(context.Background(), "nonexistent")
	if !errors.HasCode(err, errors.CodeNotFound) {
		t.Errorf("unknown component error = %v, want NOT_FOUND", err)
	}
}

func TestCheckPassesContext(t *testing.T) {
	reg := NewHealthRegistry()
	reg.Register("slow-backend", HealthCheckerFunc(func(ctx context.Context) HealthResult {
		if ctx.Err() != nil {
			return HealthResult{Status: HealthUnhealthy, Message: ctx.Err().Error()}
		}
		return HealthResult{Status: HealthHealthy}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := reg.Check(ctx, "slow-backend")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Status != HealthUnhealthy {
		t.Errorf("Status = %s, want UNHEALTHY for canceled context", res.Status)
	}
}

func TestRegisterReplaces(t *testing.T) {
	reg := NewHealthRegistry()
	reg.Register("cache", staticChecker(HealthUnhealthy, "first"))
	reg.Register("cache", staticChecker(HealthHealthy, "second"))

	results, overall := reg.CheckAll(context.Background())
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if overall != HealthHealthy || results[0].Message != "second" {
		t.Errorf("replacement not applied: %+v", results[0])
	}
}
