package agent

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/core"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/memory"
)

// healthCache rate-limits health probes. Checks inside the TTL return
// the cached result so frequent CheckAll sweeps do not hammer backends.
type healthCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	checked time.Time
	last    core.HealthResult
}

func (c *healthCache) check(fn func() core.HealthResult) core.HealthResult {
	c.mu.RLock()
	if c.fresh() {
		result := c.last
		c.mu.RUnlock()
		return result
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fresh() {
		return c.last
	}
	c.last = fn()
	c.checked = time.Now()
	return c.last
}

// fresh reports whether the cached result is still inside the TTL.
// Callers hold at least the read lock.
func (c *healthCache) fresh() bool {
	return time.Since(c.checked) < c.ttl && !c.last.LastCheck.IsZero()
}

// AgentHealthChecker reports whether an agent is able to run: it needs a
// provider and, to be fully operational, at least one tool.
type AgentHealthChecker struct {
	agent *Agent
	cache healthCache
}

// NewAgentHealthChecker creates a checker for agent readiness.
func NewAgentHealthChecker(agent *Agent) *AgentHealthChecker {
	return &AgentHealthChecker{
		agent: agent,
		cache: healthCache{ttl: 5 * time.Second},
	}
}

// Check implements core.HealthChecker.
func (h *AgentHealthChecker) Check(_ context.Context) core.HealthResult {
	return h.cache.check(func() core.HealthResult {
		result := core.HealthResult{
			Component: "agent:" + h.agent.id,
			LastCheck: time.Now(),
		}
		switch {
		case h.agent.provider == nil:
			result.Status = core.HealthUnhealthy
			result.Message = "provider not configured"
		case h.agent.resolveTools().Len() == 0:
			result.Status = core.HealthDegraded
			result.Message = "no tools available"
		default:
			result.Status = core.HealthHealthy
			result.Message = "agent ready"
		}
		return result
	})
}

// ProviderHealthChecker probes an LLM provider. The probe is typically a
// minimal chat request; a nil probe reports healthy without checking.
type ProviderHealthChecker struct {
	name  string
	probe func(ctx context.Context) error
	cache healthCache
}

// NewProviderHealthChecker creates a checker for an LLM provider.
func NewProviderHealthChecker(name string, probe func(ctx context.Context) error) *ProviderHealthChecker {
	return &ProviderHealthChecker{
		name:  name,
		probe: probe,
		cache: healthCache{ttl: 30 * time.Second},
	}
}

// Check implements core.HealthChecker.
func (h *ProviderHealthChecker) Check(ctx context.Context) core.HealthResult {
	return h.cache.check(func() core.HealthResult {
		result := core.HealthResult{
			Component: "provider:" + h.name,
			LastCheck: time.Now(),
		}
		if h.probe == nil {
			result.Status = core.HealthHealthy
			result.Message = "provider configured (no probe)"
			return result
		}

		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := h.probe(probeCtx); err != nil {
			result.Status = core.HealthUnhealthy
			result.Message = err.Error()
			result.Error = err
		} else {
			result.Status = core.HealthHealthy
			result.Message = "provider responsive"
		}
		return result
	})
}

// MemoryHealthChecker probes a memory backend with a retrieve. An empty
// backend answers not-found, which still proves it is reachable.
type MemoryHealthChecker struct {
	name   string
	memory core.Memory
	cache  healthCache
}

// NewMemoryHealthChecker creates a checker for a memory backend.
func NewMemoryHealthChecker(name string, mem core.Memory) *MemoryHealthChecker {
	return &MemoryHealthChecker{
		name:   name,
		memory: mem,
		cache:  healthCache{ttl: 10 * time.Second},
	}
}

// Check implements core.HealthChecker.
func (h *MemoryHealthChecker) Check(ctx context.Context) core.HealthResult {
	return h.cache.check(func() core.HealthResult {
		result := core.HealthResult{
			Component: "memory:" + h.name,
			LastCheck: time.Now(),
		}
		if h.memory == nil {
			result.Status = core.HealthUnhealthy
			result.Message = "no memory backend configured"
			return result
		}

		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, err := h.memory.Retrieve(probeCtx, nil)
		switch {
		case err == nil || stderrors.Is(err, memory.ErrNotFound):
			result.Status = core.HealthHealthy
			result.Message = "memory backend reachable"
		default:
			result.Status = core.HealthDegraded
			result.Message = "retrieve probe failed: " + err.Error()
			result.Error = err
		}
		return result
	})
}

// MCPHealthChecker probes an MCP server through tool discovery.
type MCPHealthChecker struct {
	name      string
	listTools func(ctx context.Context) (int, error)
	cache     healthCache
}

// NewMCPHealthChecker creates a checker for an MCP server. listTools
// returns how many tools the server advertises.
func NewMCPHealthChecker(name string, listTools func(ctx context.Context) (int, error)) *MCPHealthChecker {
	return &MCPHealthChecker{
		name:      name,
		listTools: listTools,
		cache:     healthCache{ttl: 30 * time.Second},
	}
}

// Check implements core.HealthChecker.
func (h *MCPHealthChecker) Check(ctx context.Context) core.HealthResult {
	return h.cache.check(func() core.HealthResult {
		result := core.HealthResult{
			Component: "mcp:" + h.name,
			LastCheck: time.Now(),
		}
		if h.listTools == nil {
			result.Status = core.HealthHealthy
			result.Message = "mcp client configured (no probe)"
			return result
		}

		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		count, err := h.listTools(probeCtx)
		if err != nil {
			result.Status = core.HealthUnhealthy
			result.Message = "mcp tool discovery failed: " + err.Error()
			result.Error = err
		} else {
			result.Status = core.HealthHealthy
			result.Message = fmt.Sprintf("mcp server operational (%d tools)", count)
		}
		return result
	})
}

var (
	_ core.HealthChecker = (*AgentHealthChecker)(nil)
	_ core.HealthChecker = (*ProviderHealthChecker)(nil)
	_ core.HealthChecker = (*MemoryHealthChecker)(nil)
	_ core.HealthChecker = (*MCPHealthChecker)(nil)
)
