package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/config"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/core"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/llm"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/mcp/pool"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/memory"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/memory/ollama"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/memory/qdrant"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/orchestrator"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/telemetry"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/tools"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/tools/builtin"
	"github.com/sarthakbahal/hierarchical-agent-framework/providers"
)

// app holds the wired subsystems a command needs. Build order matters:
// config and logging come first so every later failure is logged, and
// shutdown funcs run in reverse registration order on Close.
type app struct {
	cfg      *config.Config
	provider llm.Provider
	registry *tools.Registry
	memory   core.Memory
	pool     *pool.Pool
	audit    orchestrator.AuditStore

	shutdown []func()
}

// appOptions selects which subsystems to wire. Commands that never touch
// the model (tools list) skip the provider so they work offline.
type appOptions struct {
	provider bool
	memory   bool
	mcp      bool
	audit    bool
}

func buildApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.LoadWithCLI(config.CLIOptions{
		ConfigPath: global.ConfigPath,
		Profile:    global.Profile,
		Sets:       global.Sets,
	})
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.SetDefault(telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format))

	a := &app{cfg: cfg, registry: tools.NewRegistry()}

	if cfg.Telemetry.Enabled {
		service := cfg.Telemetry.ServiceName
		if service == "" {
			service = "haf"
		}
		stop, err := telemetry.InitWithConfig(service, version, telemetry.Config{
			Exporter:    cfg.Telemetry.Exporter,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		a.shutdown = append(a.shutdown, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := stop(ctx); err != nil {
				slog.Warn("cli.telemetry.shutdown", slog.String("error", err.Error()))
			}
		})
	}

	if opts.provider {
		provider, err := providers.New(ctx, cfg.LLM)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.provider = provider
	}

	if err := builtin.RegisterAll(a.registry, cfg.Tools); err != nil {
		a.Close()
		return nil, err
	}

	if opts.memory && cfg.Memory.Enabled {
		mem, closeMem, err := buildMemory(ctx, cfg.Memory)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init memory: %w", err)
		}
		a.memory = mem
		if closeMem != nil {
			a.shutdown = append(a.shutdown, closeMem)
		}
		for _, tool := range memory.Tools(mem) {
			if err := a.registry.Register(tool); err != nil {
				a.Close()
				return nil, err
			}
		}
	}

	if opts.mcp && len(cfg.MCP.Servers) > 0 {
		a.pool = pool.New()
		a.shutdown = append(a.shutdown, func() { _ = a.pool.Close() })
		for _, server := range cfg.MCP.Servers {
			if err := a.pool.Register(poolServerConfig(server)); err != nil {
				a.Close()
				return nil, fmt.Errorf("register mcp server %q: %w", server.Name, err)
			}
			names, err := a.pool.Attach(ctx, a.registry, server.Name)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("attach mcp server %q: %w", server.Name, err)
			}
			slog.Info("cli.mcp.attached",
				slog.String("server", server.Name),
				slog.Int("tools", len(names)))
		}
	}

	if opts.audit {
		store, closeStore, err := buildAuditStore(cfg.Audit)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init audit store: %w", err)
		}
		a.audit = store
		if closeStore != nil {
			a.shutdown = append(a.shutdown, closeStore)
		}
	}

	return a, nil
}

// runContext is the context commands should execute under: memory is
// threaded through it so role agents spawned by the orchestrator can
// reach the shared backend.
func (a *app) runContext(ctx context.Context) context.Context {
	if a.memory != nil {
		return core.WithMemory(ctx, a.memory)
	}
	return ctx
}

func (a *app) Close() {
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		a.shutdown[i]()
	}
	a.shutdown = nil
}

func buildMemory(ctx context.Context, cfg config.MemoryConfig) (core.Memory, func(), error) {
	switch cfg.Provider {
	case "inmemory":
		return memory.NewInMemory(), nil, nil
	case "vector", "":
		store, err := qdrant.New(cfg.QdrantAddr)
		if err != nil {
			return nil, nil, err
		}
		embedder := ollama.NewEmbedder(cfg.EmbedderBaseURL, cfg.EmbedderModel)
		vm, err := memory.NewVectorMemory(store, embedder, cfg.Collection)
		if err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		if err := vm.Initialize(ctx); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		return vm, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown memory provider %q", cfg.Provider)
	}
}

func buildAuditStore(cfg config.AuditConfig) (orchestrator.AuditStore, func(), error) {
	if cfg.Store == "sqlite" {
		path := cfg.SQLitePath
		if path == "" {
			path = "haf_audit.db"
		}
		store, err := orchestrator.OpenSQLiteAuditStore(path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
	return orchestrator.NewMemoryAuditStore(), nil, nil
}

func poolServerConfig(cfg config.MCPServerConfig) pool.ServerConfig {
	sc := pool.ServerConfig{
		Name:    cfg.Name,
		Command: cfg.Command,
		Args:    cfg.Args,
		Env:     cfg.Env,
		URL:     cfg.URL,
	}
	if strings.EqualFold(cfg.Transport, "http") {
		sc.Transport = pool.TransportHTTP
	} else {
		sc.Transport = pool.TransportStdio
	}
	return sc
}
