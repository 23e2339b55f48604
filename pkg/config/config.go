// Package config loads framework configuration from defaults, YAML files,
// and HAF_ environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
)

const envPrefix = "HAF_"

// Config is the immutable snapshot handed to the orchestrator and agents.
// Load returns a fresh value each call; nothing mutates it afterwards.
type Config struct {
	Log          LogConfig          `koanf:"log"`
	LLM          LLMConfig          `koanf:"llm"`
	Agent        AgentConfig        `koanf:"agent"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Memory       MemoryConfig       `koanf:"memory"`
	Audit        AuditConfig        `koanf:"audit"`
	Tools        ToolsConfig        `koanf:"tools"`
	MCP          MCPConfig          `koanf:"mcp"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider    string  `koanf:"provider"` // openai, anthropic, groq, ollama, mock
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	APIKey      string  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature"`

	RetryMaxAttempts    int `koanf:"retry_max_attempts"`
	RetryInitialDelayMS int `koanf:"retry_initial_delay_ms"`
	RetryMaxDelayMS     int `koanf:"retry_max_delay_ms"`
}

type AgentConfig struct {
	MaxIterations    int `koanf:"max_iterations"`
	MalformedRetries int `koanf:"malformed_retries"`
}

type OrchestratorConfig struct {
	MaxConcurrent      int    `koanf:"max_concurrent"`
	TaskTimeoutSeconds int    `koanf:"task_timeout_seconds"`
	PlannerModel       string `koanf:"planner_model"`   // empty -> llm.model
	SynthesisModel     string `koanf:"synthesis_model"` // empty -> llm.model
}

// TaskTimeout returns the per-subtask deadline.
func (c OrchestratorConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSeconds) * time.Second
}

type MemoryConfig struct {
	Enabled          bool   `koanf:"enabled"`
	Provider         string `koanf:"provider"` // vector, inmemory
	QdrantAddr       string `koanf:"qdrant_addr"`
	Collection       string `koanf:"collection"`
	EmbedderProvider string `koanf:"embedder_provider"` // ollama
	EmbedderBaseURL  string `koanf:"embedder_base_url"`
	EmbedderModel    string `koanf:"embedder_model"`
}

type AuditConfig struct {
	Store      string `koanf:"store"` // memory, sqlite
	SQLitePath string `koanf:"sqlite_path"`
}

type ToolsConfig struct {
	BaseDir            string `koanf:"base_dir"`
	ExecEnabled        bool   `koanf:"exec_enabled"`
	ExecInterpreter    string `koanf:"exec_interpreter"`
	ExecTimeoutSeconds int    `koanf:"exec_timeout_seconds"`
	SearchMaxResults   int    `koanf:"search_max_results"`
}

// ExecTimeout returns the code execution deadline.
func (c ToolsConfig) ExecTimeout() time.Duration {
	return time.Duration(c.ExecTimeoutSeconds) * time.Second
}

// MCPConfig declares external MCP servers whose tools are attached to the
// shared registry at startup.
type MCPConfig struct {
	Servers []MCPServerConfig `koanf:"servers"`
}

type MCPServerConfig struct {
	Name      string            `koanf:"name"`
	Transport string            `koanf:"transport"` // stdio, http
	Command   string            `koanf:"command"`
	Args      []string          `koanf:"args"`
	Env       map[string]string `koanf:"env"`
	URL       string            `koanf:"url"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Exporter    string `koanf:"exporter"` // stdout, otlp
	Endpoint    string `koanf:"endpoint"`
	Insecure    bool   `koanf:"insecure"`
	ServiceName string `koanf:"service_name"`
	// SampleRatio keeps this fraction of root traces; 0 or 1 keeps all.
	SampleRatio float64 `koanf:"sample_ratio"`
}

// Load reads configuration from the optional YAML file at path, then applies
// HAF_ environment overrides (HAF_LLM_PROVIDER -> llm.provider).
func Load(path string) (*Config, error) {
	return LoadWithProfile(path, "")
}

// LoadWithProfile loads the base file plus a profile overlay. For base
// config.yaml and profile "dev", the overlay is config.dev.yaml next to it.
// A missing overlay is not an error; the base alone applies.
func LoadWithProfile(path, profile string) (*Config, error) {
	k, err := loadKoanf(path, profile)
	if err != nil {
		return nil, err
	}
	return unmarshal(k)
}

// loadKoanf builds the layered koanf instance: defaults, file, profile
// overlay, then HAF_ environment overrides.
func loadKoanf(path, profile string) (*koanf.Koanf, error) {
	k := koanf.New(".")

	setDefaults(k)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.New(errors.CodeValidation, "loading config file", err).
				WithContext("path", path)
		}
		if profile != "" {
			overlay := profilePath(path, profile)
			if _, err := os.Stat(overlay); err == nil {
				if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
					return nil, errors.New(errors.CodeValidation, "loading profile overlay", err).
						WithContext("path", overlay)
				}
			}
		}
	}

	// HAF_ORCHESTRATOR_MAX_CONCURRENT -> orchestrator.max_concurrent.
	// Only the first underscore separates section from key, so multi-word
	// keys survive the mapping.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(s, "_", 2)
		return strings.Join(parts, ".")
	}), nil); err != nil {
		return nil, errors.New(errors.CodeValidation, "loading env overrides", err)
	}

	return k, nil
}

func unmarshal(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.New(errors.CodeValidation, "unmarshaling config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("llm.provider", "ollama")
	k.Set("llm.model", "llama3.1")
	k.Set("llm.base_url", "http://localhost:11434")
	k.Set("llm.temperature", 0.7)
	k.Set("llm.retry_max_attempts", 3)
	k.Set("llm.retry_initial_delay_ms", 100)
	k.Set("llm.retry_max_delay_ms", 10000)

	k.Set("agent.max_iterations", 10)
	k.Set("agent.malformed_retries", 2)

	k.Set("orchestrator.max_concurrent", 4)
	k.Set("orchestrator.task_timeout_seconds", 300)

	k.Set("memory.enabled", false)
	k.Set("memory.provider", "vector")
	k.Set("memory.qdrant_addr", "localhost:6334")
	k.Set("memory.collection", "agent_memory")
	k.Set("memory.embedder_provider", "ollama")
	k.Set("memory.embedder_base_url", "http://localhost:11434")
	k.Set("memory.embedder_model", "nomic-embed-text")

	k.Set("audit.store", "memory")
	k.Set("audit.sqlite_path", "haf_audit.db")

	k.Set("tools.base_dir", ".")
	k.Set("tools.exec_enabled", false)
	k.Set("tools.exec_interpreter", "python3")
	k.Set("tools.exec_timeout_seconds", 30)
	k.Set("tools.search_max_results", 5)

	k.Set("telemetry.enabled", false)
	k.Set("telemetry.exporter", "stdout")
	k.Set("telemetry.endpoint", "localhost:4317")
	k.Set("telemetry.service_name", "haf")
}

// Validate rejects values the scheduler and runtime cannot operate with.
func (c *Config) Validate() error {
	if c.Orchestrator.MaxConcurrent < 1 {
		return errors.Newf(errors.CodeValidation, "orchestrator.max_concurrent must be >= 1, got %d", c.Orchestrator.MaxConcurrent)
	}
	if c.Agent.MaxIterations < 1 {
		return errors.Newf(errors.CodeValidation, "agent.max_iterations must be >= 1, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.MalformedRetries < 0 {
		return errors.Newf(errors.CodeValidation, "agent.malformed_retries must be >= 0, got %d", c.Agent.MalformedRetries)
	}
	if c.Orchestrator.TaskTimeoutSeconds < 1 {
		return errors.Newf(errors.CodeValidation, "orchestrator.task_timeout_seconds must be >= 1, got %d", c.Orchestrator.TaskTimeoutSeconds)
	}
	switch c.Audit.Store {
	case "memory", "sqlite":
	default:
		return errors.Newf(errors.CodeValidation, "audit.store must be memory or sqlite, got %q", c.Audit.Store)
	}
	for _, srv := range c.MCP.Servers {
		if srv.Name == "" {
			return errors.Newf(errors.CodeValidation, "mcp server entries need a name")
		}
		switch srv.Transport {
		case "stdio":
			if srv.Command == "" {
				return errors.Newf(errors.CodeValidation, "mcp server %q: stdio transport needs a command", srv.Name)
			}
		case "http":
			if srv.URL == "" {
				return errors.Newf(errors.CodeValidation, "mcp server %q: http transport needs a url", srv.Name)
			}
		default:
			return errors.Newf(errors.CodeValidation, "mcp server %q: transport must be stdio or http, got %q", srv.Name, srv.Transport)
		}
	}
	return nil
}

// profilePath derives the overlay path: config.yaml + dev -> config.dev.yaml.
func profilePath(base, profile string) string {
	dot := strings.LastIndex(base, ".")
	if dot < 0 {
		return fmt.Sprintf("%s.%s", base, profile)
	}
	return fmt.Sprintf("%s.%s%s", base[:dot], profile, base[dot:])
}
