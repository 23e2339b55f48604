package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.LLM.Provider != "ollama" {
		t.Errorf("Provider = %s, want ollama", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "llama3.1" {
		t.Errorf("Model = %s, want llama3.1", cfg.LLM.Model)
	}
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d, want 10", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.MalformedRetries != 2 {
		t.Errorf("MalformedRetries = %d, want 2", cfg.Agent.MalformedRetries)
	}
	if cfg.Orchestrator.MaxConcurrent != 4 {
		t.Errorf("MaxConcurrent = %d, want 4", cfg.Orchestrator.MaxConcurrent)
	}
	if cfg.Orchestrator.TaskTimeoutSeconds != 300 {
		t.Errorf("TaskTimeoutSeconds = %d, want 300", cfg.Orchestrator.TaskTimeoutSeconds)
	}
	if cfg.Audit.Store != "memory" {
		t.Errorf("Audit.Store = %s, want memory", cfg.Audit.Store)
	}
	if cfg.Tools.ExecEnabled {
		t.Errorf("ExecEnabled = true, want code execution off by default")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("HAF_LLM_PROVIDER", "openai")
	t.Setenv("HAF_ORCHESTRATOR_MAX_CONCURRENT", "8")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.LLM.Provider != "openai" {
		t.Errorf("Provider = %s, want openai from env", cfg.LLM.Provider)
	}
	// Multi-word key: only the first underscore maps to a section separator.
	if cfg.Orchestrator.MaxConcurrent != 8 {
		t.Errorf("MaxConcurrent = %d, want 8 from env", cfg.Orchestrator.MaxConcurrent)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	content := `
llm:
  provider: "anthropic"
  model: "claude-sonnet-4-5"
orchestrator:
  max_concurrent: 2
  task_timeout_seconds: 60
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("Provider = %s, want anthropic", cfg.LLM.Provider)
	}
	if cfg.Orchestrator.MaxConcurrent != 2 {
		t.Errorf("MaxConcurrent = %d, want 2", cfg.Orchestrator.MaxConcurrent)
	}
	// Untouched keys keep their defaults.
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d, want default 10", cfg.Agent.MaxIterations)
	}
}

func TestLoadWithProfile(t *testing.T) {
	dir := t.TempDir()

	baseYAML := `
llm:
  provider: "groq"
  model: "llama-3.3-70b-versatile"
log:
  level: "warn"
`
	basePath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(basePath, []byte(baseYAML), 0o644); err != nil {
		t.Fatalf("write base config: %v", err)
	}

	localYAML := `
llm:
  provider: "openai"
log:
  level: "debug"
`
	localPath := filepath.Join(dir, "config.local.yaml")
	if err := os.WriteFile(localPath, []byte(localYAML), 0o644); err != nil {
		t.Fatalf("write local config: %v", err)
	}

	tests := []struct {
		name         string
		profile      string
		wantProvider string
		wantLevel    string
		wantModel    string
	}{
		{
			name:         "base only",
			profile:      "",
			wantProvider: "groq",
			wantLevel:    "warn",
			wantModel:    "llama-3.3-70b-versatile",
		},
		{
			name:         "local overlay wins",
			profile:      "local",
			wantProvider: "openai",
			wantLevel:    "debug",
			wantModel:    "llama-3.3-70b-versatile", // overlay leaves model alone
		},
		{
			name:         "unknown profile keeps base",
			profile:      "prod",
			wantProvider: "groq",
			wantLevel:    "warn",
			wantModel:    "llama-3.3-70b-versatile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadWithProfile(basePath, tt.profile)
			if err != nil {
				t.Fatalf("load with profile: %v", err)
			}
			if cfg.LLM.Provider != tt.wantProvider {
				t.Errorf("Provider = %s, want %s", cfg.LLM.Provider, tt.wantProvider)
			}
			if cfg.Log.Level != tt.wantLevel {
				t.Errorf("Log.Level = %s, want %s", cfg.Log.Level, tt.wantLevel)
			}
			if cfg.LLM.Model != tt.wantModel {
				t.Errorf("Model = %s, want %s", cfg.LLM.Model, tt.wantModel)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	cfg.Orchestrator.MaxConcurrent = 0
	if err := cfg.Validate(); err == nil {
		t.Errorf("Validate accepted max_concurrent 0")
	}

	cfg.Orchestrator.MaxConcurrent = 4
	cfg.Audit.Store = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Errorf("Validate accepted unknown audit store")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("HAF_AGENT_MAX_ITERATIONS", "0")

	if _, err := Load(""); err == nil {
		t.Fatalf("Load accepted max_iterations 0")
	}
}
