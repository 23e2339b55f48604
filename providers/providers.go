// Package providers wires concrete LLM backends to the configuration
// layer. The factory is the only place that knows every backend; the rest
// of the framework holds llm.Provider values.
package providers

import (
	"context"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/config"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/llm"
	"github.com/sarthakbahal/hierarchical-agent-framework/providers/anthropic"
	"github.com/sarthakbahal/hierarchical-agent-framework/providers/gemini"
	"github.com/sarthakbahal/hierarchical-agent-framework/providers/groq"
	"github.com/sarthakbahal/hierarchical-agent-framework/providers/openai"
)

// New builds the provider selected by cfg.Provider. Supported names:
// ollama, openai, anthropic, gemini, groq, and mock (testing only).
func New(ctx context.Context, cfg config.LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "ollama":
		return llm.NewOllama(cfg.BaseURL), nil

	case "openai":
		opts := []openai.Option{}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.APIKey != "" {
			return openai.NewWithAPIKey(cfg.APIKey, opts...), nil
		}
		return openai.New(opts...), nil

	case "anthropic":
		opts := []anthropic.Option{}
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		if cfg.APIKey != "" {
			return anthropic.NewWithAPIKey(cfg.APIKey, opts...), nil
		}
		return anthropic.New(opts...), nil

	case "gemini":
		opts := []gemini.Option{}
		if cfg.Model != "" {
			opts = append(opts, gemini.WithModel(cfg.Model))
		}
		if cfg.APIKey != "" {
			return gemini.NewWithAPIKey(ctx, cfg.APIKey, opts...)
		}
		return gemini.New(ctx, opts...)

	case "groq":
		opts := []groq.Option{}
		if cfg.Model != "" {
			opts = append(opts, groq.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, groq.WithBaseURL(cfg.BaseURL))
		}
		return groq.New(cfg.APIKey, opts...), nil

	case "mock":
		return &llm.MockProvider{Response: "mock response"}, nil

	default:
		return nil, errors.Newf(errors.CodeValidation, "unknown llm provider %q", cfg.Provider)
	}
}
