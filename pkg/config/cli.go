package config

import (
	"encoding/json"
	"strings"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
)

// CLIOptions are the configuration-related flags shared by all commands.
type CLIOptions struct {
	ConfigPath string
	Profile    string
	Sets       []string // key=value overrides, applied last
}

// LoadWithCLI loads configuration with command line overrides applied on
// top of file, profile, and environment layers. Each --set value is
// key=value; values parse as JSON when possible and fall back to strings,
// so --set memory.enabled=true yields a bool and --set llm.model=llama3.1
// a string.
func LoadWithCLI(opts CLIOptions) (*Config, error) {
	k, err := loadKoanf(opts.ConfigPath, opts.Profile)
	if err != nil {
		return nil, err
	}

	for _, set := range opts.Sets {
		key, raw, ok := strings.Cut(set, "=")
		if !ok || key == "" {
			return nil, errors.Newf(errors.CodeValidation, "invalid --set %q, want key=value", set)
		}
		k.Set(key, parseSetValue(raw))
	}

	return unmarshal(k)
}

// parseSetValue interprets override values: JSON literals (bools, numbers,
// objects, arrays) keep their type, anything else stays a string.
func parseSetValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v
	}
	return raw
}
