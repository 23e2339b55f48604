package tools

import (
	"context"
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/llm"
)

// Registry holds tools keyed by name. Registration happens at startup;
// Invoke is safe for concurrent use during execution.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering a name twice fails; there is no
// replace-on-register because two agents sharing a registry must agree on
// what a name means.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return errors.Newf(errors.CodeValidation, "cannot register nil tool")
	}
	name := t.Name()
	if name == "" {
		return errors.Newf(errors.CodeValidation, "tool name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return errors.Newf(errors.CodeDuplicateTool, "tool %q is already registered", name).
			WithContext("tool", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Invoke validates args against the tool's declared schema and executes
// it. Invalid invocations never reach the tool. Execution failures,
// including panics, come back as structured errors rather than faults so
// the calling agent can reason about them.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (result any, err error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.CodeUnknownTool, "tool %q is not registered", name).
			WithContext("tool", name)
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := validateArgs(tool.Definition(), args); err != nil {
		return nil, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = errors.Newf(errors.CodeToolExecution, "tool %q panicked: %v", name, rec).
				WithContext("tool", name)
		}
	}()

	out, execErr := tool.Execute(ctx, args)
	if execErr != nil {
		return nil, errors.New(errors.CodeToolExecution, "tool "+name+" failed", execErr).
			WithContext("tool", name)
	}
	return out, nil
}

// Subset returns a new registry restricted to the given names, in the
// given order. Unknown names are skipped, so role configurations can name
// tools that are not wired in a particular deployment.
func (r *Registry) Subset(names ...string) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub := NewRegistry()
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			sub.tools[name] = t
			sub.order = append(sub.order, name)
		}
	}
	return sub
}

// Definitions returns LLM function definitions for every registered tool,
// in registration order.
func (r *Registry) Definitions() []llm.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.Tool, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, Definition(r.tools[name].Definition()))
	}
	return defs
}

// ResultSchema returns the declared result schema of a tool, or nil when
// the tool does not declare one.
func (r *Registry) ResultSchema(name string) map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tools[name]; ok {
		if rs, ok := t.(ResultSchemer); ok {
			return rs.ResultSchema()
		}
	}
	return nil
}

// Definition converts an MCP tool definition into an LLM function tool.
func Definition(tool mcp.Tool) llm.Tool {
	var params any = tool.InputSchema
	if tool.RawInputSchema != nil {
		params = tool.RawInputSchema
	}
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
		},
	}
}

// ParseArguments decodes the raw JSON argument string a model produced.
// Empty input yields an empty argument map.
func ParseArguments(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return nil, errors.New(errors.CodeArgumentValidation, "tool arguments are not valid JSON", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// validateArgs checks required fields and declared primitive types.
// Arguments not named in the schema pass through untouched; schemas in the
// wild are loose and over-rejecting breaks more than it protects.
func validateArgs(def mcp.Tool, args map[string]any) error {
	schema := def.InputSchema
	if schema.Type != "" && schema.Type != "object" {
		return nil
	}

	for _, key := range schema.Required {
		if _, ok := args[key]; !ok {
			return errors.Newf(errors.CodeArgumentValidation, "tool %q: missing required argument %q", def.Name, key).
				WithContext("tool", def.Name).
				WithContext("argument", key)
		}
	}

	for name, value := range args {
		propSpec, ok := schema.Properties[name]
		if !ok {
			continue
		}
		prop, ok := propSpec.(map[string]any)
		if !ok {
			continue
		}
		declared, ok := prop["type"].(string)
		if !ok {
			continue
		}
		if !typeMatches(declared, value) {
			return errors.Newf(errors.CodeArgumentValidation, "tool %q: argument %q must be of type %s", def.Name, name, declared).
				WithContext("tool", def.Name).
				WithContext("argument", name)
		}
	}
	return nil
}

// typeMatches reports whether value satisfies a declared JSON Schema type.
// Numbers arrive as float64 after JSON decoding, so integer checks accept
// integral floats.
func typeMatches(declared string, value any) bool {
	if value == nil {
		return true
	}
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int8, int16, int32, int64:
			return true
		}
		return false
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64:
			return true
		case float64:
			return v == math.Trunc(v)
		case float32:
			return float64(v) == math.Trunc(float64(v))
		}
		return false
	case "array":
		return reflect.ValueOf(value).Kind() == reflect.Slice
	case "object":
		return reflect.ValueOf(value).Kind() == reflect.Map
	default:
		return true
	}
}
