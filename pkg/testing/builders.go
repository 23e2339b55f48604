package testing

import (
	"encoding/json"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/llm"
)

// ToolCallBuilder assembles an llm.ToolCall with JSON-encoded arguments.
type ToolCallBuilder struct {
	call llm.ToolCall
	args map[string]any
}

// NewToolCall starts a tool call for the named function. The call ID
// defaults to "call_<name>" until WithID overrides it.
func NewToolCall(name string) *ToolCallBuilder {
	return &ToolCallBuilder{
		call: llm.ToolCall{
			ID:       "call_" + name,
			Type:     llm.ToolTypeFunction,
			Function: llm.FunctionCall{Name: name},
		},
		args: map[string]any{},
	}
}

// WithID sets an explicit call ID.
func (b *ToolCallBuilder) WithID(id string) *ToolCallBuilder {
	b.call.ID = id
	return b
}

// WithArg sets one argument.
func (b *ToolCallBuilder) WithArg(name string, value any) *ToolCallBuilder {
	b.args[name] = value
	return b
}

// WithArgs replaces the whole argument map.
func (b *ToolCallBuilder) WithArgs(args map[string]any) *ToolCallBuilder {
	b.args = args
	return b
}

// Build encodes the arguments and returns the finished call.
func (b *ToolCallBuilder) Build() llm.ToolCall {
	encoded, _ := json.Marshal(b.args)
	call := b.call
	call.Function.Arguments = string(encoded)
	return call
}

// ToolDefinitionBuilder assembles an llm.Tool whose parameters form an
// object-shaped JSON schema.
type ToolDefinitionBuilder struct {
	fn       llm.FunctionDef
	props    map[string]any
	required []string
}

// NewToolDefinition starts a definition for the named function.
func NewToolDefinition(name string) *ToolDefinitionBuilder {
	return &ToolDefinitionBuilder{
		fn:    llm.FunctionDef{Name: name},
		props: map[string]any{},
	}
}

// WithDescription sets the function description.
func (b *ToolDefinitionBuilder) WithDescription(desc string) *ToolDefinitionBuilder {
	b.fn.Description = desc
	return b
}

// WithParameter declares one schema property.
func (b *ToolDefinitionBuilder) WithParameter(name, typ, desc string, required bool) *ToolDefinitionBuilder {
	b.props[name] = map[string]any{"type": typ, "description": desc}
	if required {
		b.required = append(b.required, name)
	}
	return b
}

// Build returns the finished tool definition.
func (b *ToolDefinitionBuilder) Build() llm.Tool {
	fn := b.fn
	fn.Parameters = map[string]any{
		"type":       "object",
		"properties": b.props,
		"required":   b.required,
	}
	return llm.Tool{Type: llm.ToolTypeFunction, Function: fn}
}
