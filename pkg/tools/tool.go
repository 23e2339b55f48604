// Package tools provides the capability registry agents draw from. A Tool
// couples an MCP-style schema with an executable; the Registry validates
// arguments against that schema before any tool code runs.
package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// Tool is a callable capability with a declared argument schema.
//
// Execute receives arguments already validated against Definition's input
// schema. Implementations should be pure from the caller's perspective or
// document their side effects in the tool description.
type Tool interface {
	// Name returns the unique registry key for this tool.
	Name() string

	// Definition returns the MCP tool definition, including the JSON
	// Schema for arguments.
	Definition() mcp.Tool

	// Execute runs the tool. Returned values must be JSON-serializable.
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// ResultSchemer is implemented by tools that declare the shape of their
// result as a JSON Schema. Optional; used for audit records.
type ResultSchemer interface {
	ResultSchema() map[string]any
}

// ExecuteFunc is the signature of a plain function tool.
type ExecuteFunc func(ctx context.Context, args map[string]any) (any, error)

// FuncTool adapts a definition and a function into a Tool.
type FuncTool struct {
	def    mcp.Tool
	schema map[string]any
	fn     ExecuteFunc
}

// New wraps fn as a Tool described by def.
func New(def mcp.Tool, fn ExecuteFunc) *FuncTool {
	return &FuncTool{def: def, fn: fn}
}

// WithResultSchema attaches a declared result schema.
func (t *FuncTool) WithResultSchema(schema map[string]any) *FuncTool {
	t.schema = schema
	return t
}

func (t *FuncTool) Name() string         { return t.def.Name }
func (t *FuncTool) Definition() mcp.Tool { return t.def }

func (t *FuncTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	return t.fn(ctx, args)
}

// ResultSchema implements ResultSchemer. Returns nil when no schema was
// declared.
func (t *FuncTool) ResultSchema() map[string]any { return t.schema }

// NewDefinition builds an object-typed MCP tool definition. properties maps
// argument names to JSON Schema fragments; required lists the mandatory
// argument names.
func NewDefinition(name, description string, properties map[string]any, required ...string) mcp.Tool {
	if properties == nil {
		properties = map[string]any{}
	}
	return mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: properties,
			Required:   required,
		},
	}
}

var _ Tool = (*FuncTool)(nil)
var _ ResultSchemer = (*FuncTool)(nil)
