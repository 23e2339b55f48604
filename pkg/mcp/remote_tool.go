package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/tools"
)

// ToolCaller abstracts MCP tool execution for the remote tool adapter.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)
}

// RemoteTool adapts a tool hosted on an MCP server to the registry Tool
// interface. Argument validation happens in the registry against the
// server-declared input schema; the adapter only forwards the call and
// unwraps the result.
type RemoteTool struct {
	tool   mcp.Tool
	caller ToolCaller
}

// NewRemoteTool wraps an MCP tool definition and the caller that executes
// it.
func NewRemoteTool(tool mcp.Tool, caller ToolCaller) (*RemoteTool, error) {
	if tool.Name == "" {
		return nil, errors.New("mcp tool name is required")
	}
	if caller == nil {
		return nil, errors.New("tool caller is required")
	}
	return &RemoteTool{tool: tool, caller: caller}, nil
}

func (t *RemoteTool) Name() string { return t.tool.Name }

// Definition returns the server-declared tool schema unchanged.
func (t *RemoteTool) Definition() mcp.Tool { return t.tool }

// Source marks the tool as remote for telemetry.
func (t *RemoteTool) Source() string { return "mcp" }

func (t *RemoteTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	result, err := t.caller.CallTool(ctx, t.tool.Name, args)
	if err != nil {
		return nil, err
	}
	return resultToOutput(result)
}

// RegisterTools imports every tool the MCP server advertises into the
// registry and returns the registered names. A name collision with an
// already-registered tool aborts the import.
func RegisterTools(ctx context.Context, reg *tools.Registry, c *Client) ([]string, error) {
	remote, err := c.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing mcp tools: %w", err)
	}

	names := make([]string, 0, len(remote))
	for _, def := range remote {
		rt, err := NewRemoteTool(def, c)
		if err != nil {
			return names, err
		}
		if err := reg.Register(rt); err != nil {
			return names, err
		}
		names = append(names, def.Name)
	}
	return names, nil
}

// resultToOutput unwraps an MCP call result: structured content when
// present, otherwise concatenated text. IsError results become errors so
// the registry records the invocation as failed.
func resultToOutput(result *mcp.CallToolResult) (any, error) {
	if result == nil {
		return nil, errors.New("mcp tool result is nil")
	}

	if result.IsError {
		return nil, fmt.Errorf("mcp tool returned error: %s", textContent(result.Content))
	}

	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}

	if text := textContent(result.Content); text != "" {
		return text, nil
	}

	return result, nil
}

func textContent(items []mcp.Content) string {
	if len(items) == 0 {
		return ""
	}
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ tools.Tool = (*RemoteTool)(nil)
