package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/tools"
)

// Server exposes tools to MCP clients over stdio or Streamable HTTP.
type Server struct {
	mcpServer *server.MCPServer
}

// NewServer creates an empty MCP server.
func NewServer(name, version string) *Server {
	return &Server{
		mcpServer: server.NewMCPServer(name, version),
	}
}

// NewRegistryServer creates an MCP server pre-populated with every tool in
// the registry.
func NewRegistryServer(name, version string, reg *tools.Registry) *Server {
	s := NewServer(name, version)
	s.AddRegistry(reg)
	return s
}

// AddRegistry exposes the registry's tools with their declared schemas.
// Invocations run through the registry, so argument validation and panic
// recovery apply to remote callers too. Tool failures are reported in-band
// as IsError results per the MCP protocol.
func (s *Server) AddRegistry(reg *tools.Registry) {
	for _, name := range reg.Names() {
		t, ok := reg.Get(name)
		if !ok {
			continue
		}
		toolName := t.Name()
		s.mcpServer.AddTool(t.Definition(), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := request.Params.Arguments.(map[string]interface{})
			result, err := reg.Invoke(ctx, toolName, args)
			if err != nil {
				return errorResult(err.Error()), nil
			}
			return outputToResult(result), nil
		})
	}
}

// RegisterTool registers a single ad-hoc tool with the server. schema may
// be an mcp.ToolInputSchema, a json.RawMessage holding a JSON schema, or
// nil for a tool without declared inputs.
func (s *Server) RegisterTool(name, description string, schema interface{}, handler func(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error)) {
	tool := mcp.NewTool(name, mcp.WithDescription(description))
	switch sc := schema.(type) {
	case mcp.ToolInputSchema:
		tool.InputSchema = sc
	case json.RawMessage:
		tool.RawInputSchema = sc
	}

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})
		return handler(ctx, args)
	})
}

// ServeStdio starts the server on stdio and blocks until the client
// disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeStreamableHTTP starts the server on addr using the Streamable HTTP
// transport and blocks.
func (s *Server) ServeStreamableHTTP(addr string) error {
	return server.NewStreamableHTTPServer(s.mcpServer).Start(addr)
}

// MCP returns the underlying mcp-go server, for mounting on custom
// transports.
func (s *Server) MCP() *server.MCPServer {
	return s.mcpServer
}

// outputToResult serializes a tool result for the wire: strings go out as
// text, maps as structured content, everything else as compact JSON text.
func outputToResult(result any) *mcp.CallToolResult {
	switch v := result.(type) {
	case string:
		return textResult(v)
	case map[string]interface{}:
		return &mcp.CallToolResult{StructuredContent: v}
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return textResult(fmt.Sprint(v))
		}
		return textResult(string(encoded))
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	result := textResult(text)
	result.IsError = true
	return result
}
