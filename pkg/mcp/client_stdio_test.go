package mcp

import (
	"context"
	"os"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

const mcpStdioHelperEnv = "HAF_MCP_STDIO_HELPER"

// TestHelperMCPStdioServer is not a real test. The stdio test re-executes
// the test binary with this helper selected to get an MCP server
// subprocess without shipping a fixture binary.
func TestHelperMCPStdioServer(t *testing.T) {
	if os.Getenv(mcpStdioHelperEnv) != "1" {
		return
	}

	srv := NewServer("test-stdio", "1.0.0")
	srv.RegisterTool("shout", "Uppercases text", nil,
		func(_ context.Context, args map[string]interface{}) (*mcpgo.CallToolResult, error) {
			text, _ := args["text"].(string)
			return textResult(strings.ToUpper(text)), nil
		})
	srv.RegisterTool("broken", "Always fails", nil,
		func(_ context.Context, _ map[string]interface{}) (*mcpgo.CallToolResult, error) {
			return errorResult("tool is broken"), nil
		})

	if err := srv.ServeStdio(); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}

func TestClientStdioRoundTrip(t *testing.T) {
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}

	c, err := NewClientWithStdioProtocol(
		exe,
		[]string{"-test.run", "TestHelperMCPStdioServer"},
		map[string]string{mcpStdioHelperEnv: "1"},
		mcpgo.LATEST_PROTOCOL_VERSION,
	)
	if err != nil {
		t.Fatalf("NewClientWithStdioProtocol: %v", err)
	}
	defer c.Close()

	list, err := c.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := make(map[string]bool, len(list))
	for _, tool := range list {
		names[tool.Name] = true
	}
	if !names["shout"] || !names["broken"] {
		t.Fatalf("tools = %+v", list)
	}

	result, err := c.CallTool(context.Background(), "shout", map[string]interface{}{"text": "hello"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	if text := textContent(result.Content); text != "HELLO" {
		t.Errorf("result = %q, want HELLO", text)
	}

	failed, err := c.CallTool(context.Background(), "broken", map[string]interface{}{})
	if err != nil {
		t.Fatalf("CallTool broken: %v", err)
	}
	if !failed.IsError {
		t.Errorf("expected IsError result from broken tool, got %+v", failed)
	}
}
