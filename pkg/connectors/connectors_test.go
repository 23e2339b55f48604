package connectors

import (
	"context"
	"testing"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/tools"
)

// findTool locates a generated tool by name or fails the test.
func findTool(t *testing.T, conn Connector, name string) tools.Tool {
	t.Helper()
	for _, tool := range conn.Tools() {
		if tool.Name() == name {
			return tool
		}
	}
	t.Fatalf("tool %s not generated; have %v", name, toolNames(conn))
	return nil
}

func toolNames(conn Connector) []string {
	names := make([]string, 0, len(conn.Tools()))
	for _, tool := range conn.Tools() {
		names = append(names, tool.Name())
	}
	return names
}

type staticConnector struct {
	name  string
	tools []tools.Tool
}

func (c *staticConnector) Name() string        { return c.name }
func (c *staticConnector) Tools() []tools.Tool { return c.tools }

func echoTool(name string) tools.Tool {
	def := tools.NewDefinition(name, "echoes its arguments", map[string]any{
		"value": map[string]any{"type": "string"},
	})
	return tools.New(def, func(ctx context.Context, args map[string]any) (any, error) {
		return args["value"], nil
	})
}

func TestAttachRegistersEveryTool(t *testing.T) {
	reg := tools.NewRegistry()
	conn := &staticConnector{name: "static", tools: []tools.Tool{echoTool("alpha"), echoTool("beta")}}

	names, err := Attach(reg, conn)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Fatalf("unexpected names %v", names)
	}

	result, err := reg.Invoke(context.Background(), "alpha", map[string]any{"value": "hi"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result != "hi" {
		t.Fatalf("got %v, want hi", result)
	}
}

func TestAttachStopsOnDuplicate(t *testing.T) {
	reg := tools.NewRegistry()
	if err := reg.Register(echoTool("beta")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	conn := &staticConnector{name: "static", tools: []tools.Tool{echoTool("alpha"), echoTool("beta"), echoTool("gamma")}}
	names, err := Attach(reg, conn)
	if !errors.HasCode(err, errors.CodeDuplicateTool) {
		t.Fatalf("expected duplicate tool error, got %v", err)
	}
	if len(names) != 1 || names[0] != "alpha" {
		t.Fatalf("expected alpha registered before failure, got %v", names)
	}
	if _, ok := reg.Get("gamma"); ok {
		t.Fatal("gamma should not be registered after failure")
	}
}

func TestSnakeCase(t *testing.T) {
	cases := map[string]string{
		"GetItem":       "get_item",
		"getUser":       "get_user",
		"HTTPServer":    "http_server",
		"userID":        "user_id",
		"ListHTTPPools": "list_http_pools",
		"already_snake": "already_snake",
		"A":             "a",
		"users":         "users",
	}
	for in, want := range cases {
		if got := snakeCase(in); got != want {
			t.Errorf("snakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}
