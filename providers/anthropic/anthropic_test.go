package anthropic

import (
	"encoding/json"
	"testing"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/llm"
)

func TestNewProvider(t *testing.T) {
	p := New()
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
	if p.model != "claude-sonnet-4-20250514" {
		t.Errorf("expected model claude-sonnet-4-20250514, got %s", p.model)
	}
	if p.maxTokens != 4096 {
		t.Errorf("expected maxTokens 4096, got %d", p.maxTokens)
	}
	if p.Name() != "anthropic" {
		t.Errorf("expected name anthropic, got %s", p.Name())
	}
}

func TestWithModel(t *testing.T) {
	p := New(WithModel("claude-opus-4-20250514"))
	if p.model != "claude-opus-4-20250514" {
		t.Errorf("expected model claude-opus-4-20250514, got %s", p.model)
	}
}

func TestWithMaxTokens(t *testing.T) {
	p := New(WithMaxTokens(8192))
	if p.maxTokens != 8192 {
		t.Errorf("expected maxTokens 8192, got %d", p.maxTokens)
	}
}

func TestNewWithAPIKey(t *testing.T) {
	p := NewWithAPIKey("test-key")
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

// wireJSON marshals an SDK param and decodes it back, asserting on the
// request body the API would actually receive.
func wireJSON(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func contentBlocks(t *testing.T, msg map[string]any) []map[string]any {
	t.Helper()
	raw, ok := msg["content"].([]any)
	if !ok {
		t.Fatalf("content is not a block list: %v", msg["content"])
	}
	blocks := make([]map[string]any, len(raw))
	for i, b := range raw {
		blocks[i], _ = b.(map[string]any)
	}
	return blocks
}

func TestConvertMessageUser(t *testing.T) {
	wire := wireJSON(t, convertMessage(llm.Message{Role: llm.RoleUser, Content: "Hello"}))
	if wire["role"] != "user" {
		t.Errorf("role = %v", wire["role"])
	}
	blocks := contentBlocks(t, wire)
	if len(blocks) != 1 || blocks[0]["type"] != "text" || blocks[0]["text"] != "Hello" {
		t.Errorf("blocks = %v", blocks)
	}
}

func TestConvertMessageAssistantWithToolCalls(t *testing.T) {
	wire := wireJSON(t, convertMessage(llm.Message{
		Role:    llm.RoleAssistant,
		Content: "Let me check.",
		ToolCalls: []llm.ToolCall{
			{
				ID:   "toolu_123",
				Type: llm.ToolTypeFunction,
				Function: llm.FunctionCall{
					Name:      "get_weather",
					Arguments: `{"location":"Paris"}`,
				},
			},
		},
	}))

	if wire["role"] != "assistant" {
		t.Errorf("role = %v", wire["role"])
	}
	blocks := contentBlocks(t, wire)
	if len(blocks) != 2 {
		t.Fatalf("expected text + tool_use blocks, got %v", blocks)
	}
	if blocks[0]["type"] != "text" || blocks[0]["text"] != "Let me check." {
		t.Errorf("text block = %v", blocks[0])
	}
	use := blocks[1]
	if use["type"] != "tool_use" || use["id"] != "toolu_123" || use["name"] != "get_weather" {
		t.Errorf("tool_use block = %v", use)
	}
	input, _ := use["input"].(map[string]any)
	if input["location"] != "Paris" {
		t.Errorf("input = %v", input)
	}
}

func TestConvertMessageToolResultBecomesUserTurn(t *testing.T) {
	wire := wireJSON(t, convertMessage(llm.Message{
		Role:       llm.RoleTool,
		Content:    "result",
		ToolCallID: "toolu_123",
	}))

	// The API has no tool role; results ride in a user message.
	if wire["role"] != "user" {
		t.Errorf("role = %v", wire["role"])
	}
	blocks := contentBlocks(t, wire)
	if len(blocks) != 1 || blocks[0]["type"] != "tool_result" {
		t.Fatalf("blocks = %v", blocks)
	}
	if blocks[0]["tool_use_id"] != "toolu_123" {
		t.Errorf("tool_use_id = %v", blocks[0]["tool_use_id"])
	}
}

func TestConvertTool(t *testing.T) {
	wire := wireJSON(t, convertTool(llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        "get_weather",
			Description: "Get weather for a location",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"location": map[string]interface{}{
						"type":        "string",
						"description": "The city name",
					},
				},
				"required": []string{"location"},
			},
		},
	}))

	if wire["name"] != "get_weather" {
		t.Errorf("name = %v", wire["name"])
	}
	if wire["description"] != "Get weather for a location" {
		t.Errorf("description = %v", wire["description"])
	}
	schema, _ := wire["input_schema"].(map[string]any)
	if schema["type"] != "object" {
		t.Errorf("input_schema = %v", schema)
	}
	props, _ := schema["properties"].(map[string]any)
	if _, ok := props["location"]; !ok {
		t.Errorf("properties = %v", props)
	}
}

func TestBuildParamsLiftsSystemPrompt(t *testing.T) {
	p := New(WithModel("claude-sonnet-4-20250514"))
	wire := wireJSON(t, p.buildParams(llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You write Go."},
			{Role: llm.RoleUser, Content: "Hello"},
		},
		Temperature: 0.2,
		MaxTokens:   512,
	}))

	system, _ := wire["system"].([]any)
	if len(system) != 1 {
		t.Fatalf("system = %v", wire["system"])
	}
	if block, _ := system[0].(map[string]any); block["text"] != "You write Go." {
		t.Errorf("system block = %v", system[0])
	}
	msgs, _ := wire["messages"].([]any)
	if len(msgs) != 1 {
		t.Errorf("system prompt should not stay in messages: %v", wire["messages"])
	}
	if wire["model"] != "claude-sonnet-4-20250514" {
		t.Errorf("model = %v", wire["model"])
	}
	if wire["max_tokens"] != float64(512) {
		t.Errorf("max_tokens = %v", wire["max_tokens"])
	}
	if wire["temperature"] != 0.2 {
		t.Errorf("temperature = %v", wire["temperature"])
	}
}

func TestConvertUsage(t *testing.T) {
	u := convertUsage(anthropicsdk.Usage{InputTokens: 12, OutputTokens: 30})
	if u.PromptTokens != 12 || u.CompletionTokens != 30 || u.TotalTokens != 42 {
		t.Errorf("usage = %+v", u)
	}
}

func TestMapError(t *testing.T) {
	overloaded := mapError(&anthropicsdk.Error{StatusCode: 529})
	if !errors.HasCode(overloaded, errors.CodeProvider) {
		t.Errorf("529 should map to %s, got %v", errors.CodeProvider, overloaded)
	}
	if !errors.IsRecoverable(overloaded) {
		t.Error("overloaded errors should be recoverable")
	}

	rateLimited := mapError(&anthropicsdk.Error{StatusCode: 429})
	if !errors.HasCode(rateLimited, errors.CodeRateLimit) {
		t.Errorf("429 should map to %s, got %v", errors.CodeRateLimit, rateLimited)
	}
}
