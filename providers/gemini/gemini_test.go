package gemini

import (
	"testing"

	"google.golang.org/genai"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/llm"
)

func TestWithModel(t *testing.T) {
	opt := WithModel("gemini-1.5-pro")
	p := &Provider{model: "gemini-2.0-flash"}
	opt(p)
	if p.model != "gemini-1.5-pro" {
		t.Errorf("expected model gemini-1.5-pro, got %s", p.model)
	}
}

func TestProviderName(t *testing.T) {
	p := &Provider{}
	if p.Name() != "gemini" {
		t.Errorf("expected name gemini, got %s", p.Name())
	}
}

func TestResolveModel(t *testing.T) {
	p := &Provider{model: "gemini-2.0-flash"}
	if got := p.resolveModel(llm.ChatRequest{}); got != "gemini-2.0-flash" {
		t.Errorf("default model = %s", got)
	}
	if got := p.resolveModel(llm.ChatRequest{Model: "gemini-1.5-pro"}); got != "gemini-1.5-pro" {
		t.Errorf("request model = %s", got)
	}
}

func TestConvertMessagesExtractsSystem(t *testing.T) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You are helpful"},
		{Role: llm.RoleSystem, Content: "Answer in JSON"},
		{Role: llm.RoleUser, Content: "Hello"},
		{Role: llm.RoleAssistant, Content: "Hi there"},
	}

	contents, systemInstruction := convertMessages(messages)

	if systemInstruction != "You are helpful\n\nAnswer in JSON" {
		t.Errorf("system instruction = %q", systemInstruction)
	}
	if len(contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(contents))
	}
	if contents[0].Role != "user" || contents[1].Role != "model" {
		t.Errorf("roles = %s, %s", contents[0].Role, contents[1].Role)
	}
}

func TestConvertMessagesReplaysToolCalls(t *testing.T) {
	messages := []llm.Message{
		{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{
				{
					ID:   "get_weather",
					Type: llm.ToolTypeFunction,
					Function: llm.FunctionCall{
						Name:      "get_weather",
						Arguments: `{"location":"Oslo"}`,
					},
				},
			},
		},
		{Role: llm.RoleTool, ToolCallID: "get_weather", Content: `{"temp":-3}`},
	}

	contents, _ := convertMessages(messages)
	if len(contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(contents))
	}

	call := contents[0].Parts[0].FunctionCall
	if call == nil || call.Name != "get_weather" {
		t.Fatalf("function call not replayed: %+v", contents[0].Parts)
	}
	if call.Args["location"] != "Oslo" {
		t.Errorf("args = %v", call.Args)
	}

	resp := contents[1].Parts[0].FunctionResponse
	if resp == nil || resp.Name != "get_weather" {
		t.Fatalf("function response missing: %+v", contents[1].Parts)
	}
	if resp.Response["temp"] != float64(-3) {
		t.Errorf("response = %v", resp.Response)
	}
}

func TestConvertMessagesWrapsBareToolResult(t *testing.T) {
	contents, _ := convertMessages([]llm.Message{
		{Role: llm.RoleTool, ToolCallID: "search", Content: "plain text result"},
	})

	resp := contents[0].Parts[0].FunctionResponse
	if resp.Response["result"] != "plain text result" {
		t.Errorf("bare result not wrapped: %v", resp.Response)
	}
}

func TestConvertTools(t *testing.T) {
	tools := []llm.Tool{
		{
			Type: llm.ToolTypeFunction,
			Function: llm.FunctionDef{
				Name:        "get_weather",
				Description: "Get weather for a location",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"location": map[string]any{"type": "string"},
					},
				},
			},
		},
	}

	result := convertTools(tools)
	if len(result) != 1 {
		t.Fatalf("expected 1 declaration, got %d", len(result))
	}
	if result[0].Name != "get_weather" {
		t.Errorf("name = %s", result[0].Name)
	}
	if result[0].Parameters == nil || result[0].Parameters.Type != "object" {
		t.Errorf("schema not converted: %+v", result[0].Parameters)
	}
}

func TestCollectParts(t *testing.T) {
	content := &genai.Content{
		Role: "model",
		Parts: []*genai.Part{
			{Text: "Checking "},
			{Text: "the weather."},
			{FunctionCall: &genai.FunctionCall{
				Name: "get_weather",
				Args: map[string]any{"location": "Oslo"},
			}},
		},
	}

	text, calls := collectParts(content)
	if text != "Checking the weather." {
		t.Errorf("text = %q", text)
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	// Gemini has no call IDs, so the name stands in.
	if calls[0].ID != "get_weather" || calls[0].Function.Name != "get_weather" {
		t.Errorf("call = %+v", calls[0])
	}
	if calls[0].Function.Arguments != `{"location":"Oslo"}` {
		t.Errorf("arguments = %s", calls[0].Function.Arguments)
	}

	if text, calls := collectParts(nil); text != "" || calls != nil {
		t.Errorf("nil content should yield nothing, got %q %v", text, calls)
	}
}

func TestClose(t *testing.T) {
	p := &Provider{}
	if err := p.Close(); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}
