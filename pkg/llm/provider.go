// Package llm defines the provider-agnostic contract for chat completion
// backends. Agents and the orchestrator depend only on Provider (or
// StreamingProvider for incremental delivery), so backends are swapped by
// configuration rather than code changes.
package llm

import "context"

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolType represents the type of tool.
type ToolType string

const (
	ToolTypeFunction ToolType = "function"
)

// FunctionDef defines a function tool.
type FunctionDef struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  interface{} `json:"parameters"` // JSON Schema
}

// Tool represents a tool available to the LLM.
type Tool struct {
	Type     ToolType    `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionCall represents a call to a function tool. Arguments is the raw
// JSON string exactly as the model produced it; parsing and validation
// happen in the tool registry, not here.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall represents a request from the LLM to call a tool.
type ToolCall struct {
	ID       string       `json:"id,omitempty"` // optional for some providers
	Type     ToolType     `json:"type"`
	Function FunctionCall `json:"function"`
}

// Message is a single unit of communication.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on tool role messages
}

// ChatRequest encapsulates the input for the LLM.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`

	// ResponseFormat requests structured output; "json" is the only
	// recognized value. Providers that cannot enforce it ignore it.
	ResponseFormat string `json:"response_format,omitempty"`
}

// ChatResponse encapsulates the output from the LLM. Content and ToolCalls
// are mutually exclusive in practice: a response carrying neither is
// treated as malformed by the agent runtime.
type ChatResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider defines the interface for interacting with LLM backends.
type Provider interface {
	// Name identifies the backend, e.g. "openai" or "ollama".
	Name() string

	// Chat sends a chat request to the LLM and returns the response.
	// A nil response with a nil error is a provider bug; callers treat
	// it as a malformed response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// StreamChunk is one increment of a streaming completion. Done marks the
// final chunk; Usage arrives on that chunk when the backend reports it.
type StreamChunk struct {
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     *Usage     `json:"usage,omitempty"`
	Done      bool       `json:"done"`

	// Error carries a mid-stream failure. The channel is closed right
	// after an error chunk; content already delivered remains valid.
	Error error `json:"-"`
}

// StreamingProvider is implemented by backends that can deliver the
// completion incrementally. The returned channel is closed when the stream
// ends, whether by completion, error, or context cancellation.
type StreamingProvider interface {
	Provider

	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
}
