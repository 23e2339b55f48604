package testing

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/llm"
)

// ScenarioProvider is a scripted llm.Provider for tests: queued responses,
// tool-call simulation, and request capture.
type ScenarioProvider struct {
	mu           sync.Mutex
	responses    []ScriptedResponse
	next         int
	requests     []llm.ChatRequest
	defaultError error
	onChat       func(req llm.ChatRequest) (*llm.ChatResponse, error)
}

var (
	_ llm.Provider          = (*ScenarioProvider)(nil)
	_ llm.StreamingProvider = (*ScenarioProvider)(nil)
)

// ScriptedResponse is one queued completion. Error takes precedence over
// Content and ToolCalls. When, if set, gates the response: a response whose
// guard rejects the request is consumed and skipped in favor of the next.
type ScriptedResponse struct {
	Content   string
	ToolCalls []llm.ToolCall
	Error     error
	Usage     llm.Usage
	When      func(req llm.ChatRequest) bool
}

// NewScenarioProvider creates an empty scripted provider.
func NewScenarioProvider() *ScenarioProvider {
	return &ScenarioProvider{}
}

// Name implements llm.Provider.
func (p *ScenarioProvider) Name() string { return "scenario" }

// AddResponse queues a plain content response.
func (p *ScenarioProvider) AddResponse(content string) *ScenarioProvider {
	return p.AddScriptedResponse(ScriptedResponse{Content: content})
}

// AddToolCallResponse queues a response that requests tool calls.
func (p *ScenarioProvider) AddToolCallResponse(toolCalls ...llm.ToolCall) *ScenarioProvider {
	return p.AddScriptedResponse(ScriptedResponse{ToolCalls: toolCalls})
}

// AddErrorResponse queues an error.
func (p *ScenarioProvider) AddErrorResponse(err error) *ScenarioProvider {
	return p.AddScriptedResponse(ScriptedResponse{Error: err})
}

// AddScriptedResponse queues a fully specified response.
func (p *ScenarioProvider) AddScriptedResponse(resp ScriptedResponse) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, resp)
	return p
}

// WithDefaultError sets the error returned once the queue is exhausted.
func (p *ScenarioProvider) WithDefaultError(err error) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultError = err
	return p
}

// WithChatFunc bypasses the queue with a custom handler. Requests are still
// captured.
func (p *ScenarioProvider) WithChatFunc(fn func(req llm.ChatRequest) (*llm.ChatResponse, error)) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChat = fn
	return p
}

// Chat implements llm.Provider.
func (p *ScenarioProvider) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)

	if p.onChat != nil {
		return p.onChat(req)
	}

	for p.next < len(p.responses) {
		resp := p.responses[p.next]
		p.next++
		if resp.When != nil && !resp.When(req) {
			continue
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return &llm.ChatResponse{
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
			Usage:     resp.Usage,
		}, nil
	}

	if p.defaultError != nil {
		return nil, p.defaultError
	}
	return nil, fmt.Errorf("scripted responses exhausted (call %d)", len(p.requests))
}

// ChatStream implements llm.StreamingProvider by replaying the next
// scripted response as a short stream: content arrives in two chunks,
// tool calls and usage ride on the final one.
func (p *ScenarioProvider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	chunks := make(chan llm.StreamChunk, 3)
	if resp.Content != "" {
		half := len(resp.Content) / 2
		chunks <- llm.StreamChunk{Content: resp.Content[:half]}
		chunks <- llm.StreamChunk{Content: resp.Content[half:]}
	}
	chunks <- llm.StreamChunk{ToolCalls: resp.ToolCalls, Usage: &resp.Usage, Done: true}
	close(chunks)
	return chunks, nil
}

// Requests returns a copy of all captured requests.
func (p *ScenarioProvider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.requests)
}

// LastRequest returns the most recent request, or nil before the first call.
func (p *ScenarioProvider) LastRequest() *llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	req := p.requests[len(p.requests)-1]
	return &req
}

// CallCount returns the number of Chat calls made.
func (p *ScenarioProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Reset rewinds the queue and clears captured requests.
func (p *ScenarioProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next = 0
	p.requests = p.requests[:0]
}
