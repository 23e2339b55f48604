package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is a canned Provider for tests. ChatFunc, when set, takes
// precedence over Response/ToolCalls/Err. Every request is recorded so
// tests can assert on what the caller actually sent.
type MockProvider struct {
	Response  string
	ToolCalls []ToolCall
	Err       error
	ChatFunc  func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	mu       sync.Mutex
	requests []ChatRequest
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{
		Content:   m.Response,
		ToolCalls: m.ToolCalls,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

// Requests returns a copy of every ChatRequest seen so far.
func (m *MockProvider) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.requests...)
}

// FailingMockProvider fails every call. The zero value fails with a
// generic error; set Err to fail with a specific one.
type FailingMockProvider struct {
	Err error
}

func (f *FailingMockProvider) Name() string { return "failing-mock" }

func (f *FailingMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if f.Err == nil {
		return nil, fmt.Errorf("mock error")
	}
	return nil, f.Err
}

var (
	_ Provider = (*MockProvider)(nil)
	_ Provider = (*FailingMockProvider)(nil)
)
