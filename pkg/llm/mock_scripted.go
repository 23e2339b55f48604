package llm

import (
	"context"
	"errors"
	"sync"
)

// ScriptedMockProvider replays a fixed sequence of responses, one per Chat
// call. It drives multi-turn tests where each iteration of an agent loop
// must see a different reply, including turns that request tool calls.
type ScriptedMockProvider struct {
	mu     sync.Mutex
	script []*ChatResponse
	Err    error
	// CallCount tracks how many times Chat has been called.
	CallCount int
}

// NewScriptedMockProvider builds a provider that answers with the given
// contents in order. The model argument is ignored; it exists so call
// sites read like real provider construction.
func NewScriptedMockProvider(model string, responses ...string) *ScriptedMockProvider {
	s := &ScriptedMockProvider{}
	for _, r := range responses {
		s.AddResponse(r)
	}
	return s
}

func (s *ScriptedMockProvider) Name() string { return "scripted-mock" }

// Chat pops the next scripted response. When the script runs out, the call
// errors so a looping agent cannot spin forever on empty replies.
func (s *ScriptedMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++

	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.script) == 0 {
		return nil, errors.New("scripted mock: no more responses available")
	}

	next := s.script[0]
	s.script = s.script[1:]
	return next, nil
}

// AddResponse appends a plain text reply to the script.
func (s *ScriptedMockProvider) AddResponse(content string) {
	s.AddChatResponse(&ChatResponse{
		Content: content,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	})
}

// AddChatResponse appends a full response to the script, tool calls and
// all.
func (s *ScriptedMockProvider) AddChatResponse(resp *ChatResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, resp)
}

// PeekNext returns the content of the next scripted response without
// consuming it, or an empty string when the script is exhausted.
func (s *ScriptedMockProvider) PeekNext() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.script) == 0 {
		return ""
	}
	return s.script[0].Content
}

var _ Provider = (*ScriptedMockProvider)(nil)
