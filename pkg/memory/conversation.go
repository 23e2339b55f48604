package memory

import (
	"context"
	"time"
)

// ConversationMessage is a single message in a session's history.
type ConversationMessage struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	Role       string            `json:"role"` // system, user, assistant, tool
	Content    string            `json:"content"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ConversationMemory stores ordered message history per session, for
// multi-turn interactions that outlive a single agent run. Semantic
// recall lives in the vector memory instead.
type ConversationMemory interface {
	// AppendMessage adds a message to the session.
	AppendMessage(ctx context.Context, sessionID string, msg ConversationMessage) error

	// GetMessages returns the session's messages in creation order, after
	// applying the store's truncation strategy if one is configured.
	GetMessages(ctx context.Context, sessionID string) ([]ConversationMessage, error)

	// GetRecentMessages returns the last limit messages of the session.
	GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]ConversationMessage, error)

	// Clear removes the session's messages.
	Clear(ctx context.Context, sessionID string) error

	// DeleteOldMessages removes the session's messages older than olderThan.
	DeleteOldMessages(ctx context.Context, sessionID string, olderThan time.Duration) error
}

// ConversationConfig configures a conversation store.
type ConversationConfig struct {
	// TruncationStrategy applies when loading messages. Optional.
	TruncationStrategy TruncationStrategy

	// MaxSessionMessages bounds how many messages a session retains.
	// Appending beyond the bound evicts the oldest messages. Zero means
	// unbounded. This caps what the store keeps; TruncationStrategy caps
	// what a single load returns.
	MaxSessionMessages int
}

// capRetained trims messages to the newest max entries. Zero or negative
// max leaves the slice alone.
func capRetained(messages []ConversationMessage, max int) []ConversationMessage {
	if max <= 0 || len(messages) <= max {
		return messages
	}
	return messages[len(messages)-max:]
}

// TruncationStrategy bounds a conversation before it is handed to a model.
type TruncationStrategy interface {
	Truncate(ctx context.Context, messages []ConversationMessage) ([]ConversationMessage, error)
}

// WindowStrategy keeps the last MaxMessages messages.
type WindowStrategy struct {
	MaxMessages int
	// KeepSystemMessages exempts system messages from the window.
	KeepSystemMessages bool
}

// NewWindowStrategy creates a message-count truncation strategy.
func NewWindowStrategy(maxMessages int, keepSystem bool) *WindowStrategy {
	return &WindowStrategy{MaxMessages: maxMessages, KeepSystemMessages: keepSystem}
}

func (w *WindowStrategy) Truncate(_ context.Context, messages []ConversationMessage) ([]ConversationMessage, error) {
	if len(messages) <= w.MaxMessages {
		return messages, nil
	}
	if !w.KeepSystemMessages {
		return messages[len(messages)-w.MaxMessages:], nil
	}

	system, rest := splitSystem(messages)
	available := max(w.MaxMessages-len(system), 0)
	if len(rest) > available {
		rest = rest[len(rest)-available:]
	}
	return append(system, rest...), nil
}

// TokenStrategy keeps the newest messages that fit a token budget.
type TokenStrategy struct {
	MaxTokens int
	// TokenCounter estimates tokens for a message. Nil uses len/4.
	TokenCounter func(msg ConversationMessage) int
	// KeepSystemMessages exempts system messages from the budget cut.
	KeepSystemMessages bool
}

// NewTokenStrategy creates a token-budget truncation strategy.
func NewTokenStrategy(maxTokens int, keepSystem bool) *TokenStrategy {
	return &TokenStrategy{MaxTokens: maxTokens, KeepSystemMessages: keepSystem}
}

func (t *TokenStrategy) Truncate(_ context.Context, messages []ConversationMessage) ([]ConversationMessage, error) {
	counter := t.TokenCounter
	if counter == nil {
		counter = func(msg ConversationMessage) int { return len(msg.Content) / 4 }
	}

	total := 0
	for _, msg := range messages {
		total += counter(msg)
	}
	if total <= t.MaxTokens {
		return messages, nil
	}

	var system, rest []ConversationMessage
	if t.KeepSystemMessages {
		system, rest = splitSystem(messages)
	} else {
		rest = messages
	}

	budget := t.MaxTokens
	for _, msg := range system {
		budget -= counter(msg)
	}
	budget = max(budget, 0)

	// Walk backwards so the newest messages survive.
	spent := 0
	cut := len(rest)
	for i := len(rest) - 1; i >= 0; i-- {
		cost := counter(rest[i])
		if spent+cost > budget {
			break
		}
		spent += cost
		cut = i
	}

	return append(system, rest[cut:]...), nil
}

func splitSystem(messages []ConversationMessage) (system, rest []ConversationMessage) {
	for _, msg := range messages {
		if msg.Role == "system" {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}
	return system, rest
}
