package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryConversation keeps conversation history in process memory. Data
// is lost on restart; use the file or SQLite store for persistence.
type InMemoryConversation struct {
	mu       sync.RWMutex
	sessions map[string][]ConversationMessage
	config   ConversationConfig
}

// NewInMemoryConversation creates an in-memory conversation store.
func NewInMemoryConversation(config ConversationConfig) *InMemoryConversation {
	return &InMemoryConversation{
		sessions: map[string][]ConversationMessage{},
		config:   config,
	}
}

func (c *InMemoryConversation) AppendMessage(_ context.Context, sessionID string, msg ConversationMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fillDefaults(&msg, sessionID)
	c.sessions[sessionID] = capRetained(append(c.sessions[sessionID], msg), c.config.MaxSessionMessages)
	return nil
}

func (c *InMemoryConversation) GetMessages(ctx context.Context, sessionID string) ([]ConversationMessage, error) {
	messages := c.snapshot(sessionID, 0)
	if c.config.TruncationStrategy != nil && len(messages) > 0 {
		return c.config.TruncationStrategy.Truncate(ctx, messages)
	}
	return messages, nil
}

func (c *InMemoryConversation) GetRecentMessages(_ context.Context, sessionID string, limit int) ([]ConversationMessage, error) {
	return c.snapshot(sessionID, limit), nil
}

func (c *InMemoryConversation) Clear(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.sessions, sessionID)
	return nil
}

func (c *InMemoryConversation) DeleteOldMessages(_ context.Context, sessionID string, olderThan time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages, ok := c.sessions[sessionID]
	if !ok {
		return nil
	}

	cutoff := time.Now().Add(-olderThan)
	c.sessions[sessionID] = slices.DeleteFunc(messages, func(msg ConversationMessage) bool {
		return !msg.CreatedAt.After(cutoff)
	})
	return nil
}

// ListSessions returns all session IDs, sorted.
func (c *InMemoryConversation) ListSessions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.sessions))
}

// MessageCount returns the number of messages in a session.
func (c *InMemoryConversation) MessageCount(sessionID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions[sessionID])
}

// snapshot copies the tail of a session under the read lock. A limit of
// zero copies everything. Callers get a slice they own.
func (c *InMemoryConversation) snapshot(sessionID string, limit int) []ConversationMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	all := c.sessions[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return slices.Clone(all)
}

// fillDefaults assigns an ID, session, and timestamp to a message that
// lacks them.
func fillDefaults(msg *ConversationMessage, sessionID string) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.SessionID == "" {
		msg.SessionID = sessionID
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
}

var _ ConversationMemory = (*InMemoryConversation)(nil)
