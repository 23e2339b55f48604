package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileConversation persists each session as a JSON file under a base
// directory. Suitable for single-process use; writes are serialized with
// a process-wide lock.
type FileConversation struct {
	mu      sync.Mutex
	baseDir string
	config  ConversationConfig
}

// NewFileConversation creates a file-backed conversation store rooted at
// baseDir, creating the directory if needed.
func NewFileConversation(baseDir string, config ConversationConfig) (*FileConversation, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating conversation directory: %w", err)
	}
	return &FileConversation{baseDir: baseDir, config: config}, nil
}

func (f *FileConversation) AppendMessage(_ context.Context, sessionID string, msg ConversationMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	messages, err := f.load(sessionID)
	if err != nil {
		return err
	}

	fillDefaults(&msg, sessionID)
	messages = capRetained(append(messages, msg), f.config.MaxSessionMessages)
	return f.save(sessionID, messages)
}

func (f *FileConversation) GetMessages(ctx context.Context, sessionID string) ([]ConversationMessage, error) {
	f.mu.Lock()
	messages, err := f.load(sessionID)
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if f.config.TruncationStrategy != nil && len(messages) > 0 {
		return f.config.TruncationStrategy.Truncate(ctx, messages)
	}
	return messages, nil
}

func (f *FileConversation) GetRecentMessages(_ context.Context, sessionID string, limit int) ([]ConversationMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	messages, err := f.load(sessionID)
	if err != nil {
		return nil, err
	}
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

func (f *FileConversation) Clear(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.sessionFile(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

func (f *FileConversation) DeleteOldMessages(_ context.Context, sessionID string, olderThan time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	messages, err := f.load(sessionID)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	cutoff := time.Now().Add(-olderThan)
	messages = slices.DeleteFunc(messages, func(msg ConversationMessage) bool {
		return !msg.CreatedAt.After(cutoff)
	})
	return f.save(sessionID, messages)
}

// ListSessions returns the session IDs that have a file on disk, sorted.
func (f *FileConversation) ListSessions() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.baseDir)
	if err != nil {
		return nil, fmt.Errorf("reading conversation directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// sessionFile maps a session ID to its path. filepath.Base strips any
// separators so a session ID cannot escape the base directory.
func (f *FileConversation) sessionFile(sessionID string) string {
	return filepath.Join(f.baseDir, filepath.Base(sessionID)+".json")
}

func (f *FileConversation) load(sessionID string) ([]ConversationMessage, error) {
	raw, err := os.ReadFile(f.sessionFile(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}

	var messages []ConversationMessage
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("decoding session file: %w", err)
	}
	return messages, nil
}

func (f *FileConversation) save(sessionID string, messages []ConversationMessage) error {
	raw, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	path := f.sessionFile(sessionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing session file: %w", err)
	}
	return nil
}

var _ ConversationMemory = (*FileConversation)(nil)
