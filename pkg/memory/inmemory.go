// Package memory provides memory backends and embedding helpers.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNotFound indicates no matching item was found.
var ErrNotFound = errors.New("memory: not found")

// InMemory is a simple in-process memory backend.
type InMemory struct {
	mu   sync.RWMutex
	data []any
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{}
}

// Store appends data to the memory.
func (m *InMemory) Store(_ context.Context, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append(m.data, data)
	return nil
}

// Retrieve looks up stored items. A nil query returns the last item. A
// func(any) bool query returns the last item that satisfies it. A string
// query returns all entries containing it, case-insensitively, newest
// first, as a []string.
func (m *InMemory) Retrieve(_ context.Context, query any) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.data) == 0 {
		return nil, ErrNotFound
	}

	switch q := query.(type) {
	case nil:
		return m.data[len(m.data)-1], nil
	case func(any) bool:
		for i := len(m.data) - 1; i >= 0; i-- {
			if q(m.data[i]) {
				return m.data[i], nil
			}
		}
		return nil, ErrNotFound
	case string:
		var matches []string
		needle := strings.ToLower(q)
		for i := len(m.data) - 1; i >= 0; i-- {
			text := entryText(m.data[i])
			if strings.Contains(strings.ToLower(text), needle) {
				matches = append(matches, text)
			}
		}
		if len(matches) == 0 {
			return nil, ErrNotFound
		}
		return matches, nil
	default:
		return nil, errors.New("memory: unsupported query type")
	}
}

// entryText renders a stored entry for text matching and recall output.
func entryText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
