package memory

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxEntryBytes bounds a single JSONL line. Entries carry full task
// results, which outgrow bufio.Scanner's 64KB default.
const maxEntryBytes = 4 << 20

// FileStore persists entries as JSON lines in a file.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed memory store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Store appends a JSON-encoded entry to the file.
func (f *FileStore) Store(_ context.Context, data any) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("creating memory store directory: %w", err)
	}

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening memory store: %w", err)
	}
	defer file.Close()

	return json.NewEncoder(file).Encode(data)
}

// Retrieve looks up stored entries. A nil query returns the last entry.
// A func(any) bool query returns the last entry that satisfies it. A
// string query returns all entries containing it, case-insensitively,
// newest first, as a []string.
func (f *FileStore) Retrieve(_ context.Context, query any) (any, error) {
	file, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("opening memory store: %w", err)
	}
	defer file.Close()

	switch q := query.(type) {
	case nil:
		return f.lastMatch(file, func(any) bool { return true })
	case func(any) bool:
		return f.lastMatch(file, q)
	case string:
		return f.search(file, q)
	default:
		return nil, errors.New("memory: unsupported query type")
	}
}

func (f *FileStore) lastMatch(file *os.File, match func(any) bool) (any, error) {
	var (
		last any
		hit  bool
	)
	err := scanEntries(file, func(entry any) {
		if match(entry) {
			last = entry
			hit = true
		}
	})
	if err != nil {
		return nil, err
	}
	if !hit {
		return nil, ErrNotFound
	}
	return last, nil
}

func (f *FileStore) search(file *os.File, query string) (any, error) {
	needle := strings.ToLower(query)

	var matches []string
	err := scanEntries(file, func(entry any) {
		text := entryText(entry)
		if strings.Contains(strings.ToLower(text), needle) {
			matches = append(matches, text)
		}
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNotFound
	}

	// File order is oldest first; recall wants newest first.
	for i, j := 0, len(matches)-1; i < j; i, j = i+1, j-1 {
		matches[i], matches[j] = matches[j], matches[i]
	}
	return matches, nil
}

// scanEntries streams decoded entries to visit. Undecodable lines are
// skipped: a torn final line from an interrupted append must not poison
// every later read.
func scanEntries(file *os.File, visit func(entry any)) error {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEntryBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry any
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		visit(entry)
	}
	return scanner.Err()
}
