package builtin

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	write := NewFileWrite(dir)
	result, err := write.Execute(ctx, map[string]any{
		"file_path": "notes/hello.txt",
		"content":   "hello world",
	})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if result != "wrote 11 bytes to notes/hello.txt" {
		t.Errorf("unexpected write result: %v", result)
	}

	read := NewFileRead(dir)
	content, err := read.Execute(ctx, map[string]any{"file_path": "notes/hello.txt"})
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if content != "hello world" {
		t.Errorf("expected 'hello world', got %v", content)
	}
}

func TestFileReadMissing(t *testing.T) {
	read := NewFileRead(t.TempDir())
	_, err := read.Execute(context.Background(), map[string]any{"file_path": "nope.txt"})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFileWriteOverwrites(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	write := NewFileWrite(dir)

	for _, content := range []string{"first", "second"} {
		if _, err := write.Execute(ctx, map[string]any{
			"file_path": "f.txt",
			"content":   content,
		}); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "f.txt"))
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("expected overwrite, got %q", data)
	}
}

func TestFilePathConfinement(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	tests := []struct {
		name string
		path string
	}{
		{"parent traversal", "../escape.txt"},
		{"nested traversal", "sub/../../escape.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			write := NewFileWrite(dir)
			_, err := write.Execute(ctx, map[string]any{"file_path": tt.path, "content": "x"})
			if err == nil {
				t.Fatal("expected confinement error")
			}
			if !strings.Contains(err.Error(), "escapes") {
				t.Errorf("unexpected error: %v", err)
			}

			read := NewFileRead(dir)
			if _, err := read.Execute(ctx, map[string]any{"file_path": tt.path}); err == nil {
				t.Fatal("expected confinement error on read")
			}
		})
	}
}

func TestListDirectory(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	for _, name := range []string{"b.txt", "Apple.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	list := NewListDirectory(dir)
	result, err := list.Execute(ctx, map[string]any{"directory_path": "."})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	entries, ok := result.([]DirEntry)
	if !ok {
		t.Fatalf("expected []DirEntry, got %T", result)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	// Directories first, then files case-insensitively.
	wantNames := []string{"sub", "Apple.txt", "b.txt"}
	wantTypes := []string{"directory", "file", "file"}
	for i, e := range entries {
		if e.Name != wantNames[i] {
			t.Errorf("entry %d: expected name %q, got %q", i, wantNames[i], e.Name)
		}
		if e.Type != wantTypes[i] {
			t.Errorf("entry %d: expected type %q, got %q", i, wantTypes[i], e.Type)
		}
		if e.Path == "" {
			t.Errorf("entry %d: empty path", i)
		}
	}
}

func TestListDirectoryMissing(t *testing.T) {
	list := NewListDirectory(t.TempDir())
	_, err := list.Execute(context.Background(), map[string]any{"directory_path": "absent"})
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
