package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/tools"
)

// resolvePath joins p onto baseDir and rejects paths that escape it.
// An empty baseDir disables confinement.
func resolvePath(baseDir, p string) (string, error) {
	if baseDir == "" {
		return p, nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the allowed base directory", p)
	}
	return absPath, nil
}

// FileReadTool reads a file from the filesystem.
type FileReadTool struct {
	baseDir string
}

// NewFileRead creates a file_read tool. When baseDir is non-empty, reads
// are confined to that directory.
func NewFileRead(baseDir string) *FileReadTool {
	return &FileReadTool{baseDir: baseDir}
}

func (t *FileReadTool) Name() string { return "file_read" }

func (t *FileReadTool) Definition() mcp.Tool {
	return tools.NewDefinition("file_read",
		"Reads the contents of a file from the filesystem",
		map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "The path to the file to read",
			},
		},
		"file_path",
	)
}

func (t *FileReadTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	filePath, _ := args["file_path"].(string)
	path, err := resolvePath(t.baseDir, filePath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filePath, err)
	}
	return string(data), nil
}

// FileWriteTool writes content to a file, creating parent directories as
// needed and overwriting any existing file.
type FileWriteTool struct {
	baseDir string
}

// NewFileWrite creates a file_write tool confined to baseDir when set.
func NewFileWrite(baseDir string) *FileWriteTool {
	return &FileWriteTool{baseDir: baseDir}
}

func (t *FileWriteTool) Name() string { return "file_write" }

func (t *FileWriteTool) Definition() mcp.Tool {
	return tools.NewDefinition("file_write",
		"Writes content to a file, creating it if it doesn't exist or overwriting if it does",
		map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "The path to the file to write",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The content to write to the file",
			},
		},
		"file_path", "content",
	)
}

func (t *FileWriteTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	filePath, _ := args["file_path"].(string)
	content, _ := args["content"].(string)

	path, err := resolvePath(t.baseDir, filePath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating parent directory for %s: %w", filePath, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", filePath, err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), filePath), nil
}

// DirEntry is one item in a list_directory result.
type DirEntry struct {
	Name string `json:"name"`
	Type string `json:"type"` // "file" or "directory"
	Path string `json:"path"`
}

// ListDirectoryTool lists the contents of a directory.
type ListDirectoryTool struct {
	baseDir string
}

// NewListDirectory creates a list_directory tool confined to baseDir when
// set.
func NewListDirectory(baseDir string) *ListDirectoryTool {
	return &ListDirectoryTool{baseDir: baseDir}
}

func (t *ListDirectoryTool) Name() string { return "list_directory" }

func (t *ListDirectoryTool) Definition() mcp.Tool {
	return tools.NewDefinition("list_directory",
		"Lists all files and subdirectories in a given directory with their types",
		map[string]any{
			"directory_path": map[string]any{
				"type":        "string",
				"description": "The path to the directory to list",
			},
		},
		"directory_path",
	)
}

// ResultSchema declares the entry list shape for audit records.
func (t *ListDirectoryTool) ResultSchema() map[string]any {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{"type": "string"},
				"type": map[string]any{"type": "string"},
				"path": map[string]any{"type": "string"},
			},
		},
	}
}

func (t *ListDirectoryTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	dirPath, _ := args["directory_path"].(string)
	path, err := resolvePath(t.baseDir, dirPath)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dirPath, err)
	}

	entries := make([]DirEntry, 0, len(dirEntries))
	for _, e := range dirEntries {
		kind := "file"
		if e.IsDir() {
			kind = "directory"
		}
		entries = append(entries, DirEntry{
			Name: e.Name(),
			Type: kind,
			Path: filepath.Join(path, e.Name()),
		})
	}

	// Directories first, then case-insensitive by name, for stable output.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Type != entries[j].Type {
			return entries[i].Type == "directory"
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})

	return entries, nil
}

var (
	_ tools.Tool          = (*FileReadTool)(nil)
	_ tools.Tool          = (*FileWriteTool)(nil)
	_ tools.Tool          = (*ListDirectoryTool)(nil)
	_ tools.ResultSchemer = (*ListDirectoryTool)(nil)
)
