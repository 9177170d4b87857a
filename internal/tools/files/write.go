package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/forge/internal/tools"
)

// WriteTool creates or overwrites a workspace file.
type WriteTool struct {
	resolver Resolver
}

// NewWriteTool creates a write_file tool scoped to the workspace root.
func NewWriteTool(root string) *WriteTool {
	return &WriteTool{resolver: Resolver{Root: root}}
}

func (t *WriteTool) Definition() tools.Definition {
	return tools.Definition{
		Name:        "write_file",
		Description: "Write content to a file in the workspace, creating parent directories as needed. Overwrites existing files.",
		Parameters: []tools.Parameter{
			{Name: "file_path", Type: "string", Description: "Absolute path to the file to write.", Required: true},
			{Name: "content", Type: "string", Description: "Full content to write.", Required: true},
		},
		RequiresConfirmation: true,
	}
}

func (t *WriteTool) Execute(ctx context.Context, args map[string]any) (*tools.Result, error) {
	path, _ := tools.StringArg(args, "file_path")
	content, ok := tools.StringArg(args, "content")
	if !ok {
		return tools.Errorf("content is required"), nil
	}

	if !strings.HasPrefix(path, "/") {
		return tools.Errorf("file path must be absolute, got: %s", path), nil
	}
	resolved, err := t.resolver.Resolve(path)
	if err != nil {
		return tools.Errorf("%v", err), nil
	}

	if est := estimateTokens(content); est > maxOutputTokens {
		return tools.Errorf("content is too large (~%d tokens, limit %d): %s", est, maxOutputTokens, path), nil
	}

	_, statErr := os.Stat(resolved)
	existed := statErr == nil

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return tools.Errorf("create parent directories for %s: %v", path, err), nil
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return tools.Errorf("write %s: %v", path, err), nil
	}

	action := "Created"
	if existed {
		action = "Updated"
	}
	lines := strings.Count(content, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		lines++
	}
	summary := fmt.Sprintf("%s %s (%d lines, %d chars)", action, path, lines, len(content))
	return &tools.Result{Content: summary, Display: summary}, nil
}
