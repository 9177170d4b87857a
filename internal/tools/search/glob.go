package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/haasonsaas/forge/internal/tools"
	"github.com/haasonsaas/forge/internal/tools/files"
)

// maxGlobResults caps how many paths a single glob call returns.
const maxGlobResults = 100

// GlobTool finds files by glob pattern, newest first.
type GlobTool struct {
	resolver files.Resolver
}

// NewGlobTool creates a glob tool scoped to the workspace root.
func NewGlobTool(root string) *GlobTool {
	return &GlobTool{resolver: files.Resolver{Root: root}}
}

func (t *GlobTool) Definition() tools.Definition {
	return tools.Definition{
		Name: "glob",
		Description: "Find files by name patterns using glob syntax, e.g. \"*.go\", \"**/*.ts\", \"src/**/*_test.go\". " +
			"Results are sorted by modification time (newest first) and limited to 100 paths.",
		Parameters: []tools.Parameter{
			{Name: "pattern", Type: "string", Description: "The glob pattern to match files against.", Required: true},
			{Name: "path", Type: "string", Description: "The directory to search in. Defaults to the workspace root. Must be absolute if provided."},
		},
	}
}

func (t *GlobTool) Execute(ctx context.Context, args map[string]any) (*tools.Result, error) {
	pattern, ok := tools.StringArg(args, "pattern")
	if !ok || pattern == "" {
		return tools.Errorf("pattern is required"), nil
	}

	searchPath := t.resolver.Root
	if p, ok := tools.StringArg(args, "path"); ok && p != "" {
		if !filepath.IsAbs(p) {
			return tools.Errorf("path must be absolute, got: %s", p), nil
		}
		resolved, err := t.resolver.Resolve(p)
		if err != nil {
			return tools.Errorf("%v", err), nil
		}
		searchPath = resolved
	}
	searchPath, err := filepath.Abs(searchPath)
	if err != nil {
		return tools.Errorf("resolve search path: %v", err), nil
	}
	info, err := os.Stat(searchPath)
	if err != nil {
		return tools.Errorf("path not found: %s", searchPath), nil
	}
	if !info.IsDir() {
		return tools.Errorf("path is not a directory: %s", searchPath), nil
	}

	matches, err := doublestar.Glob(os.DirFS(searchPath), filepath.ToSlash(pattern))
	if err != nil {
		return tools.Errorf("invalid glob pattern %q: %v", pattern, err), nil
	}

	var found []string
	for _, m := range matches {
		abs := filepath.Join(searchPath, filepath.FromSlash(m))
		info, err := os.Stat(abs)
		if err != nil || info.IsDir() {
			continue
		}
		if shouldIgnore(m, defaultIgnorePatterns) {
			continue
		}
		found = append(found, abs)
	}

	totalFound := len(found)
	sorted := sortByMtimeDesc(found)
	truncated := totalFound > maxGlobResults
	if truncated {
		sorted = sorted[:maxGlobResults]
	}

	if totalFound == 0 {
		return &tools.Result{Content: "No files found", Display: "No files found"}, nil
	}

	content := strings.Join(sorted, "\n")
	if truncated {
		content += fmt.Sprintf(
			"\n\n(Results are truncated. Found %d files, showing first %d. Consider using a more specific path or pattern.)",
			totalFound, len(sorted))
	}

	display := fmt.Sprintf("✓ Found %d file%s", len(sorted), plural(len(sorted)))
	if truncated {
		display = fmt.Sprintf("✓ Found %d files (truncated from %d)", len(sorted), totalFound)
	}
	return &tools.Result{Content: content, Display: display}, nil
}
