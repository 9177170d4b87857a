package files

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/forge/internal/tools"
)

// maxReadBytes is the size guard applied when no line range is given.
const maxReadBytes = 256 * 1024

// defaultReadLines is how many lines a rangeless read returns.
const defaultReadLines = 1000

// ReadTool reads a workspace file with line-range and size guards.
type ReadTool struct {
	resolver Resolver
	tracker  *ReadTracker
}

// NewReadTool creates a read_file tool scoped to the workspace root.
func NewReadTool(root string, tracker *ReadTracker) *ReadTool {
	return &ReadTool{resolver: Resolver{Root: root}, tracker: tracker}
}

func (t *ReadTool) Definition() tools.Definition {
	return tools.Definition{
		Name:        "read_file",
		Description: "Read a file from the workspace. Returns line-numbered content. Use start_line/end_line for large files.",
		Parameters: []tools.Parameter{
			{Name: "file_path", Type: "string", Description: "Absolute path to the file to read.", Required: true},
			{Name: "start_line", Type: "integer", Description: "First line to read (1-indexed)."},
			{Name: "end_line", Type: "integer", Description: "Last line to read (1-indexed, inclusive)."},
		},
	}
}

func (t *ReadTool) Execute(ctx context.Context, args map[string]any) (*tools.Result, error) {
	path, _ := tools.StringArg(args, "file_path")
	startLine, hasStart := tools.IntArg(args, "start_line")
	endLine, hasEnd := tools.IntArg(args, "end_line")

	if !strings.HasPrefix(path, "/") {
		return tools.Errorf("file path must be absolute, got: %s", path), nil
	}
	resolved, err := t.resolver.Resolve(path)
	if err != nil {
		return tools.Errorf("%v", err), nil
	}

	info, err := statRegularFile(resolved)
	if err != nil {
		return tools.Errorf("%v", err), nil
	}

	hasRange := hasStart || hasEnd
	if info.Size() > maxReadBytes && !hasRange {
		return tools.Errorf(
			"file is %d bytes (limit %d). Use start_line/end_line to read a portion of it: %s",
			info.Size(), maxReadBytes, path), nil
	}

	content, _, err := readWithFallback(resolved)
	if err != nil {
		return tools.Errorf("read %s: %v", path, err), nil
	}

	lines := splitLines(content)
	total := len(lines)

	if !hasStart || startLine < 1 {
		startLine = 1
	}
	if startLine > total {
		return tools.Errorf("start_line %d is beyond end of file (%d lines): %s", startLine, total, path), nil
	}
	last := endLine
	if !hasEnd || last < startLine {
		last = startLine + defaultReadLines - 1
	}
	if last > total {
		last = total
	}

	selected := lines[startLine-1 : last]
	output := numberLines(selected, startLine)

	truncated := last < total
	if truncated && !hasEnd {
		output += fmt.Sprintf(
			"\n<system-reminder>File truncated at line %d. The file has %d lines in total. Use start_line/end_line to read more.</system-reminder>\n",
			last, total)
	}

	if est := estimateTokens(output); est > maxOutputTokens {
		return tools.Errorf(
			"file content is too large (~%d tokens, limit %d). Use start_line/end_line to read a smaller range: %s",
			est, maxOutputTokens, path), nil
	}

	t.tracker.MarkRead(resolved)

	return &tools.Result{
		Content: output,
		Display: fmt.Sprintf("Read %d lines from %s", len(selected), path),
	}, nil
}

// splitLines splits content into lines without a trailing phantom line.
func splitLines(content string) []string {
	if content == "" {
		return []string{""}
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
