package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/forge/internal/tools"
	"github.com/haasonsaas/forge/internal/tools/files"
)

// maxGrepOutputChars caps the content returned to the model.
const maxGrepOutputChars = 20000

// GrepTool searches file contents with ripgrep.
type GrepTool struct {
	resolver files.Resolver
	timeout  time.Duration
}

// NewGrepTool creates a grep tool scoped to the workspace root.
func NewGrepTool(root string) *GrepTool {
	return &GrepTool{resolver: files.Resolver{Root: root}, timeout: defaultRipgrepTimeout}
}

func (t *GrepTool) Definition() tools.Definition {
	return tools.Definition{
		Name: "grep",
		Description: "Search file contents using regex patterns, built on ripgrep. " +
			"Output modes: files_with_matches (default, file paths only), content (matching lines), count (match counts per file).",
		Parameters: []tools.Parameter{
			{Name: "pattern", Type: "string", Description: "The regular expression to search for.", Required: true},
			{Name: "path", Type: "string", Description: "File or directory to search in. Defaults to the workspace root. Must be absolute if provided."},
			{Name: "glob", Type: "string", Description: "Glob pattern to filter files (e.g. \"*.go\", \"*.{ts,tsx}\")."},
			{Name: "output_mode", Type: "string", Description: "Output mode. Defaults to files_with_matches.", Enum: []string{"content", "files_with_matches", "count"}},
			{Name: "-B", Type: "integer", Description: "Lines to show before each match. content mode only."},
			{Name: "-A", Type: "integer", Description: "Lines to show after each match. content mode only."},
			{Name: "-C", Type: "integer", Description: "Lines to show before and after each match. content mode only."},
			{Name: "-n", Type: "boolean", Description: "Show line numbers (default true). content mode only."},
			{Name: "-i", Type: "boolean", Description: "Case insensitive search."},
			{Name: "type", Type: "string", Description: "File type filter (rg --type), e.g. go, py, js."},
			{Name: "head_limit", Type: "integer", Description: "Limit output to the first N lines/entries."},
			{Name: "multiline", Type: "boolean", Description: "Let patterns span lines (rg -U --multiline-dotall)."},
		},
	}
}

func (t *GrepTool) Execute(ctx context.Context, args map[string]any) (*tools.Result, error) {
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
		if _, err := os.Stat(resolved); err != nil {
			return tools.Errorf("path not found: %s", p), nil
		}
		searchPath = resolved
	}

	mode, _ := tools.StringArg(args, "output_mode")
	if mode == "" {
		mode = "files_with_matches"
	}
	switch mode {
	case "content", "files_with_matches", "count":
	default:
		return tools.Errorf("invalid output_mode: %s", mode), nil
	}

	before, hasBefore := tools.IntArg(args, "-B")
	after, hasAfter := tools.IntArg(args, "-A")
	around, hasAround := tools.IntArg(args, "-C")
	_, hasLineNumbers := tools.BoolArg(args, "-n")

	if mode != "content" && (hasBefore || hasAfter || hasAround || hasLineNumbers) {
		return tools.Errorf("context options (-A, -B, -C, -n) require output_mode: content"), nil
	}
	if hasAround && (hasBefore || hasAfter) {
		return tools.Errorf("cannot combine -C with -A or -B"), nil
	}

	rgArgs := t.buildArgs(pattern, mode, args, before, hasBefore, after, hasAfter, around, hasAround)

	lines, err := executeRipgrep(ctx, rgArgs, searchPath, t.timeout)
	if err != nil {
		return tools.Errorf("%v", err), nil
	}

	if limit, ok := tools.IntArg(args, "head_limit"); ok && limit >= 0 && len(lines) > limit {
		lines = lines[:limit]
	}

	return t.formatResult(mode, lines), nil
}

func (t *GrepTool) buildArgs(pattern, mode string, args map[string]any, before int, hasBefore bool, after int, hasAfter bool, around int, hasAround bool) []string {
	var rgArgs []string

	if ml, _ := tools.BoolArg(args, "multiline"); ml {
		rgArgs = append(rgArgs, "-U", "--multiline-dotall")
	}
	if ci, _ := tools.BoolArg(args, "-i"); ci {
		rgArgs = append(rgArgs, "-i")
	}

	switch mode {
	case "files_with_matches":
		rgArgs = append(rgArgs, "-l")
	case "count":
		rgArgs = append(rgArgs, "-c")
	case "content":
		showNumbers := true
		if n, ok := tools.BoolArg(args, "-n"); ok {
			showNumbers = n
		}
		if showNumbers {
			rgArgs = append(rgArgs, "-n")
		}
		if hasAround {
			rgArgs = append(rgArgs, "-C", strconv.Itoa(around))
		} else {
			if hasBefore {
				rgArgs = append(rgArgs, "-B", strconv.Itoa(before))
			}
			if hasAfter {
				rgArgs = append(rgArgs, "-A", strconv.Itoa(after))
			}
		}
	}

	// Patterns starting with a dash would be read as flags.
	if strings.HasPrefix(pattern, "-") {
		rgArgs = append(rgArgs, "-e", pattern)
	} else {
		rgArgs = append(rgArgs, pattern)
	}

	if ft, ok := tools.StringArg(args, "type"); ok && ft != "" {
		rgArgs = append(rgArgs, "--type", ft)
	}
	if glob, ok := tools.StringArg(args, "glob"); ok && glob != "" {
		for _, g := range parseGlobPatterns(glob) {
			rgArgs = append(rgArgs, "--glob", g)
		}
	}
	return rgArgs
}

// parseGlobPatterns splits a glob argument on whitespace and commas,
// keeping brace groups like "*.{ts,tsx}" intact.
func parseGlobPatterns(glob string) []string {
	var patterns []string
	for _, part := range strings.Fields(glob) {
		if strings.Contains(part, "{") && strings.Contains(part, "}") {
			patterns = append(patterns, part)
			continue
		}
		for _, p := range strings.Split(part, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
	}
	return patterns
}

func (t *GrepTool) formatResult(mode string, lines []string) *tools.Result {
	switch mode {
	case "content":
		content := "No matches found"
		if len(lines) > 0 {
			content = strings.Join(lines, "\n")
		}
		return &tools.Result{
			Content: capOutput(content),
			Display: fmt.Sprintf("✓ Found %d matching line%s", len(lines), plural(len(lines))),
		}

	case "count":
		totalMatches, fileCount := 0, 0
		for _, line := range lines {
			idx := strings.LastIndex(line, ":")
			if idx <= 0 {
				continue
			}
			if n, err := strconv.Atoi(line[idx+1:]); err == nil {
				totalMatches += n
				fileCount++
			}
		}
		body := "No matches found"
		if len(lines) > 0 {
			body = strings.Join(lines, "\n")
		}
		content := fmt.Sprintf("%s\n\nFound %d total occurrence%s across %d file%s.",
			body, totalMatches, plural(totalMatches), fileCount, plural(fileCount))
		return &tools.Result{
			Content: capOutput(content),
			Display: fmt.Sprintf("✓ Found %d match%s in %d file%s", totalMatches, pluralEs(totalMatches), fileCount, plural(fileCount)),
		}

	default: // files_with_matches
		if len(lines) == 0 {
			return &tools.Result{Content: "No files found", Display: "No matching files found"}
		}
		sorted := sortByMtimeDesc(lines)
		content := fmt.Sprintf("Found %d file%s:\n%s", len(sorted), plural(len(sorted)), strings.Join(sorted, "\n"))
		return &tools.Result{
			Content: capOutput(content),
			Display: fmt.Sprintf("✓ Found %d matching file%s", len(sorted), plural(len(sorted))),
		}
	}
}

// sortByMtimeDesc sorts file paths newest-first, ties broken by path.
func sortByMtimeDesc(paths []string) []string {
	type entry struct {
		path  string
		mtime int64
	}
	entries := make([]entry, len(paths))
	for i, p := range paths {
		var mtime int64
		if info, err := os.Stat(p); err == nil {
			mtime = info.ModTime().UnixNano()
		}
		entries[i] = entry{path: p, mtime: mtime}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].mtime != entries[j].mtime {
			return entries[i].mtime > entries[j].mtime
		}
		return entries[i].path < entries[j].path
	})
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.path
	}
	return out
}

func capOutput(content string) string {
	if len(content) <= maxGrepOutputChars {
		return content
	}
	truncated := content[:maxGrepOutputChars]
	extraLines := strings.Count(content[maxGrepOutputChars:], "\n")
	return fmt.Sprintf("%s\n\n... [%d lines truncated] ...", truncated, extraLines)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func pluralEs(n int) string {
	if n == 1 {
		return ""
	}
	return "es"
}
