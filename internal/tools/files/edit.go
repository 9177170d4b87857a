package files

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/forge/internal/tools"
)

// snippetContext is how many lines of context surround an edit in the
// verification snippet.
const snippetContext = 4

// EditTool performs exact-string replacement inside a workspace file.
// The target file must have been read this session first.
type EditTool struct {
	resolver Resolver
	tracker  *ReadTracker
}

// NewEditTool creates an edit_file tool scoped to the workspace root.
func NewEditTool(root string, tracker *ReadTracker) *EditTool {
	return &EditTool{resolver: Resolver{Root: root}, tracker: tracker}
}

func (t *EditTool) Definition() tools.Definition {
	return tools.Definition{
		Name:        "edit_file",
		Description: "Replace an exact string in a file. The old string must match exactly once unless replace_all is set. Read the file first.",
		Parameters: []tools.Parameter{
			{Name: "file_path", Type: "string", Description: "Absolute path to the file to edit.", Required: true},
			{Name: "old_string", Type: "string", Description: "Exact text to replace.", Required: true},
			{Name: "new_string", Type: "string", Description: "Replacement text.", Required: true},
			{Name: "replace_all", Type: "boolean", Description: "Replace every occurrence (default false)."},
		},
		RequiresConfirmation: true,
	}
}

func (t *EditTool) Execute(ctx context.Context, args map[string]any) (*tools.Result, error) {
	path, _ := tools.StringArg(args, "file_path")
	oldString, _ := tools.StringArg(args, "old_string")
	newString, _ := tools.StringArg(args, "new_string")
	replaceAll, _ := tools.BoolArg(args, "replace_all")

	if !strings.HasPrefix(path, "/") {
		return tools.Errorf("file path must be absolute, got: %s", path), nil
	}
	resolved, err := t.resolver.Resolve(path)
	if err != nil {
		return tools.Errorf("%v", err), nil
	}
	if _, err := statRegularFile(resolved); err != nil {
		return tools.Errorf("%v", err), nil
	}
	if !t.tracker.WasRead(resolved) {
		return tools.Errorf("file has not been read yet. Use read_file before editing: %s", path), nil
	}
	if oldString == "" {
		return tools.Errorf("old_string cannot be empty"), nil
	}
	if oldString == newString {
		return tools.Errorf("old_string and new_string are identical. No edit performed: %s", path), nil
	}

	raw, encoding, err := readWithFallback(resolved)
	if err != nil {
		return tools.Errorf("read %s: %v", path, err), nil
	}

	content := expandTabs(raw)
	oldExpanded := expandTabs(oldString)
	newExpanded := expandTabs(newString)

	count := strings.Count(content, oldExpanded)
	switch {
	case count == 0:
		return tools.Errorf("string not found in file: %s", path), nil
	case count > 1 && !replaceAll:
		numbers := occurrenceLines(content, oldExpanded)
		return tools.Errorf(
			"found %d occurrences of old_string (lines %s) in %s. Use replace_all, or include more surrounding context to make the match unique",
			count, joinInts(numbers), path), nil
	}

	var updated string
	replaced := 1
	if replaceAll {
		updated = strings.ReplaceAll(content, oldExpanded, newExpanded)
		replaced = count
	} else {
		updated = strings.Replace(content, oldExpanded, newExpanded, 1)
	}

	if est := estimateTokens(updated); est > maxOutputTokens {
		return tools.Errorf("edited content is too large (~%d tokens, limit %d): %s", est, maxOutputTokens, path), nil
	}

	if err := writeWithEncoding(resolved, updated, encoding); err != nil {
		return tools.Errorf("write %s: %v", path, err), nil
	}

	snippet := editSnippet(updated, oldExpanded, newExpanded, content)
	body := fmt.Sprintf("Edited %s (%d replacement(s)).\n\nSnippet of the edited region:\n%s", path, replaced, snippet)
	return &tools.Result{
		Content: body,
		Display: fmt.Sprintf("Edited %s (%d replacement(s))", path, replaced),
	}, nil
}

// occurrenceLines returns the 1-indexed line numbers where needle
// begins in content.
func occurrenceLines(content, needle string) []int {
	var numbers []int
	offset := 0
	for {
		idx := strings.Index(content[offset:], needle)
		if idx < 0 {
			break
		}
		abs := offset + idx
		numbers = append(numbers, 1+strings.Count(content[:abs], "\n"))
		offset = abs + len(needle)
	}
	return numbers
}

func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ", ")
}

// editSnippet renders the first replacement with surrounding context
// lines, numbered so the model can verify the edit landed.
func editSnippet(updated, oldExpanded, newExpanded, original string) string {
	// Locate the replacement in the updated content. When the new
	// string is empty, fall back to where the old string used to be.
	needle := newExpanded
	haystack := updated
	if needle == "" {
		needle = oldExpanded
		haystack = original
	}
	idx := strings.Index(haystack, needle)
	if idx < 0 {
		idx = 0
	}
	editLine := strings.Count(haystack[:idx], "\n") // 0-indexed

	lines := splitLines(updated)
	start := editLine - snippetContext
	if start < 0 {
		start = 0
	}
	newLineCount := strings.Count(newExpanded, "\n")
	end := editLine + newLineCount + snippetContext + 1
	if end > len(lines) {
		end = len(lines)
	}
	return numberLines(lines[start:end], start+1)
}
