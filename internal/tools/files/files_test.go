package files

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolver_ConfinesToWorkspace(t *testing.T) {
	root := t.TempDir()
	r := Resolver{Root: root}

	resolved, err := r.Resolve(filepath.Join(root, "a", "b.txt"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resolved, root))

	_, err = r.Resolve(filepath.Join(root, "..", "escape.txt"))
	assert.Error(t, err)

	_, err = r.Resolve("/etc/passwd")
	assert.Error(t, err)

	_, err = r.Resolve("  ")
	assert.Error(t, err)
}

func TestResolver_RejectsEscapingSymlink(t *testing.T) {
	outside := t.TempDir()
	writeTemp(t, outside, "secret.txt", "top secret\n")
	root := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))
	r := Resolver{Root: root}

	_, err := r.Resolve(filepath.Join(root, "link", "secret.txt"))
	assert.ErrorContains(t, err, "escapes workspace")

	// a symlinked file, not just a directory, is rejected the same way
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "alias.txt")))
	_, err = r.Resolve(filepath.Join(root, "alias.txt"))
	assert.ErrorContains(t, err, "escapes workspace")

	// a not-yet-created write target under the escaping link is caught too
	_, err = r.Resolve(filepath.Join(root, "link", "new.txt"))
	assert.ErrorContains(t, err, "escapes workspace")
}

func TestResolver_FollowsInternalSymlink(t *testing.T) {
	root := t.TempDir()
	writeTemp(t, root, "real/data.txt", "payload")
	require.NoError(t, os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "shortcut")))
	r := Resolver{Root: root}

	resolved, err := r.Resolve(filepath.Join(root, "shortcut", "data.txt"))
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(filepath.Join(root, "real", "data.txt"))
	require.NoError(t, err)
	assert.Equal(t, want, resolved)
}

func TestReadTool_NumbersLines(t *testing.T) {
	root := t.TempDir()
	path := writeTemp(t, root, "hello.txt", "alpha\nbeta\ngamma\n")

	tool := NewReadTool(root, NewReadTracker())
	res, err := tool.Execute(context.Background(), map[string]any{"file_path": path})
	require.NoError(t, err)

	assert.Contains(t, res.Content, "     1→alpha")
	assert.Contains(t, res.Content, "     3→gamma")
	assert.NotContains(t, res.Content, "Error:")
}

func TestReadTool_RangeAndReminder(t *testing.T) {
	root := t.TempDir()
	var sb strings.Builder
	for i := 0; i < 1500; i++ {
		sb.WriteString("line\n")
	}
	path := writeTemp(t, root, "big.txt", sb.String())

	tool := NewReadTool(root, NewReadTracker())

	res, err := tool.Execute(context.Background(), map[string]any{"file_path": path})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "  1000→")
	assert.NotContains(t, res.Content, "  1001→")
	assert.Contains(t, res.Content, "1500 lines in total")

	res, err = tool.Execute(context.Background(), map[string]any{
		"file_path":  path,
		"start_line": float64(1400),
		"end_line":   float64(1401),
	})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "  1400→")
	assert.NotContains(t, res.Content, "system-reminder")
}

func TestReadTool_SizeGuard(t *testing.T) {
	root := t.TempDir()
	big := strings.Repeat("x", maxReadBytes+1024)
	path := writeTemp(t, root, "huge.txt", big)

	tool := NewReadTool(root, NewReadTracker())

	res, err := tool.Execute(context.Background(), map[string]any{"file_path": path})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Content, "Error:"))
	assert.Contains(t, res.Content, "start_line")
}

func TestReadTool_TokenGuard(t *testing.T) {
	root := t.TempDir()
	// Under the byte guard but over the token guard once numbered.
	line := strings.Repeat("y", 200)
	var sb strings.Builder
	for i := 0; i < 600; i++ {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	path := writeTemp(t, root, "dense.txt", sb.String())

	tool := NewReadTool(root, NewReadTracker())
	res, err := tool.Execute(context.Background(), map[string]any{"file_path": path, "start_line": float64(1), "end_line": float64(600)})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Content, "Error:"))
	assert.Contains(t, res.Content, "tokens")
}

func TestReadTool_RejectsRelativeAndMissing(t *testing.T) {
	root := t.TempDir()
	tool := NewReadTool(root, NewReadTracker())

	res, err := tool.Execute(context.Background(), map[string]any{"file_path": "relative.txt"})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "absolute")

	res, err = tool.Execute(context.Background(), map[string]any{"file_path": filepath.Join(root, "missing.txt")})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "not found")
}

func TestWriteTool_CreatesAndUpdates(t *testing.T) {
	root := t.TempDir()
	tool := NewWriteTool(root)
	path := filepath.Join(root, "nested", "out.txt")

	res, err := tool.Execute(context.Background(), map[string]any{"file_path": path, "content": "one\ntwo\n"})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "Created")
	assert.Contains(t, res.Content, "2 lines")

	res, err = tool.Execute(context.Background(), map[string]any{"file_path": path, "content": "three\n"})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "Updated")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "three\n", string(data))
}

func TestWriteTool_RoundTripsThroughRead(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "cycle.txt")
	content := "first\nsecond\n"

	w := NewWriteTool(root)
	_, err := w.Execute(context.Background(), map[string]any{"file_path": path, "content": content})
	require.NoError(t, err)

	r := NewReadTool(root, NewReadTracker())
	res, err := r.Execute(context.Background(), map[string]any{"file_path": path})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "     1→first")
	assert.Contains(t, res.Content, "     2→second")
}

func TestEditTool_RequiresPriorRead(t *testing.T) {
	root := t.TempDir()
	path := writeTemp(t, root, "a.txt", "hello world\n")

	tracker := NewReadTracker()
	tool := NewEditTool(root, tracker)

	res, err := tool.Execute(context.Background(), map[string]any{
		"file_path": path, "old_string": "hello", "new_string": "goodbye",
	})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "read_file")
}

func TestEditTool_ReplaceUnique(t *testing.T) {
	root := t.TempDir()
	path := writeTemp(t, root, "a.txt", "one\ntwo\nthree\nfour\nfive\nsix\nseven\n")

	tracker := NewReadTracker()
	read := NewReadTool(root, tracker)
	_, err := read.Execute(context.Background(), map[string]any{"file_path": path})
	require.NoError(t, err)

	tool := NewEditTool(root, tracker)
	res, err := tool.Execute(context.Background(), map[string]any{
		"file_path": path, "old_string": "four", "new_string": "FOUR",
	})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "1 replacement")
	assert.Contains(t, res.Content, "     4→FOUR")
	// Context window reaches 4 lines either side.
	assert.Contains(t, res.Content, "     1→one")
	assert.Contains(t, res.Content, "     7→seven")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "FOUR")
}

func TestEditTool_RejectsIdenticalStrings(t *testing.T) {
	root := t.TempDir()
	path := writeTemp(t, root, "a.txt", "same\n")

	tracker := NewReadTracker()
	tracker.MarkRead(path)

	tool := NewEditTool(root, tracker)
	res, err := tool.Execute(context.Background(), map[string]any{
		"file_path": path, "old_string": "same", "new_string": "same",
	})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "identical")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "same\n", string(data))
}

func TestEditTool_AmbiguousMatchListsLines(t *testing.T) {
	root := t.TempDir()
	path := writeTemp(t, root, "a.txt", "dup\nmid\ndup\n")

	tracker := NewReadTracker()
	tracker.MarkRead(path)

	tool := NewEditTool(root, tracker)
	res, err := tool.Execute(context.Background(), map[string]any{
		"file_path": path, "old_string": "dup", "new_string": "x",
	})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "2 occurrences")
	assert.Contains(t, res.Content, "lines 1, 3")
	assert.Contains(t, res.Content, "replace_all")
}

func TestEditTool_ReplaceAll(t *testing.T) {
	root := t.TempDir()
	path := writeTemp(t, root, "a.txt", "dup\nmid\ndup\n")

	tracker := NewReadTracker()
	tracker.MarkRead(path)

	tool := NewEditTool(root, tracker)
	res, err := tool.Execute(context.Background(), map[string]any{
		"file_path": path, "old_string": "dup", "new_string": "x",
		"replace_all": true,
	})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "2 replacement")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x\nmid\nx\n", string(data))
}

func TestEditTool_StringNotFound(t *testing.T) {
	root := t.TempDir()
	path := writeTemp(t, root, "a.txt", "content\n")

	tracker := NewReadTracker()
	tracker.MarkRead(path)

	tool := NewEditTool(root, tracker)
	res, err := tool.Execute(context.Background(), map[string]any{
		"file_path": path, "old_string": "absent", "new_string": "x",
	})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "not found")
}

func TestReadTracker_NeverExpires(t *testing.T) {
	tr := NewReadTracker()
	tr.MarkRead("/w/a.txt")
	assert.True(t, tr.WasRead("/w/a.txt"))
	assert.False(t, tr.WasRead("/w/b.txt"))
}

func TestEncodingFallback(t *testing.T) {
	dir := t.TempDir()
	latin := filepath.Join(dir, "latin.txt")
	// 0xE9 is é in Latin-1 and invalid as standalone UTF-8.
	require.NoError(t, os.WriteFile(latin, []byte{'c', 'a', 'f', 0xE9, '\n'}, 0o644))

	content, encoding, err := readWithFallback(latin)
	require.NoError(t, err)
	assert.Equal(t, encodingLatin1, encoding)
	assert.Equal(t, "café\n", content)

	require.NoError(t, writeWithEncoding(latin, content, encoding))
	data, err := os.ReadFile(latin)
	require.NoError(t, err)
	assert.Equal(t, []byte{'c', 'a', 'f', 0xE9, '\n'}, data)
}

func TestExpandTabs(t *testing.T) {
	assert.Equal(t, "a       b", expandTabs("a\tb"))
	assert.Equal(t, "        x", expandTabs("\tx"))
	assert.Equal(t, "plain", expandTabs("plain"))
	assert.Equal(t, "a\n        b", expandTabs("a\n\tb"))
}
