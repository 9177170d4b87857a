package observability

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionID_Format(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	id := NewSessionID(now)
	assert.Regexp(t, regexp.MustCompile(`^session_20260314_092653_[0-9a-f]{8}$`), id)

	other := NewSessionID(now)
	assert.NotEqual(t, id, other)
}

func TestWorkspaceSlug(t *testing.T) {
	assert.Equal(t, "home-dev-my_project", WorkspaceSlug("/home/dev/my project"))
	assert.Equal(t, "srv-app", WorkspaceSlug("/srv/app"))
}

func TestSessionDir_CreatesLayout(t *testing.T) {
	logs := t.TempDir()
	dir, err := SessionDir(logs, "/srv/app", "session_20260101_000000_deadbeef")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(logs, "srv-app", "session_20260101_000000_deadbeef"), dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLogger_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Output: &buf})

	ctx := AddPromptID(AddSessionID(context.Background(), "session_x"), "prompt_001")
	logger.Info(ctx, "tool executed", "tool", "read_file", "duration_ms", 12)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "tool executed", record["msg"])
	assert.Equal(t, "session_x", record["session_id"])
	assert.Equal(t, "prompt_001", record["prompt_id"])
}

func TestLogger_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})

	logger.Info(context.Background(), "configured",
		"note", "api_key = sk-ant-"+strings.Repeat("a", 100))

	out := buf.String()
	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, strings.Repeat("a", 100))
}

func TestLogger_RedactsSensitiveMapKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf})

	logger.Info(context.Background(), "request",
		"headers", map[string]any{"Authorization": "Bearer abc123", "Accept": "json"})

	out := buf.String()
	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, "abc123")
	assert.Contains(t, out, "json")
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Output: &buf})

	logger.Debug(context.Background(), "hidden")
	logger.Info(context.Background(), "hidden too")
	logger.Warn(context.Background(), "visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}

func TestTrajectoryWriter_AppendOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trajectory.jsonl")
	w := NewTrajectoryWriter(path)

	require.NoError(t, w.Write(map[string]any{"event_type": EventSessionStart, "session_id": "s1"}))
	require.NoError(t, w.Write(map[string]any{"event_type": EventUserMessage, "prompt_id": "prompt_001"}))
	require.NoError(t, w.WriteSummary(map[string]any{"total_prompts": 1}))
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		events = append(events, event)
	}
	require.Len(t, events, 3)
	assert.Equal(t, EventSessionStart, events[0]["event_type"])
	assert.Equal(t, EventUserMessage, events[1]["event_type"])
	assert.Equal(t, EventSessionSummary, events[2]["event_type"])
	for _, event := range events {
		assert.NotEmpty(t, event["timestamp"])
	}
}

func TestTrajectoryWriter_ReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trajectory.jsonl")

	w := NewTrajectoryWriter(path)
	require.NoError(t, w.Write(map[string]any{"event_type": "a"}))
	require.NoError(t, w.Close())

	w2 := NewTrajectoryWriter(path)
	require.NoError(t, w2.Write(map[string]any{"event_type": "b"}))
	require.NoError(t, w2.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
}

func TestSnapshotWriter_OverwritesAndRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llm_messages.json")
	w := NewSnapshotWriter(path)

	messages := []map[string]any{{"role": "system", "content": "prompt"}}
	require.NoError(t, w.Write("session_1", messages, nil))

	messages = append(messages, map[string]any{"role": "user", "content": "hi"})
	require.NoError(t, w.Write("session_1", messages, []map[string]any{{"type": "function"}}))

	snapshot, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, "session_1", snapshot.SessionID)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(snapshot.Messages, &decoded))
	assert.Len(t, decoded, 2)
}

func TestLoadSnapshot_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadSnapshot(path)
	assert.Error(t, err)
}

func TestNewSessionLogger_WritesMainLog(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewSessionLogger(dir, "debug")
	require.NoError(t, err)

	logger.Info(context.Background(), "session started")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(filepath.Join(dir, "main.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "session started")
}
