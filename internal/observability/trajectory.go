package observability

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Trajectory event types.
const (
	EventSessionStart      = "session_start"
	EventUserMessage       = "user_message"
	EventAssistantResponse = "assistant_response"
	EventToolResult        = "tool_result"
	EventToolCallSanitized = "tool_call_sanitized"
	EventSessionSummary    = "session_summary"
)

// TrajectoryWriter appends agent execution events to a JSONL file.
// One JSON object per line, flushed on every write, so the file can be
// tailed while a session runs.
type TrajectoryWriter struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewTrajectoryWriter creates a writer for the given file path. The
// file is opened lazily on first write.
func NewTrajectoryWriter(path string) *TrajectoryWriter {
	return &TrajectoryWriter{path: path}
}

// Write appends one event. A timestamp is added when absent.
func (w *TrajectoryWriter) Write(event map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureOpen(); err != nil {
		return err
	}
	if _, ok := event["timestamp"]; !ok {
		event["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode trajectory event: %w", err)
	}
	if _, err := w.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write trajectory event: %w", err)
	}
	return w.file.Sync()
}

// WriteSummary appends the session_summary event, typically at session
// end.
func (w *TrajectoryWriter) WriteSummary(summary map[string]any) error {
	event := map[string]any{
		"event_type": EventSessionSummary,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range summary {
		event[k] = v
	}
	return w.Write(event)
}

func (w *TrajectoryWriter) ensureOpen() error {
	if w.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create trajectory directory: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open trajectory file: %w", err)
	}
	w.file = f
	return nil
}

// Close releases the file handle.
func (w *TrajectoryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
