package observability

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SnapshotWriter overwrites the latest conversation snapshot
// (llm_messages.json) each turn. Only the most recent state is kept.
type SnapshotWriter struct {
	mu   sync.Mutex
	path string
}

// NewSnapshotWriter creates a writer for the given file path.
func NewSnapshotWriter(path string) *SnapshotWriter {
	return &SnapshotWriter{path: path}
}

// Snapshot is the persisted conversation state.
type Snapshot struct {
	Timestamp string          `json:"timestamp"`
	SessionID string          `json:"session_id"`
	Messages  json.RawMessage `json:"messages"`
	Tools     json.RawMessage `json:"tools,omitempty"`
}

// Write replaces the snapshot file with the current conversation.
// messages and tools must marshal to JSON arrays.
func (w *SnapshotWriter) Write(sessionID string, messages, tools any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rawMessages, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode snapshot messages: %w", err)
	}
	var rawTools json.RawMessage
	if tools != nil {
		rawTools, err = json.Marshal(tools)
		if err != nil {
			return fmt.Errorf("encode snapshot tools: %w", err)
		}
	}

	snapshot := Snapshot{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: sessionID,
		Messages:  rawMessages,
		Tools:     rawTools,
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	// Write-then-rename so a reader never sees a half-written file.
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, w.path)
}

// Load reads a previously written snapshot.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return &snapshot, nil
}

// Path returns the snapshot file location.
func (w *SnapshotWriter) Path() string {
	return w.path
}
