package files

import "sync"

// ReadTracker remembers which files the agent has read during the
// session. Edits are refused until the target file has been read, so
// the model never patches content it has not seen. Entries are kept
// for the life of the session; a stale read is the model's problem to
// refresh, not the tracker's to expire.
type ReadTracker struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewReadTracker creates an empty tracker.
func NewReadTracker() *ReadTracker {
	return &ReadTracker{seen: make(map[string]struct{})}
}

// MarkRead records that the resolved path has been read.
func (t *ReadTracker) MarkRead(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[path] = struct{}{}
}

// WasRead reports whether the resolved path has been read this session.
func (t *ReadTracker) WasRead(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.seen[path]
	return ok
}
