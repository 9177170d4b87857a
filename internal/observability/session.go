// Package observability provides the per-session logging and recording
// machinery: the session log directory layout, a structured logger with
// sensitive-data redaction, the append-only trajectory writer, and the
// conversation snapshot writer.
package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewSessionID generates a session identifier of the form
// session_<YYYYMMDD_HHMMSS>_<8-hex>.
func NewSessionID(now time.Time) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("session_%s_%s", now.UTC().Format("20060102_150405"), hex)
}

// WorkspaceSlug converts an absolute workspace path into a directory
// name: leading separator removed, separators become '-', spaces
// become '_', and on Windows the drive-letter colon becomes '-'.
func WorkspaceSlug(workspacePath string) string {
	abs, err := filepath.Abs(workspacePath)
	if err != nil {
		abs = workspacePath
	}
	slug := strings.TrimPrefix(abs, string(os.PathSeparator))
	slug = strings.ReplaceAll(slug, string(os.PathSeparator), "-")
	slug = strings.ReplaceAll(slug, " ", "_")
	if runtime.GOOS == "windows" {
		slug = strings.ReplaceAll(slug, ":", "-")
	}
	return slug
}

// SessionDir computes and creates <logsDir>/<workspace_slug>/<session_id>.
func SessionDir(logsDir, workspacePath, sessionID string) (string, error) {
	dir := filepath.Join(logsDir, WorkspaceSlug(workspacePath), sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create session directory: %w", err)
	}
	return dir, nil
}
