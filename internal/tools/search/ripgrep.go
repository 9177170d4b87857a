package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// defaultRipgrepTimeout bounds a single ripgrep invocation.
const defaultRipgrepTimeout = 30 * time.Second

var (
	ripgrepOnce sync.Once
	ripgrepPath string
	ripgrepErr  error
)

// findRipgrep locates a ripgrep binary: the system install first, then
// a bundled per-architecture binary next to the executable. The result
// is cached for the process lifetime.
func findRipgrep() (string, error) {
	ripgrepOnce.Do(func() {
		if path, err := exec.LookPath("rg"); err == nil {
			ripgrepPath = path
			return
		}
		if path := bundledRipgrepPath(); path != "" {
			ripgrepPath = path
			return
		}
		ripgrepErr = errors.New(
			"ripgrep is not available. Install it with your package manager (e.g. apt install ripgrep, brew install ripgrep)")
	})
	return ripgrepPath, ripgrepErr
}

// bundledRipgrepPath returns the path of a bundled ripgrep binary for
// the current platform, or "" when none ships alongside the executable.
func bundledRipgrepPath() string {
	self, err := os.Executable()
	if err != nil {
		return ""
	}
	arch := runtime.GOARCH
	switch arch {
	case "amd64":
		arch = "x64"
	case "arm64":
		// keep as-is
	default:
		return ""
	}
	name := "rg"
	if runtime.GOOS == "windows" {
		name = "rg.exe"
	}
	candidate := filepath.Join(filepath.Dir(self), "ripgrep", arch+"-"+runtime.GOOS, name)
	info, err := os.Stat(candidate)
	if err != nil || info.IsDir() {
		return ""
	}
	return candidate
}

// executeRipgrep runs ripgrep with args against searchPath and returns
// stdout lines. Exit status 1 means no matches and yields an empty
// slice, not an error.
func executeRipgrep(ctx context.Context, args []string, searchPath string, timeout time.Duration) ([]string, error) {
	rg, err := findRipgrep()
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultRipgrepTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	full := append(append([]string{}, args...), "--", searchPath)
	cmd := exec.CommandContext(ctx, rg, full...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("ripgrep timed out after %s", timeout)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = runErr.Error()
		}
		return nil, fmt.Errorf("ripgrep failed: %s", msg)
	}

	out := stdout.String()
	if out == "" {
		return nil, nil
	}
	return strings.Split(strings.TrimRight(out, "\n"), "\n"), nil
}
