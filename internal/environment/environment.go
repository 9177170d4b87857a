// Package environment collects a snapshot of the host the agent runs
// on. The snapshot is rendered into the system prompt so the model
// knows the OS, runtime, working directory, and git state.
package environment

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// gitCommandTimeout bounds the quick branch/status probes.
const gitCommandTimeout = 2 * time.Second

// gitDiffTimeout bounds the heavier diff collection at session end.
const gitDiffTimeout = 10 * time.Second

// Info describes the environment the agent operates in.
type Info struct {
	OSType         string `json:"os_type"`
	OSVersion      string `json:"os_version"`
	RuntimeVersion string `json:"runtime_version"`
	Cwd            string `json:"cwd"`
	GitBranch      string `json:"git_branch,omitempty"`
	GitStatus      string `json:"git_status,omitempty"`
}

// Collect gathers environment information for cwd.
func Collect(ctx context.Context, cwd string) Info {
	abs, err := filepath.Abs(cwd)
	if err != nil {
		abs = cwd
	}
	info := Info{
		OSType:         runtime.GOOS,
		OSVersion:      osVersion(ctx),
		RuntimeVersion: strings.TrimPrefix(runtime.Version(), "go"),
		Cwd:            abs,
	}
	info.GitBranch = gitBranch(ctx, abs)
	info.GitStatus = gitStatus(ctx, abs)
	return info
}

// ContextString renders the snapshot for inclusion in the system
// prompt.
func (i Info) ContextString() string {
	lines := []string{
		"# Environment Information",
		fmt.Sprintf("- OS: %s %s", i.OSType, i.OSVersion),
		fmt.Sprintf("- Go: %s", i.RuntimeVersion),
		fmt.Sprintf("- Working Directory: %s", i.Cwd),
	}
	if i.GitBranch != "" {
		lines = append(lines, fmt.Sprintf("- Git Branch: %s", i.GitBranch))
	}
	if i.GitStatus != "" {
		lines = append(lines, fmt.Sprintf("- Git Status:\n%s", i.GitStatus))
	}
	return strings.Join(lines, "\n")
}

func osVersion(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, gitCommandTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "uname", "-r").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

func gitBranch(ctx context.Context, cwd string) string {
	out, err := runGit(ctx, cwd, gitCommandTimeout, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

func gitStatus(ctx context.Context, cwd string) string {
	out, err := runGit(ctx, cwd, gitCommandTimeout, "status", "--short")
	if err != nil {
		return ""
	}
	status := strings.TrimSpace(out)
	if status == "" {
		return "Clean (no changes)"
	}
	return status
}

// DiffFile is one changed file in a diff summary.
type DiffFile struct {
	Path       string `json:"path"`
	Insertions int    `json:"insertions"`
	Deletions  int    `json:"deletions"`
}

// DiffStats aggregates the diff summary.
type DiffStats struct {
	FilesChanged int `json:"files_changed"`
	Insertions   int `json:"insertions"`
	Deletions    int `json:"deletions"`
}

// DiffInfo is the full diff collected at session end.
type DiffInfo struct {
	Stats    DiffStats  `json:"stats"`
	Files    []DiffFile `json:"files"`
	DiffText string     `json:"diff_text,omitempty"`
}

// CollectGitDiff stages all changes (git add -A) and summarizes the
// staged diff, including untracked files. Returns nil when cwd is not
// a git repository or nothing changed.
func CollectGitDiff(ctx context.Context, cwd string) *DiffInfo {
	if _, err := runGit(ctx, cwd, gitDiffTimeout, "add", "-A"); err != nil {
		return nil
	}
	numstat, err := runGit(ctx, cwd, gitDiffTimeout, "diff", "--cached", "--numstat")
	if err != nil {
		return nil
	}
	numstat = strings.TrimSpace(numstat)
	if numstat == "" {
		return nil
	}

	info := &DiffInfo{}
	for _, line := range strings.Split(numstat, "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 3 {
			continue
		}
		insertions := parseNumstat(parts[0])
		deletions := parseNumstat(parts[1])
		info.Files = append(info.Files, DiffFile{
			Path:       parts[2],
			Insertions: insertions,
			Deletions:  deletions,
		})
		info.Stats.Insertions += insertions
		info.Stats.Deletions += deletions
	}
	info.Stats.FilesChanged = len(info.Files)

	if text, err := runGit(ctx, cwd, gitDiffTimeout, "diff", "--cached"); err == nil {
		info.DiffText = strings.TrimSpace(text)
	}
	return info
}

// parseNumstat parses a numstat column; binary files report "-".
func parseNumstat(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func runGit(ctx context.Context, cwd string, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = cwd
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
