// Package search implements the workspace discovery tools: grep
// (ripgrep-backed regex search), glob (pattern matching), and
// list_directory (recursive tree listing).
package search

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// defaultIgnorePatterns filters out VCS, build, cache, virtualenv, and
// IDE directories from glob and list_directory results.
var defaultIgnorePatterns = []string{
	"__pycache__",
	".git",
	".svn",
	".hg",
	"venv",
	".venv",
	"env",
	".env",
	"node_modules",
	"bower_components",
	"build",
	"dist",
	"target",
	".tox",
	".pytest_cache",
	".mypy_cache",
	".coverage",
	"htmlcov",
	"*.egg-info",
	".gradle",
	".idea",
	".vscode",
	".vs",
	"vendor",
	"packages",
	"bin",
	"obj",
	".dart_tool",
	".pub-cache",
	"_build",
	"deps",
	"dist-newstyle",
	".deno",
}

// matchesPattern matches a single path component or relative path
// against one glob pattern.
func matchesPattern(text, pattern string) bool {
	ok, err := doublestar.Match(pattern, text)
	return err == nil && ok
}

// shouldIgnore reports whether any component of path, or the path
// itself, matches one of the patterns.
func shouldIgnore(path string, patterns []string) bool {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for _, pattern := range patterns {
		for _, part := range parts {
			if part != "" && matchesPattern(part, pattern) {
				return true
			}
		}
		if matchesPattern(filepath.ToSlash(path), pattern) {
			return true
		}
	}
	return false
}
