package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAgentProfile(t *testing.T) {
	dir := t.TempDir()
	path := writeProfile(t, dir, "reviewer.md", `---
name: reviewer
description: Reviews code changes
tools: read_file, grep, glob
model: claude-sonnet-4.5
---

You review diffs carefully and point out bugs.`)

	profile, err := LoadAgentProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "reviewer", profile.Name)
	assert.Equal(t, "Reviews code changes", profile.Description)
	assert.Equal(t, []string{"read_file", "grep", "glob"}, profile.Tools)
	assert.Equal(t, "claude-sonnet-4.5", profile.Model)
	assert.Equal(t, "You review diffs carefully and point out bugs.", profile.SystemPrompt)
}

func TestLoadAgentProfile_InheritModel(t *testing.T) {
	dir := t.TempDir()
	path := writeProfile(t, dir, "a.md", `---
name: a
model: inherit
---

prompt`)

	profile, err := LoadAgentProfile(path)
	require.NoError(t, err)
	assert.Empty(t, profile.Model)
	assert.Nil(t, profile.Tools)
}

func TestLoadAgentProfile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadAgentProfile(filepath.Join(dir, "missing.md"))
	assert.ErrorContains(t, err, "agent profile not found")

	noFrontmatter := writeProfile(t, dir, "plain.md", "just a prompt, no frontmatter")
	_, err = LoadAgentProfile(noFrontmatter)
	assert.ErrorContains(t, err, "missing frontmatter")

	noName := writeProfile(t, dir, "noname.md", "---\ndescription: x\n---\n\nprompt")
	_, err = LoadAgentProfile(noName)
	assert.ErrorContains(t, err, "missing 'name' field")
}

func TestBuiltinAgent(t *testing.T) {
	profile := BuiltinAgent()
	assert.Equal(t, "default", profile.Name)
	assert.Contains(t, profile.SystemPrompt, "Always read files before modifying them")
	assert.Nil(t, profile.Tools)
	assert.Empty(t, profile.Model)
}

func TestToolList(t *testing.T) {
	all := []string{"bash", "read_file", "write_file"}

	inherit := &AgentProfile{}
	assert.Equal(t, all, inherit.ToolList(all))

	scoped := &AgentProfile{Tools: []string{"read_file", "nonexistent"}}
	assert.Equal(t, []string{"read_file"}, scoped.ToolList(all))
}

func TestModelName(t *testing.T) {
	aliases := map[string]string{"sonnet": "claude-sonnet-4.5"}

	p := &AgentProfile{}
	assert.Equal(t, "default-model", p.ModelName("default-model", aliases))

	p.Model = "sonnet"
	assert.Equal(t, "claude-sonnet-4.5", p.ModelName("default-model", aliases))

	p.Model = "custom-model"
	assert.Equal(t, "custom-model", p.ModelName("default-model", aliases))
}

func TestProfileManager(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "reviewer.md", "---\nname: reviewer\n---\n\nreview prompt")
	writeProfile(t, dir, "broken.md", "no frontmatter here")
	writeProfile(t, dir, "notes.txt", "not a profile")

	m := NewProfileManager(dir)
	assert.Equal(t, []string{"default", "reviewer"}, m.Names())

	profile, ok := m.Get("reviewer")
	require.True(t, ok)
	assert.Equal(t, "review prompt", profile.SystemPrompt)

	_, ok = m.Get("broken")
	assert.False(t, ok)
}

func TestProfileManager_MissingDir(t *testing.T) {
	m := NewProfileManager(filepath.Join(t.TempDir(), "nope"))
	assert.Equal(t, []string{"default"}, m.Names())
}
