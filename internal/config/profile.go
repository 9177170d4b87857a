package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// AgentProfile defines an agent's behavior: its system prompt, the
// tools it may use, and an optional model override. Profiles are
// Markdown files with YAML frontmatter.
type AgentProfile struct {
	Name         string
	Description  string
	SystemPrompt string
	// Tools nil means inherit every registered tool.
	Tools []string
	// Model empty means use the configured default model.
	Model string
}

type profileFrontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Tools       string `yaml:"tools"`
	Model       string `yaml:"model"`
}

// LoadAgentProfile parses an agent profile from a Markdown file:
//
//	---
//	name: reviewer
//	description: reviews diffs
//	tools: read_file, grep      # optional
//	model: claude-sonnet-4.5    # optional
//	---
//
//	System prompt content...
func LoadAgentProfile(path string) (*AgentProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("agent profile not found: %s", path)
	}

	content := string(data)
	if !strings.HasPrefix(content, "---") {
		return nil, fmt.Errorf("invalid agent profile format in %s (missing frontmatter)", path)
	}
	rest := strings.TrimPrefix(content, "---")
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return nil, fmt.Errorf("invalid agent profile format in %s (missing frontmatter)", path)
	}
	frontmatterStr := rest[:idx]
	body := rest[idx+len("\n---"):]

	var fm profileFrontmatter
	if err := yaml.Unmarshal([]byte(frontmatterStr), &fm); err != nil {
		return nil, fmt.Errorf("parse agent profile frontmatter in %s: %w", path, err)
	}
	if fm.Name == "" {
		return nil, fmt.Errorf("agent profile missing 'name' field in %s", path)
	}

	profile := &AgentProfile{
		Name:         fm.Name,
		Description:  fm.Description,
		SystemPrompt: strings.TrimSpace(body),
	}
	if fm.Tools != "" {
		for _, tool := range strings.Split(fm.Tools, ",") {
			if trimmed := strings.TrimSpace(tool); trimmed != "" {
				profile.Tools = append(profile.Tools, trimmed)
			}
		}
	}
	switch strings.ToLower(fm.Model) {
	case "", "inherit", "default":
	default:
		profile.Model = fm.Model
	}
	return profile, nil
}

// BuiltinAgent is the default profile used when no agent is named.
func BuiltinAgent() *AgentProfile {
	return &AgentProfile{
		Name:        "default",
		Description: "Default coding assistant for general development tasks",
		SystemPrompt: `You are Forge, an AI coding assistant designed to help developers with their coding tasks. You have access to tools that allow you to read and write files in the workspace.

Your approach:
1. Carefully analyze the user's request
2. Use available tools to gather necessary information
3. Propose clear, well-thought-out solutions
4. Execute changes carefully and verify results

When modifying files:
- Always read files before modifying them
- Make precise, targeted changes
- Explain what you're doing and why

Be concise, accurate, and helpful.`,
	}
}

// ToolList resolves the tools available to this profile against the
// registered tool names.
func (p *AgentProfile) ToolList(allTools []string) []string {
	if p.Tools == nil {
		return allTools
	}
	available := make(map[string]bool, len(allTools))
	for _, name := range allTools {
		available[name] = true
	}
	var out []string
	for _, name := range p.Tools {
		if available[name] {
			out = append(out, name)
		}
	}
	return out
}

// ModelName resolves the model for this profile, consulting the alias
// table before falling back to the configured default.
func (p *AgentProfile) ModelName(defaultModel string, aliases map[string]string) string {
	if p.Model == "" {
		return defaultModel
	}
	if resolved, ok := aliases[p.Model]; ok {
		return resolved
	}
	return p.Model
}

// ProfileManager indexes the built-in profile plus user profiles
// loaded from a directory of Markdown files.
type ProfileManager struct {
	profiles map[string]*AgentProfile
}

// NewProfileManager loads profiles from agentDir. Files that fail to
// parse are skipped; a missing directory yields just the built-in
// profile.
func NewProfileManager(agentDir string) *ProfileManager {
	m := &ProfileManager{profiles: map[string]*AgentProfile{}}

	builtin := BuiltinAgent()
	m.profiles[builtin.Name] = builtin

	entries, err := os.ReadDir(ExpandHome(agentDir))
	if err != nil {
		return m
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
			continue
		}
		profile, err := LoadAgentProfile(filepath.Join(ExpandHome(agentDir), entry.Name()))
		if err != nil {
			continue
		}
		m.profiles[profile.Name] = profile
	}
	return m
}

// Get returns a profile by name.
func (m *ProfileManager) Get(name string) (*AgentProfile, bool) {
	profile, ok := m.profiles[name]
	return profile, ok
}

// Names returns all profile names sorted.
func (m *ProfileManager) Names() []string {
	names := make([]string, 0, len(m.profiles))
	for name := range m.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
