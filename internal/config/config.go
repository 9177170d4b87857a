// Package config loads and validates the layered runtime
// configuration: defaults, then an optional YAML file, then
// environment variables, then CLI flags.
package config

import (
	"fmt"
	"strings"
)

// LLMConfig configures the model provider.
type LLMConfig struct {
	Provider          string   `yaml:"provider"`
	Model             string   `yaml:"model"`
	APIKey            string   `yaml:"api_key"`
	BaseURL           string   `yaml:"base_url"`
	Temperature       float64  `yaml:"temperature"`
	MaxTokens         int      `yaml:"max_tokens"`
	Timeout           int      `yaml:"timeout"`
	ParallelToolCalls bool     `yaml:"parallel_tool_calls"`
	EnableThinking    bool     `yaml:"enable_thinking"`
	TopK              int      `yaml:"top_k"`
	TopP              *float64 `yaml:"top_p"`
}

// AgentConfig configures the loop and the tool layer.
type AgentConfig struct {
	MaxIterations          int      `yaml:"max_iterations"`
	MaxContextTokens       int      `yaml:"max_context_tokens"`
	EnableTools            bool     `yaml:"enable_tools"`
	Yolo                   bool     `yaml:"yolo"`
	Agent                  string   `yaml:"agent"`
	WorkspaceRoot          string   `yaml:"workspace_root"`
	BashTimeout            int      `yaml:"bash_timeout"`
	BashAllowedCommands    []string `yaml:"bash_allowed_commands"`
	BashDisallowedCommands []string `yaml:"bash_disallowed_commands"`
	RemoteToolEnabled      bool     `yaml:"remote_tool_enabled"`
	RemoteToolURL          string   `yaml:"remote_tool_url"`
	RemoteToolInstanceID   string   `yaml:"remote_tool_instance_id"`
	RemoteToolTimeout      int      `yaml:"remote_tool_timeout"`
}

// LoggingConfig configures session logging.
type LoggingConfig struct {
	LogsDir string `yaml:"logs_dir"`
	Verbose bool   `yaml:"verbose"`
}

// StoreConfig configures the session index database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	// PrometheusListen is a listen address such as "127.0.0.1:9464".
	// Empty disables the endpoint.
	PrometheusListen string `yaml:"prometheus_listen"`
}

// Config is the assembled runtime configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Agent   AgentConfig   `yaml:"agent_config"`
	Logging LoggingConfig `yaml:"logging"`
	Store   StoreConfig   `yaml:"store"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Default returns the built-in configuration, the base every other
// layer overrides.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider:          "openai_compatible",
			Temperature:       0.0,
			Timeout:           60,
			ParallelToolCalls: true,
		},
		Agent: AgentConfig{
			MaxIterations:     200,
			MaxContextTokens:  100000,
			EnableTools:       true,
			Agent:             "default",
			WorkspaceRoot:     ".",
			BashTimeout:       30,
			RemoteToolTimeout: 60,
		},
		Logging: LoggingConfig{
			LogsDir: "~/.forge/logs",
		},
		Store: StoreConfig{
			Path: "~/.forge/sessions.db",
		},
	}
}

// RemoteToolConfigured reports whether all three remote execution
// settings are present. A partially configured remote falls back to
// local execution.
func (c *Config) RemoteToolConfigured() bool {
	return c.Agent.RemoteToolEnabled &&
		c.Agent.RemoteToolURL != "" &&
		c.Agent.RemoteToolInstanceID != ""
}

// Validate returns all configuration errors, not just the first.
func (c *Config) Validate() []string {
	var errs []string

	required := []struct {
		value, display, flag, env string
	}{
		{c.LLM.APIKey, "LLM API key", "--api-key", "OPENAI_API_KEY"},
		{c.LLM.Model, "LLM model", "--model", "LLM_MODEL"},
		{c.LLM.BaseURL, "LLM base URL", "--base-url", "LLM_BASE_URL"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Sprintf(
				"%s is required. Set it via %s flag, %s environment variable, or config file.",
				r.display, r.flag, r.env))
		}
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Sprintf("temperature must be 0-2, got %v", c.LLM.Temperature))
	}
	if c.LLM.TopP != nil && (*c.LLM.TopP < 0 || *c.LLM.TopP > 1) {
		errs = append(errs, fmt.Sprintf("top_p must be 0-1, got %v", *c.LLM.TopP))
	}
	if c.LLM.TopK < 0 {
		errs = append(errs, fmt.Sprintf("top_k must be positive, got %d", c.LLM.TopK))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("timeout must be positive, got %d", c.LLM.Timeout))
	}
	if c.LLM.MaxTokens < 0 {
		errs = append(errs, fmt.Sprintf("max_tokens must be positive, got %d", c.LLM.MaxTokens))
	}
	if c.Agent.MaxIterations <= 0 {
		errs = append(errs, fmt.Sprintf("max_iterations must be positive, got %d", c.Agent.MaxIterations))
	}
	if c.Agent.BashTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("bash_timeout must be positive, got %d", c.Agent.BashTimeout))
	}
	if c.Agent.RemoteToolTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("remote_tool_timeout must be positive, got %d", c.Agent.RemoteToolTimeout))
	}

	return errs
}
