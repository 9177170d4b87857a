package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultPaths are probed in order when no config path is given.
var defaultPaths = []string{
	".forge.yaml",
	"~/.forge.yaml",
	"~/.config/forge/config.yaml",
}

// Load assembles the configuration in priority order: defaults, then
// the YAML file (explicit path or first default location found), then
// environment variables. CLI flags are applied afterwards with
// ApplyOverrides.
func Load(configPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := loadFile(&cfg, configPath); err != nil {
			return cfg, err
		}
	} else {
		for _, path := range defaultPaths {
			err := loadFile(&cfg, path)
			if err == nil {
				break
			}
			if !os.IsNotExist(err) {
				return cfg, err
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// loadFile unmarshals a YAML file over cfg. ${VAR} references in the
// file are expanded from the environment before parsing; unknown
// variables are left intact.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(ExpandHome(path))
	if err != nil {
		return err
	}
	expanded := os.Expand(string(data), func(name string) string {
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return "${" + name + "}"
	})
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays the core environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LOGS_DIR"); v != "" {
		cfg.Logging.LogsDir = v
	}
	if v := os.Getenv("VERBOSE"); v != "" {
		cfg.Logging.Verbose = parseBool(v)
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return false
}

// Overrides carries CLI flag values; nil fields were not set on the
// command line.
type Overrides struct {
	Model         *string
	APIKey        *string
	BaseURL       *string
	Temperature   *float64
	MaxIterations *int
	Yolo          *bool
	Agent         *string
	WorkspaceRoot *string
	LogsDir       *string
	Verbose       *bool
	Think         *bool
	Stream        *bool
}

// ApplyOverrides layers CLI flags over cfg, the highest-priority
// source.
func ApplyOverrides(cfg *Config, o Overrides) {
	if o.Model != nil {
		cfg.LLM.Model = *o.Model
	}
	if o.APIKey != nil {
		cfg.LLM.APIKey = *o.APIKey
	}
	if o.BaseURL != nil {
		cfg.LLM.BaseURL = *o.BaseURL
	}
	if o.Temperature != nil {
		cfg.LLM.Temperature = *o.Temperature
	}
	if o.MaxIterations != nil {
		cfg.Agent.MaxIterations = *o.MaxIterations
	}
	if o.Yolo != nil {
		cfg.Agent.Yolo = *o.Yolo
	}
	if o.Agent != nil {
		cfg.Agent.Agent = *o.Agent
	}
	if o.WorkspaceRoot != nil {
		cfg.Agent.WorkspaceRoot = *o.WorkspaceRoot
	}
	if o.LogsDir != nil {
		cfg.Logging.LogsDir = *o.LogsDir
	}
	if o.Verbose != nil {
		cfg.Logging.Verbose = *o.Verbose
	}
	if o.Think != nil {
		cfg.LLM.EnableThinking = *o.Think
	}
}

// ExpandHome resolves a leading ~ against the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	return path
}
