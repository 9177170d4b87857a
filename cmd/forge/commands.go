package main

import (
	"github.com/spf13/cobra"

	"github.com/haasonsaas/forge/internal/config"
)

// rootFlags are shared by chat and run; Changed() determines which
// values override the config.
type rootFlags struct {
	configPath    string
	model         string
	apiKey        string
	baseURL       string
	temperature   float64
	maxIterations int
	yolo          bool
	agent         string
	workspace     string
	logsDir       string
	verbose       bool
	think         bool
	resume        string
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "forge",
		Short:         "AI coding assistant with workspace tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(buildChatCmd(), buildRunCmd(), buildSessionsCmd())
	return cmd
}

func addAgentFlags(cmd *cobra.Command, flags *rootFlags) {
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&flags.model, "model", "", "Model name")
	cmd.Flags().StringVar(&flags.apiKey, "api-key", "", "Provider API key")
	cmd.Flags().StringVar(&flags.baseURL, "base-url", "", "Provider base URL")
	cmd.Flags().Float64Var(&flags.temperature, "temperature", 0, "Sampling temperature (0-2)")
	cmd.Flags().IntVar(&flags.maxIterations, "max-iterations", 0, "Maximum LLM/tool iterations per query")
	cmd.Flags().BoolVar(&flags.yolo, "yolo", false, "Skip all tool confirmations")
	cmd.Flags().StringVar(&flags.agent, "agent", "", "Agent profile name")
	cmd.Flags().StringVarP(&flags.workspace, "workspace", "w", "", "Workspace root directory")
	cmd.Flags().StringVar(&flags.logsDir, "logs-dir", "", "Session log directory")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.Flags().BoolVar(&flags.think, "think", false, "Enable model thinking")
	cmd.Flags().StringVar(&flags.resume, "resume", "", "Path to a previous session's llm_messages.json to resume from")
}

func buildChatCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Example: `  # Chat in the current directory
  forge chat

  # Chat without tool confirmations
  forge chat --yolo

  # Resume a previous conversation
  forge chat --resume ~/.forge/logs/<workspace>/<session>/llm_messages.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), cfg, flags.resume)
		},
	}
	addAgentFlags(cmd, flags)
	return cmd
}

func buildRunCmd() *cobra.Command {
	flags := &rootFlags{}
	var stream bool
	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Run a single query and exit",
		Args:  cobra.ExactArgs(1),
		Example: `  # One-shot query
  forge run "summarize the TODOs in this repo"

  # Stream the response as it is generated
  forge run --stream "refactor main.go to use contexts"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), cfg, args[0], stream, flags.resume)
		},
	}
	addAgentFlags(cmd, flags)
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream the response as it is generated")
	return cmd
}

func buildSessionsCmd() *cobra.Command {
	var configPath string
	var workspace string
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List past sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return listSessions(cmd.Context(), cfg, workspace, limit)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "Filter by workspace root")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum sessions to list")
	return cmd
}

// loadConfig layers the configuration and applies the CLI flags that
// were explicitly set.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return cfg, err
	}

	o := config.Overrides{}
	set := cmd.Flags().Changed
	if set("model") {
		o.Model = &flags.model
	}
	if set("api-key") {
		o.APIKey = &flags.apiKey
	}
	if set("base-url") {
		o.BaseURL = &flags.baseURL
	}
	if set("temperature") {
		o.Temperature = &flags.temperature
	}
	if set("max-iterations") {
		o.MaxIterations = &flags.maxIterations
	}
	if set("yolo") {
		o.Yolo = &flags.yolo
	}
	if set("agent") {
		o.Agent = &flags.agent
	}
	if set("workspace") {
		o.WorkspaceRoot = &flags.workspace
	}
	if set("logs-dir") {
		o.LogsDir = &flags.logsDir
	}
	if set("verbose") {
		o.Verbose = &flags.verbose
	}
	if set("think") {
		o.Think = &flags.think
	}
	config.ApplyOverrides(&cfg, o)

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, msg := range errs {
			cmd.PrintErrln("config:", msg)
		}
		return cfg, errConfigInvalid
	}
	return cfg, nil
}
