package agent

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/forge/internal/agent/conversation"
	"github.com/haasonsaas/forge/internal/config"
	"github.com/haasonsaas/forge/internal/environment"
	"github.com/haasonsaas/forge/internal/llm"
	"github.com/haasonsaas/forge/internal/metrics"
	"github.com/haasonsaas/forge/internal/observability"
	"github.com/haasonsaas/forge/internal/store"
	"github.com/haasonsaas/forge/internal/tools"
	"github.com/haasonsaas/forge/internal/tools/files"
	"github.com/haasonsaas/forge/internal/tools/search"
	"github.com/haasonsaas/forge/internal/tools/shell"
)

// RuntimeOptions carries per-invocation wiring that does not belong
// in the config file.
type RuntimeOptions struct {
	// Confirm is the tool-confirmation callback. Nil denies all
	// confirmations outside YOLO mode.
	Confirm ConfirmationCallback

	// ResumePath points at a previous session's conversation snapshot.
	ResumePath string

	// Store indexes the session; optional.
	Store *store.Store
}

// Runtime assembles one agent session: logging, tools, the ledger,
// the executor, and the loop.
type Runtime struct {
	SessionID  string
	SessionDir string
	Workspace  string

	// MetricsAddr is the bound Prometheus listen address; empty when
	// the endpoint is disabled.
	MetricsAddr string

	Engine    *conversation.Engine
	Loop      *Loop
	Collector *metrics.Collector
	Logger    *observability.Logger
	Profile   *config.AgentProfile

	trajectory    *observability.TrajectoryWriter
	bash          *shell.BashTool
	store         *store.Store
	metricsServer *http.Server
	startedAt     time.Time
}

// NewRuntime wires a session from the configuration.
func NewRuntime(ctx context.Context, cfg config.Config, opts RuntimeOptions) (*Runtime, error) {
	workspace, err := filepath.Abs(config.ExpandHome(cfg.Agent.WorkspaceRoot))
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}

	sessionID := observability.NewSessionID(time.Now())
	sessionDir, err := observability.SessionDir(config.ExpandHome(cfg.Logging.LogsDir), workspace, sessionID)
	if err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	level := "info"
	if cfg.Logging.Verbose {
		level = "debug"
	}
	logger, err := observability.NewSessionLogger(sessionDir, level)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}

	profiles := config.NewProfileManager("~/.forge/agents")
	profile, ok := profiles.Get(cfg.Agent.Agent)
	if !ok {
		logger.Close()
		return nil, fmt.Errorf("unknown agent profile: %s", cfg.Agent.Agent)
	}

	registry := tools.NewRegistry()
	var bash *shell.BashTool
	if cfg.Agent.EnableTools {
		bash, err = registerTools(registry, cfg, workspace, profile)
		if err != nil {
			logger.Close()
			return nil, err
		}
	}

	var history []llm.Message
	if opts.ResumePath != "" {
		history, err = conversation.LoadConversationHistory(opts.ResumePath)
		if err != nil {
			// resume failures fall back to a fresh session
			logger.Warn(ctx, "failed to load conversation history, starting fresh",
				"path", opts.ResumePath, "error", err.Error())
			history = nil
		}
	}

	trajectory := observability.NewTrajectoryWriter(filepath.Join(sessionDir, "trajectory.jsonl"))
	snapshot := observability.NewSnapshotWriter(filepath.Join(sessionDir, "llm_messages.json"))

	engine := conversation.NewEngine(conversation.Config{
		SessionID:    sessionID,
		Workspace:    workspace,
		SystemPrompt: profile.SystemPrompt,
		Environment:  environment.Collect(ctx, workspace),
		Registry:     registry,
		Trajectory:   trajectory,
		Snapshot:     snapshot,
		Logger:       logger,
		History:      history,
	})

	collector := metrics.NewCollector(sessionID)

	var metricsServer *http.Server
	metricsAddr := ""
	if cfg.Metrics.PrometheusListen != "" {
		ln, err := net.Listen("tcp", cfg.Metrics.PrometheusListen)
		if err != nil {
			logger.Close()
			return nil, fmt.Errorf("listen on metrics address: %w", err)
		}
		registry := prometheus.NewRegistry()
		collector.SetExporter(metrics.NewExporter(registry))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Handler: mux}
		metricsAddr = ln.Addr().String()
		go metricsServer.Serve(ln)
	}

	var remote *RemoteExecutor
	if cfg.RemoteToolConfigured() {
		remote = NewRemoteExecutor(
			cfg.Agent.RemoteToolURL,
			cfg.Agent.RemoteToolInstanceID,
			time.Duration(cfg.Agent.RemoteToolTimeout)*time.Second)
	}

	executor := NewExecutor(ExecutorConfig{
		Registry: registry,
		Engine:   engine,
		YoloMode: cfg.Agent.Yolo,
		Confirm:  opts.Confirm,
		Metrics:  collector,
		Remote:   remote,
		Logger:   logger,
	})

	model := profile.ModelName(cfg.LLM.Model, nil)
	client := newClient(cfg.LLM, model)

	loop := NewLoop(LoopConfig{
		Engine:        engine,
		Executor:      executor,
		Client:        client,
		Metrics:       collector,
		Logger:        logger,
		MaxIterations: cfg.Agent.MaxIterations,
	})

	rt := &Runtime{
		SessionID:     sessionID,
		SessionDir:    sessionDir,
		Workspace:     workspace,
		MetricsAddr:   metricsAddr,
		Engine:        engine,
		Loop:          loop,
		Collector:     collector,
		Logger:        logger,
		Profile:       profile,
		trajectory:    trajectory,
		bash:          bash,
		store:         opts.Store,
		metricsServer: metricsServer,
		startedAt:     time.Now(),
	}

	engine.WriteSessionStart(profile.Name, model, registry.Names(), cfg.LLM.Temperature)
	if rt.store != nil {
		if err := rt.store.RecordStart(ctx, store.SessionRecord{
			SessionID: sessionID,
			Workspace: workspace,
			Agent:     profile.Name,
			Model:     model,
			StartedAt: rt.startedAt,
			LogDir:    sessionDir,
		}); err != nil {
			logger.Warn(ctx, "failed to index session", "error", err.Error())
		}
	}
	return rt, nil
}

// registerTools builds the workspace toolkit scoped to the profile's
// tool list.
func registerTools(registry *tools.Registry, cfg config.Config, workspace string, profile *config.AgentProfile) (*shell.BashTool, error) {
	policy, err := shell.NewCommandPolicy(cfg.Agent.BashAllowedCommands, cfg.Agent.BashDisallowedCommands)
	if err != nil {
		return nil, fmt.Errorf("compile bash command policy: %w", err)
	}

	tracker := files.NewReadTracker()
	bash := shell.NewBashTool(workspace, time.Duration(cfg.Agent.BashTimeout)*time.Second, policy)

	all := map[string]tools.Tool{
		"read_file":      files.NewReadTool(workspace, tracker),
		"write_file":     files.NewWriteTool(workspace),
		"edit_file":      files.NewEditTool(workspace, tracker),
		"glob":           search.NewGlobTool(workspace),
		"grep":           search.NewGrepTool(workspace),
		"list_directory": search.NewListDirectoryTool(workspace),
		"bash":           bash,
	}

	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	enabled := profile.ToolList(names)

	usesBash := false
	for _, name := range enabled {
		tool, ok := all[name]
		if !ok {
			continue
		}
		if err := registry.Register(tool); err != nil {
			return nil, fmt.Errorf("register tool %s: %w", name, err)
		}
		if name == "bash" {
			usesBash = true
		}
	}
	if !usesBash {
		bash = nil
	}
	return bash, nil
}

// newClient picks the provider implementation from the configuration
// and wraps it with the transport retry policy.
func newClient(cfg config.LLMConfig, model string) llm.Client {
	opts := llm.Options{
		Model:             model,
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		Temperature:       float32(cfg.Temperature),
		TopP:              cfg.TopP,
		TopK:              cfg.TopK,
		EnableThinking:    cfg.EnableThinking,
		MaxTokens:         cfg.MaxTokens,
		TimeoutSeconds:    cfg.Timeout,
		ParallelToolCalls: cfg.ParallelToolCalls,
	}
	var client llm.Client
	if cfg.Provider == "anthropic" {
		client = llm.NewAnthropic(opts)
	} else {
		client = llm.NewOpenAICompatible(opts)
	}
	return llm.WithRetry(client, llm.DefaultRetryConfig())
}

// Run starts one query through the loop.
func (r *Runtime) Run(ctx context.Context, userQuery string, stream bool) <-chan Event {
	return r.Loop.Run(ctx, userQuery, stream)
}

// Close ends the session: writes the metrics summary, indexes the
// session, and releases the shell and log files.
func (r *Runtime) Close(ctx context.Context) error {
	r.Collector.EndSession()
	summary := r.Collector.GenerateSummary()
	r.Engine.WriteSessionSummary(ctx, summary.AsMap())

	if r.store != nil {
		var cost *float64
		if summary.APICalls.Cost.ModelFound {
			cost = summary.APICalls.Cost.WithCache
		}
		err := r.store.RecordEnd(ctx, r.SessionID, time.Now(),
			summary.Session.TotalPrompts,
			summary.APICalls.Tokens.Total,
			cost,
			r.Engine.FinalResponse())
		if err != nil {
			r.Logger.Warn(ctx, "failed to record session end", "error", err.Error())
		}
	}

	if r.metricsServer != nil {
		r.metricsServer.Close()
	}
	if r.bash != nil {
		r.bash.Close()
	}
	r.trajectory.Close()
	return r.Logger.Close()
}
