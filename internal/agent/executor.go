package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/forge/internal/agent/conversation"
	"github.com/haasonsaas/forge/internal/llm"
	"github.com/haasonsaas/forge/internal/metrics"
	"github.com/haasonsaas/forge/internal/observability"
	"github.com/haasonsaas/forge/internal/tools"
)

// ConfirmationCallback asks the user whether a tool invocation may
// proceed. A nil callback denies by default.
type ConfirmationCallback func(toolName, toolID string, arguments map[string]any) bool

// Executor dispatches one tool call at a time: lookup, argument
// parsing, confirmation, execution, and result recording.
type Executor struct {
	registry *tools.Registry
	engine   *conversation.Engine
	yolo     bool
	confirm  ConfirmationCallback
	metrics  *metrics.Collector
	remote   *RemoteExecutor
	logger   *observability.Logger
}

// ExecutorConfig assembles an Executor.
type ExecutorConfig struct {
	Registry *tools.Registry
	Engine   *conversation.Engine
	YoloMode bool
	Confirm  ConfirmationCallback
	Metrics  *metrics.Collector
	Remote   *RemoteExecutor
	Logger   *observability.Logger
}

// NewExecutor builds a tool executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	return &Executor{
		registry: cfg.Registry,
		engine:   cfg.Engine,
		yolo:     cfg.YoloMode,
		confirm:  cfg.Confirm,
		metrics:  cfg.Metrics,
		remote:   cfg.Remote,
		logger:   cfg.Logger,
	}
}

// ExecuteToolCall runs one tool call, emitting progress events and
// recording the result in the conversation ledger.
func (x *Executor) ExecuteToolCall(ctx context.Context, tc llm.ToolCall, emit func(Event)) {
	toolName := tc.Function.Name
	sessionID := x.engine.SessionID()

	tool, ok := x.registry.Get(toolName)
	if !ok {
		result := fmt.Sprintf("Error: Tool not found: %s", toolName)
		if x.logger != nil {
			x.logger.Error(ctx, "tool not found", "tool_name", toolName, "session_id", sessionID)
		}
		x.engine.AddToolResult(ctx, tc.ID, result, conversation.ToolResultInfo{ToolName: toolName})
		emit(Event{Kind: EventToolDone, ToolName: toolName, ToolID: tc.ID, Result: result, Confirmed: false})
		return
	}

	var arguments map[string]any
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &arguments); err != nil {
		if x.logger != nil {
			x.logger.Error(ctx, "invalid tool arguments JSON",
				"tool_name", toolName, "error", err.Error(), "session_id", sessionID)
		}
		// Sanitization rewrites the assistant message; no tool result
		// is appended since no tool-call-id expects one afterwards.
		x.engine.SanitizeInvalidToolCall(ctx, tc.ID, toolName, err.Error())
		emit(Event{
			Kind:     EventToolDone,
			ToolName: toolName,
			ToolID:   tc.ID,
			Result:   fmt.Sprintf("Error: Invalid tool arguments JSON: %v", err),
		})
		return
	}

	if err := x.registry.ValidateArguments(toolName, arguments); err != nil {
		result := fmt.Sprintf("Error: %v", err)
		if x.logger != nil {
			x.logger.Error(ctx, "tool arguments failed schema validation",
				"tool_name", toolName, "error", err.Error(), "session_id", sessionID)
		}
		x.engine.AddToolResult(ctx, tc.ID, result, conversation.ToolResultInfo{
			ToolName:  toolName,
			Arguments: arguments,
		})
		emit(Event{Kind: EventToolDone, ToolName: toolName, ToolID: tc.ID, Result: result, Arguments: arguments})
		return
	}

	if x.needsConfirmation(tool, arguments) {
		emit(Event{Kind: EventToolConfirmationRequired, ToolName: toolName, ToolID: tc.ID, Arguments: arguments})
		if !x.userConfirmed(ctx, toolName, tc.ID, arguments) {
			result := fmt.Sprintf("Tool execution rejected by user: %s", toolName)
			if x.logger != nil {
				x.logger.Info(ctx, "tool execution rejected by user",
					"tool_name", toolName, "session_id", sessionID)
			}
			x.engine.AddToolResult(ctx, tc.ID, result, conversation.ToolResultInfo{
				ToolName:  toolName,
				Arguments: arguments,
			})
			emit(Event{Kind: EventToolDone, ToolName: toolName, ToolID: tc.ID, Result: result, Arguments: arguments})
			return
		}
	}

	x.execute(ctx, tool, tc.ID, toolName, arguments, emit)
}

// needsConfirmation applies the per-invocation policy when the tool
// exposes one, falling back to the static definition. YOLO mode skips
// all confirmation.
func (x *Executor) needsConfirmation(tool tools.Tool, arguments map[string]any) bool {
	if x.yolo {
		return false
	}
	if policy, ok := tool.(tools.ConfirmationPolicy); ok {
		return policy.RequiresConfirmation(arguments)
	}
	return tool.Definition().RequiresConfirmation
}

func (x *Executor) userConfirmed(ctx context.Context, toolName, toolID string, arguments map[string]any) bool {
	if x.confirm == nil {
		if x.logger != nil {
			x.logger.Warn(ctx, "tool requires confirmation but no callback provided",
				"tool_name", toolName)
		}
		return false
	}
	return x.confirm(toolName, toolID, arguments)
}

func (x *Executor) execute(ctx context.Context, tool tools.Tool, toolID, toolName string, arguments map[string]any, emit func(Event)) {
	sessionID := x.engine.SessionID()
	emit(Event{Kind: EventToolStart, ToolName: toolName, ToolID: toolID, Arguments: arguments})

	var tracker *metrics.ToolCallTracker
	if x.metrics != nil {
		tracker = x.metrics.TrackToolCall(toolName, toolID, arguments)
	}

	start := time.Now()
	var result *tools.Result
	if x.remote != nil {
		if x.logger != nil {
			x.logger.Info(ctx, "using remote tool execution",
				"tool_name", toolName, "session_id", sessionID)
		}
		result = x.remote.Execute(ctx, toolName, arguments)
	} else {
		executed, err := tool.Execute(ctx, arguments)
		if err != nil {
			executed = tools.ErrorResult(
				fmt.Sprintf("Tool execution error: %v", err),
				fmt.Sprintf("Error: %v", err))
		}
		result = executed
	}
	duration := time.Since(start).Seconds()

	success := ResultSucceeded(result)
	if tracker != nil {
		if success {
			tracker.SetSuccess(true)
		} else {
			tracker.SetError("Tool execution reported failure")
		}
		tracker.End()
	}
	if x.logger != nil {
		if success {
			x.logger.Info(ctx, "tool executed successfully",
				"tool_name", toolName, "session_id", sessionID)
		} else {
			x.logger.Warn(ctx, "tool execution completed with errors",
				"tool_name", toolName, "session_id", sessionID)
		}
	}

	x.engine.AddToolResult(ctx, toolID, result.Content, conversation.ToolResultInfo{
		ToolName:  toolName,
		Arguments: arguments,
		Success:   success,
		Duration:  duration,
	})
	emit(Event{
		Kind:      EventToolDone,
		ToolName:  toolName,
		ToolID:    toolID,
		Result:    result.Content,
		Display:   result.Display,
		Confirmed: true,
		Arguments: arguments,
	})
}

// ResultSucceeded applies the success heuristic: an "Error:" content
// prefix or a "❌" display marker means failure.
func ResultSucceeded(result *tools.Result) bool {
	if result == nil {
		return false
	}
	if strings.HasPrefix(result.Content, "Error:") {
		return false
	}
	if strings.Contains(result.Display, "❌") {
		return false
	}
	return true
}
