// Package conversation owns the message ledger for one agent session:
// prompt-id allocation, message appends, invalid-tool-call
// sanitization, trajectory events, and history resume.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/forge/internal/environment"
	"github.com/haasonsaas/forge/internal/llm"
	"github.com/haasonsaas/forge/internal/observability"
	"github.com/haasonsaas/forge/internal/tools"
)

// Config assembles an Engine.
type Config struct {
	SessionID    string
	Workspace    string
	SystemPrompt string
	Environment  environment.Info
	Registry     *tools.Registry
	Trajectory   *observability.TrajectoryWriter
	Snapshot     *observability.SnapshotWriter
	Logger       *observability.Logger

	// History carries messages restored from a previous session's
	// snapshot. The leading system message must already be stripped.
	History []llm.Message
}

// Engine is the authoritative conversation ledger.
type Engine struct {
	sessionID     string
	workspace     string
	messages      []llm.Message
	promptCounter int
	promptID      string
	iteration     int
	finalResponse string

	registry   *tools.Registry
	trajectory *observability.TrajectoryWriter
	snapshot   *observability.SnapshotWriter
	logger     *observability.Logger
}

// NewEngine builds the ledger with a fresh system message composed of
// the agent profile prompt and the environment snapshot.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		sessionID:  cfg.SessionID,
		workspace:  cfg.Workspace,
		registry:   cfg.Registry,
		trajectory: cfg.Trajectory,
		snapshot:   cfg.Snapshot,
		logger:     cfg.Logger,
	}

	var sections []string
	if cfg.SystemPrompt != "" {
		sections = append(sections, cfg.SystemPrompt)
	}
	if env := cfg.Environment.ContextString(); env != "" {
		sections = append(sections, env)
	}
	e.messages = append(e.messages, llm.SystemMessage(strings.Join(sections, "\n\n")))
	e.messages = append(e.messages, cfg.History...)
	return e
}

// SessionID returns the session identifier.
func (e *Engine) SessionID() string { return e.sessionID }

// Workspace returns the workspace root.
func (e *Engine) Workspace() string { return e.workspace }

// PromptID returns the id of the current user query, or "" before the
// first one.
func (e *Engine) PromptID() string { return e.promptID }

// Iteration returns the current iteration within the prompt.
func (e *Engine) Iteration() int { return e.iteration }

// FinalResponse returns the last assistant message that carried no
// tool calls.
func (e *Engine) FinalResponse() string { return e.finalResponse }

// AddUserMessage appends a plain-text user query, allocating a new
// prompt id and resetting the iteration counter.
func (e *Engine) AddUserMessage(ctx context.Context, content string) {
	e.beginPrompt(ctx)
	e.messages = append(e.messages, llm.UserMessage(content))
	e.writeEvent(map[string]any{
		"event_type": observability.EventUserMessage,
		"session_id": e.sessionID,
		"prompt_id":  e.promptID,
		"role":       "user",
		"content":    content,
	})
}

// AddUserBlocks appends a multimodal user query.
func (e *Engine) AddUserBlocks(ctx context.Context, blocks []llm.ContentBlock) {
	e.beginPrompt(ctx)
	e.messages = append(e.messages, llm.UserBlocksMessage(blocks))
	e.writeEvent(map[string]any{
		"event_type": observability.EventUserMessage,
		"session_id": e.sessionID,
		"prompt_id":  e.promptID,
		"role":       "user",
		"content":    blocks,
	})
}

func (e *Engine) beginPrompt(ctx context.Context) {
	e.promptCounter++
	e.promptID = fmt.Sprintf("prompt_%03d", e.promptCounter)
	e.iteration = 0
	if e.logger != nil {
		e.logger.Debug(ctx, "added user message",
			"session_id", e.sessionID, "prompt_id", e.promptID)
	}
}

// AddAssistantMessage appends a model turn. iteration <= 0
// auto-increments; a positive value overrides the counter.
func (e *Engine) AddAssistantMessage(ctx context.Context, resp *llm.Response, iteration int) {
	if iteration > 0 {
		e.iteration = iteration
	} else {
		e.iteration++
	}

	e.messages = append(e.messages, llm.AssistantMessage(resp.Content, resp.ToolCalls))
	if !resp.HasToolCalls() {
		e.finalResponse = resp.Content
	}
	if e.logger != nil {
		e.logger.Debug(ctx, "added assistant message",
			"session_id", e.sessionID, "prompt_id", e.promptID, "iteration", e.iteration)
	}

	event := map[string]any{
		"event_type": observability.EventAssistantResponse,
		"session_id": e.sessionID,
		"prompt_id":  e.promptID,
		"iteration":  e.iteration,
		"role":       "assistant",
		"content":    resp.Content,
	}
	if resp.HasToolCalls() {
		event["tool_calls"] = resp.ToolCalls
	}
	extra := map[string]any{}
	if resp.Model != "" {
		extra["model"] = resp.Model
	}
	if resp.Usage != nil {
		usage := map[string]any{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		}
		if resp.Usage.CacheCreationTokens > 0 {
			usage["cache_creation_tokens"] = resp.Usage.CacheCreationTokens
		}
		if resp.Usage.CacheReadTokens > 0 {
			usage["cache_read_tokens"] = resp.Usage.CacheReadTokens
		}
		extra["token_usage"] = usage
	}
	if len(extra) > 0 {
		event["extra_data"] = extra
	}
	e.writeEvent(event)
}

// ToolResultInfo carries optional trajectory metadata for a tool
// result.
type ToolResultInfo struct {
	ToolName  string
	Arguments map[string]any
	Success   bool
	Duration  float64
}

// AddToolResult appends a tool-role message bound to a tool call id.
func (e *Engine) AddToolResult(ctx context.Context, toolCallID, result string, info ToolResultInfo) {
	e.messages = append(e.messages, llm.ToolMessage(toolCallID, result))
	if e.logger != nil {
		e.logger.Debug(ctx, "added tool result",
			"session_id", e.sessionID, "tool_call_id", toolCallID)
	}

	event := map[string]any{
		"event_type":   observability.EventToolResult,
		"session_id":   e.sessionID,
		"prompt_id":    e.promptID,
		"iteration":    e.iteration,
		"tool_call_id": toolCallID,
		"role":         "tool",
		"content":      result,
		"tool_success": info.Success,
	}
	if info.ToolName != "" {
		event["tool_name"] = info.ToolName
	}
	if len(info.Arguments) > 0 {
		event["arguments"] = info.Arguments
	}
	if info.Duration > 0 {
		event["extra_data"] = map[string]any{"duration": info.Duration}
	}
	e.writeEvent(event)
}

// SanitizeInvalidToolCall repairs an assistant message whose tool call
// carried malformed JSON arguments. The tool calls are transcribed
// into the message text, the tool_calls field is cleared, and a
// corrective user message is appended. After sanitization no
// tool-call-id is left expecting a tool result.
func (e *Engine) SanitizeInvalidToolCall(ctx context.Context, toolCallID, toolName, errorMessage string) {
	targetIdx := -1
	for i := len(e.messages) - 1; i >= 0; i-- {
		msg := e.messages[i]
		if msg.Role != llm.RoleAssistant {
			continue
		}
		for _, tc := range msg.ToolCalls {
			if tc.ID == toolCallID {
				targetIdx = i
				break
			}
		}
		if targetIdx >= 0 {
			break
		}
	}
	if targetIdx < 0 {
		if e.logger != nil {
			e.logger.Warn(ctx, "could not find assistant message to sanitize",
				"session_id", e.sessionID, "tool_call_id", toolCallID, "tool_name", toolName)
		}
		return
	}

	before := e.messages[targetIdx]
	var b strings.Builder
	b.WriteString("\n\nTool calls attempted:")
	for _, tc := range before.ToolCalls {
		args := "<Invalid JSON format>"
		if tc.ID != toolCallID {
			args = formatToolArgs(tc)
		}
		fmt.Fprintf(&b, "\n- Tool: %s\n  ID: %s\n  Arguments: %s", tc.Function.Name, tc.ID, args)
	}

	sanitized := llm.AssistantMessage(before.Content+b.String(), nil)
	e.messages[targetIdx] = sanitized
	if e.logger != nil {
		e.logger.Info(ctx, "sanitized invalid tool call",
			"session_id", e.sessionID, "tool_call_id", toolCallID, "tool_name", toolName)
	}

	e.writeEvent(map[string]any{
		"event_type":          observability.EventToolCallSanitized,
		"session_id":          e.sessionID,
		"prompt_id":           e.promptID,
		"content_before":      before.Content,
		"content_after":       sanitized.Content,
		"sanitized_tool_call": toolCallID,
	})

	e.AddUserMessage(ctx, fmt.Sprintf(
		"Error: The previous tool call had invalid JSON format in the arguments. "+
			"Tool '%s' (ID: %s) failed with error: %s\n\n"+
			"Please retry the tool call with VALID JSON format. Ensure that:\n"+
			"- All strings are properly quoted\n"+
			"- All special characters are properly escaped\n"+
			"- The JSON structure is complete and well-formed\n"+
			"- All brackets and braces are properly matched\n\n"+
			"Continue with the task using correct JSON format.",
		toolName, toolCallID, errorMessage))
}

// formatToolArgs pretty-prints a tool call's arguments, falling back
// to a placeholder when the JSON is unparseable.
func formatToolArgs(tc llm.ToolCall) string {
	raw := tc.Function.Arguments
	if raw == "" {
		raw = "{}"
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return "<Invalid JSON format>"
	}
	pretty, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return "<Invalid JSON format>"
	}
	return string(pretty)
}

// MessagesForLLM returns a copy of the ledger.
func (e *Engine) MessagesForLLM() []llm.Message {
	out := make([]llm.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// ToolsForLLM exports the registered tool schemas.
func (e *Engine) ToolsForLLM() []llm.Tool {
	if e.registry == nil {
		return nil
	}
	return e.registry.LLMTools()
}

// WriteSessionStart records the session_start trajectory event.
func (e *Engine) WriteSessionStart(agentName, model string, toolNames []string, temperature float64) {
	e.writeEvent(map[string]any{
		"event_type":  observability.EventSessionStart,
		"session_id":  e.sessionID,
		"agent":       agentName,
		"model":       model,
		"tools":       toolNames,
		"workdir":     e.workspace,
		"temperature": temperature,
	})
}

// WriteSessionSummary records the end-of-session summary, enriched
// with the final response and the workspace git diff.
func (e *Engine) WriteSessionSummary(ctx context.Context, summary map[string]any) {
	if e.trajectory == nil {
		return
	}
	if e.finalResponse != "" {
		summary["final_response"] = e.finalResponse
	}
	if diff := environment.CollectGitDiff(ctx, e.workspace); diff != nil {
		summary["git_diff"] = diff
	}
	if err := e.trajectory.WriteSummary(summary); err != nil && e.logger != nil {
		e.logger.Warn(ctx, "failed to write session summary",
			"session_id", e.sessionID, "error", err.Error())
	}
}

// WriteSnapshot persists the current ledger and tool schemas so a
// later session can resume from them.
func (e *Engine) WriteSnapshot(ctx context.Context) {
	if e.snapshot == nil {
		return
	}
	if err := e.snapshot.Write(e.sessionID, e.messages, e.ToolsForLLM()); err != nil && e.logger != nil {
		e.logger.Warn(ctx, "failed to write conversation snapshot",
			"session_id", e.sessionID, "error", err.Error())
	}
}

func (e *Engine) writeEvent(event map[string]any) {
	if e.trajectory == nil {
		return
	}
	if err := e.trajectory.Write(event); err != nil && e.logger != nil {
		e.logger.Warn(context.Background(), "failed to write trajectory event",
			"session_id", e.sessionID, "error", err.Error())
	}
}

// LoadConversationHistory reads a previous session's snapshot and
// returns its messages with the leading system message dropped. The
// system prompt is rebuilt fresh on resume.
func LoadConversationHistory(path string) ([]llm.Message, error) {
	snap, err := observability.LoadSnapshot(path)
	if err != nil {
		return nil, err
	}
	if len(snap.Messages) == 0 {
		return nil, fmt.Errorf("conversation snapshot has no messages: %s", path)
	}
	var messages []llm.Message
	if err := json.Unmarshal(snap.Messages, &messages); err != nil {
		return nil, fmt.Errorf("parse conversation snapshot %s: %w", path, err)
	}
	var history []llm.Message
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			continue
		}
		history = append(history, msg)
	}
	return history, nil
}
