package agent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/forge/internal/agent/conversation"
	"github.com/haasonsaas/forge/internal/environment"
	"github.com/haasonsaas/forge/internal/llm"
	"github.com/haasonsaas/forge/internal/metrics"
	"github.com/haasonsaas/forge/internal/observability"
	"github.com/haasonsaas/forge/internal/tools"
)

type fakeTool struct {
	def     tools.Definition
	result  *tools.Result
	err     error
	calls   int
	confirm func(args map[string]any) bool
}

func (f *fakeTool) Definition() tools.Definition { return f.def }

func (f *fakeTool) Execute(ctx context.Context, args map[string]any) (*tools.Result, error) {
	f.calls++
	return f.result, f.err
}

type policyTool struct {
	fakeTool
}

func (p *policyTool) RequiresConfirmation(args map[string]any) bool {
	return p.confirm(args)
}

func newTestExecutor(t *testing.T, reg *tools.Registry, yolo bool, confirm ConfirmationCallback) (*Executor, *conversation.Engine) {
	t.Helper()
	dir := t.TempDir()
	engine := conversation.NewEngine(conversation.Config{
		SessionID:    "session_exec",
		Workspace:    dir,
		SystemPrompt: "test agent",
		Environment:  environment.Info{OSType: "linux", Cwd: dir},
		Registry:     reg,
		Trajectory:   observability.NewTrajectoryWriter(filepath.Join(dir, "trajectory.jsonl")),
	})
	executor := NewExecutor(ExecutorConfig{
		Registry: reg,
		Engine:   engine,
		YoloMode: yolo,
		Confirm:  confirm,
		Metrics:  metrics.NewCollector("session_exec"),
	})
	return executor, engine
}

func collectEvents(x *Executor, tc llm.ToolCall) []Event {
	var events []Event
	x.ExecuteToolCall(context.Background(), tc, func(event Event) {
		events = append(events, event)
	})
	return events
}

func toolCall(id, name, arguments string) llm.ToolCall {
	return llm.ToolCall{ID: id, Type: "function", Function: llm.FunctionCall{Name: name, Arguments: arguments}}
}

func TestExecuteToolCall_ToolNotFound(t *testing.T) {
	x, engine := newTestExecutor(t, tools.NewRegistry(), true, nil)

	events := collectEvents(x, toolCall("call_1", "missing_tool", "{}"))
	require.Len(t, events, 1)
	assert.Equal(t, EventToolDone, events[0].Kind)
	assert.False(t, events[0].Confirmed)
	assert.Contains(t, events[0].Result, "Error: Tool not found: missing_tool")

	messages := engine.MessagesForLLM()
	last := messages[len(messages)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "call_1", last.ToolCallID)
	assert.Contains(t, last.Content, "Tool not found")
}

func TestExecuteToolCall_InvalidJSONSanitizes(t *testing.T) {
	reg := tools.NewRegistry()
	tool := &fakeTool{def: tools.Definition{Name: "echo", Description: "echo"}, result: &tools.Result{Content: "ok"}}
	require.NoError(t, reg.Register(tool))
	x, engine := newTestExecutor(t, reg, true, nil)

	ctx := context.Background()
	engine.AddUserMessage(ctx, "q")
	engine.AddAssistantMessage(ctx, &llm.Response{
		Content:   "calling",
		ToolCalls: []llm.ToolCall{toolCall("call_bad", "echo", `{"x":`)},
	}, 0)

	events := collectEvents(x, toolCall("call_bad", "echo", `{"x":`))
	require.Len(t, events, 1)
	assert.Equal(t, EventToolDone, events[0].Kind)
	assert.False(t, events[0].Confirmed)
	assert.Zero(t, tool.calls)

	// sanitization rewrites the assistant message instead of appending
	// a tool result
	messages := engine.MessagesForLLM()
	last := messages[len(messages)-1]
	assert.Equal(t, llm.RoleUser, last.Role)
	assert.Contains(t, last.Content, "invalid JSON format")
	for _, msg := range messages {
		assert.NotEqual(t, llm.RoleTool, msg.Role)
	}
}

func TestExecuteToolCall_SchemaValidationFails(t *testing.T) {
	reg := tools.NewRegistry()
	tool := &fakeTool{
		def: tools.Definition{
			Name:        "reader",
			Description: "reads",
			Parameters: []tools.Parameter{
				{Name: "path", Type: "string", Required: true},
			},
		},
		result: &tools.Result{Content: "read"},
	}
	require.NoError(t, reg.Register(tool))
	x, engine := newTestExecutor(t, reg, true, nil)

	// wrong type for a declared parameter
	events := collectEvents(x, toolCall("call_1", "reader", `{"path":12}`))
	require.Len(t, events, 1)
	assert.Equal(t, EventToolDone, events[0].Kind)
	assert.Contains(t, events[0].Result, "Error: invalid arguments for reader")
	assert.Zero(t, tool.calls)

	// missing required parameter
	events = collectEvents(x, toolCall("call_2", "reader", `{}`))
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Result, "Error: invalid arguments for reader")
	assert.Zero(t, tool.calls)

	// the parse succeeded, so each call id still gets a tool result
	messages := engine.MessagesForLLM()
	last := messages[len(messages)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "call_2", last.ToolCallID)
	assert.Contains(t, last.Content, "invalid arguments")

	// valid arguments pass through to execution
	events = collectEvents(x, toolCall("call_3", "reader", `{"path":"a.txt"}`))
	assert.Equal(t, 1, tool.calls)
	assert.Equal(t, EventToolDone, events[len(events)-1].Kind)
	assert.True(t, events[len(events)-1].Confirmed)
}

func TestExecuteToolCall_ConfirmationDenied(t *testing.T) {
	reg := tools.NewRegistry()
	tool := &fakeTool{
		def:    tools.Definition{Name: "writer", Description: "writes", RequiresConfirmation: true},
		result: &tools.Result{Content: "wrote"},
	}
	require.NoError(t, reg.Register(tool))
	x, engine := newTestExecutor(t, reg, false, func(name, id string, args map[string]any) bool {
		return false
	})

	events := collectEvents(x, toolCall("call_1", "writer", `{"path":"/a"}`))
	require.Len(t, events, 2)
	assert.Equal(t, EventToolConfirmationRequired, events[0].Kind)
	assert.Equal(t, EventToolDone, events[1].Kind)
	assert.False(t, events[1].Confirmed)
	assert.Equal(t, "Tool execution rejected by user: writer", events[1].Result)
	assert.Zero(t, tool.calls)

	messages := engine.MessagesForLLM()
	last := messages[len(messages)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Contains(t, last.Content, "rejected by user")
}

func TestExecuteToolCall_NilCallbackDenies(t *testing.T) {
	reg := tools.NewRegistry()
	tool := &fakeTool{
		def:    tools.Definition{Name: "writer", Description: "writes", RequiresConfirmation: true},
		result: &tools.Result{Content: "wrote"},
	}
	require.NoError(t, reg.Register(tool))
	x, _ := newTestExecutor(t, reg, false, nil)

	events := collectEvents(x, toolCall("call_1", "writer", `{}`))
	require.Len(t, events, 2)
	assert.Equal(t, EventToolDone, events[1].Kind)
	assert.False(t, events[1].Confirmed)
	assert.Zero(t, tool.calls)
}

func TestExecuteToolCall_YoloSkipsConfirmation(t *testing.T) {
	reg := tools.NewRegistry()
	tool := &fakeTool{
		def:    tools.Definition{Name: "writer", Description: "writes", RequiresConfirmation: true},
		result: &tools.Result{Content: "wrote it", Display: "✓ wrote"},
	}
	require.NoError(t, reg.Register(tool))
	x, _ := newTestExecutor(t, reg, true, nil)

	events := collectEvents(x, toolCall("call_1", "writer", `{}`))
	require.Len(t, events, 2)
	assert.Equal(t, EventToolStart, events[0].Kind)
	assert.Equal(t, EventToolDone, events[1].Kind)
	assert.True(t, events[1].Confirmed)
	assert.Equal(t, "wrote it", events[1].Result)
	assert.Equal(t, 1, tool.calls)
}

func TestExecuteToolCall_ConfirmationPolicyOverride(t *testing.T) {
	reg := tools.NewRegistry()
	tool := &policyTool{fakeTool: fakeTool{
		def:    tools.Definition{Name: "bash", Description: "runs commands", RequiresConfirmation: true},
		result: &tools.Result{Content: "done"},
	}}
	tool.confirm = func(args map[string]any) bool {
		cmd, _ := args["command"].(string)
		return cmd != "git status"
	}
	require.NoError(t, reg.Register(tool))
	x, _ := newTestExecutor(t, reg, false, nil)

	// allow-listed command skips the confirmation gate entirely
	events := collectEvents(x, toolCall("call_1", "bash", `{"command":"git status"}`))
	require.Len(t, events, 2)
	assert.Equal(t, EventToolStart, events[0].Kind)
	assert.True(t, events[1].Confirmed)

	// anything else still needs it, and the nil callback denies
	events = collectEvents(x, toolCall("call_2", "bash", `{"command":"rm -rf /tmp/x"}`))
	require.Len(t, events, 2)
	assert.Equal(t, EventToolConfirmationRequired, events[0].Kind)
	assert.False(t, events[1].Confirmed)
}

func TestExecuteToolCall_ErrorResultMarksFailure(t *testing.T) {
	reg := tools.NewRegistry()
	tool := &fakeTool{
		def:    tools.Definition{Name: "reader", Description: "reads"},
		result: tools.Errorf("file not found: /nope"),
	}
	require.NoError(t, reg.Register(tool))
	x, engine := newTestExecutor(t, reg, true, nil)

	events := collectEvents(x, toolCall("call_1", "reader", `{}`))
	done := events[len(events)-1]
	assert.True(t, done.Confirmed)
	assert.Contains(t, done.Result, "Error: file not found")

	messages := engine.MessagesForLLM()
	last := messages[len(messages)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
}

func TestExecuteToolCall_ExecutionErrorWrapped(t *testing.T) {
	reg := tools.NewRegistry()
	tool := &fakeTool{
		def: tools.Definition{Name: "flaky", Description: "fails"},
		err: errors.New("boom"),
	}
	require.NoError(t, reg.Register(tool))
	x, _ := newTestExecutor(t, reg, true, nil)

	events := collectEvents(x, toolCall("call_1", "flaky", `{}`))
	done := events[len(events)-1]
	assert.Contains(t, done.Result, "Error: Tool execution error: boom")
	assert.Contains(t, done.Display, "❌")
}

func TestResultSucceeded(t *testing.T) {
	assert.True(t, ResultSucceeded(&tools.Result{Content: "fine", Display: "✓ ok"}))
	assert.False(t, ResultSucceeded(&tools.Result{Content: "Error: nope"}))
	assert.False(t, ResultSucceeded(&tools.Result{Content: "partial", Display: "❌ failed"}))
	assert.False(t, ResultSucceeded(nil))
}

func TestRemoteExecutor_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"response":{"success":true,"result":"remote ok"}}`))
	}))
	defer server.Close()

	remote := NewRemoteExecutor(server.URL, "inst-1", 5*time.Second)
	result := remote.Execute(context.Background(), "bash", map[string]any{"command": "ls"})
	assert.Equal(t, "remote ok", result.Content)
	assert.True(t, ResultSucceeded(result))
}

func TestRemoteExecutor_ReportedFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":{"success":false,"result":"command failed"}}`))
	}))
	defer server.Close()

	remote := NewRemoteExecutor(server.URL, "inst-1", 5*time.Second)
	result := remote.Execute(context.Background(), "bash", nil)
	assert.Equal(t, "command failed", result.Content)
	assert.False(t, ResultSucceeded(result))
}

func TestRemoteExecutor_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer server.Close()

	remote := NewRemoteExecutor(server.URL, "inst-1", 5*time.Second)
	result := remote.Execute(context.Background(), "bash", nil)
	assert.Contains(t, result.Content, "Error: Remote tool call failed with status 500")
	assert.False(t, ResultSucceeded(result))
}

func TestRemoteExecutor_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	remote := NewRemoteExecutor(server.URL, "inst-1", 5*time.Second)
	result := remote.Execute(context.Background(), "bash", nil)
	assert.Contains(t, result.Content, "Error: Failed to parse JSON response")
}

func TestRemoteExecutor_MissingResponseField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	remote := NewRemoteExecutor(server.URL, "inst-1", 5*time.Second)
	result := remote.Execute(context.Background(), "bash", nil)
	assert.Contains(t, result.Content, "Error: Invalid response structure")
}

func TestRemoteExecutor_ConnectionError(t *testing.T) {
	remote := NewRemoteExecutor("http://127.0.0.1:1", "inst-1", time.Second)
	result := remote.Execute(context.Background(), "bash", nil)
	assert.Contains(t, result.Content, "Error:")
	assert.Contains(t, result.Display, "❌")
}
