package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/forge/internal/config"
	"github.com/haasonsaas/forge/internal/llm"
	"github.com/haasonsaas/forge/internal/store"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.LLM.Model = "claude-sonnet-4.5"
	cfg.LLM.APIKey = "test-key"
	cfg.LLM.BaseURL = "https://api.example.com/v1"
	cfg.Agent.WorkspaceRoot = t.TempDir()
	cfg.Logging.LogsDir = t.TempDir()
	return cfg
}

func TestNewRuntime_AssemblesSession(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	rt, err := NewRuntime(ctx, cfg, RuntimeOptions{})
	require.NoError(t, err)
	defer rt.Close(ctx)

	assert.Regexp(t, `^session_\d{8}_\d{6}_[0-9a-f]{8}$`, rt.SessionID)
	assert.DirExists(t, rt.SessionDir)
	assert.FileExists(t, filepath.Join(rt.SessionDir, "main.log"))
	assert.Equal(t, "default", rt.Profile.Name)

	// the full toolkit is registered for the default profile
	names := rt.Engine.ToolsForLLM()
	assert.Len(t, names, 7)
}

func TestNewRuntime_UnknownProfile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.Agent = "no-such-agent"

	_, err := NewRuntime(context.Background(), cfg, RuntimeOptions{})
	assert.ErrorContains(t, err, "unknown agent profile")
}

func TestNewRuntime_ToolsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.EnableTools = false

	rt, err := NewRuntime(context.Background(), cfg, RuntimeOptions{})
	require.NoError(t, err)
	defer rt.Close(context.Background())

	assert.Empty(t, rt.Engine.ToolsForLLM())
}

func TestRuntime_CloseWritesSummary(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	rt, err := NewRuntime(ctx, cfg, RuntimeOptions{})
	require.NoError(t, err)

	prompt := rt.Collector.TrackPrompt("test query")
	prompt.End()
	require.NoError(t, rt.Close(ctx))

	f, err := os.Open(filepath.Join(rt.SessionDir, "trajectory.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var kinds []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		var event map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		kinds = append(kinds, event["event_type"].(string))
	}
	assert.Equal(t, "session_start", kinds[0])
	assert.Equal(t, "session_summary", kinds[len(kinds)-1])
}

func TestRuntime_SessionIndexing(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	idx, err := store.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer idx.Close()

	rt, err := NewRuntime(ctx, cfg, RuntimeOptions{Store: idx})
	require.NoError(t, err)

	rec, err := idx.Get(ctx, rt.SessionID)
	require.NoError(t, err)
	assert.Equal(t, rt.Workspace, rec.Workspace)
	assert.Nil(t, rec.EndedAt)

	require.NoError(t, rt.Close(ctx))

	rec, err = idx.Get(ctx, rt.SessionID)
	require.NoError(t, err)
	assert.NotNil(t, rec.EndedAt)
}

func TestNewClient_RetriesRateLimitedRequest(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error":{"message":"rate limited","type":"rate_limit_error"}}`)
			return
		}
		io.WriteString(w, `{"id":"cmpl-1","object":"chat.completion","model":"gpt-test",`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}],`+
			`"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
	}))
	defer server.Close()

	client := newClient(config.LLMConfig{
		Provider: "openai_compatible",
		Model:    "gpt-test",
		APIKey:   "test-key",
		BaseURL:  server.URL + "/v1",
		Timeout:  10,
	}, "gpt-test")

	resp, err := client.Generate(context.Background(), llm.Request{
		Messages: []llm.Message{llm.UserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.EqualValues(t, 2, atomic.LoadInt32(&requests))
}

func TestNewRuntime_PrometheusEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.PrometheusListen = "127.0.0.1:0"
	ctx := context.Background()

	rt, err := NewRuntime(ctx, cfg, RuntimeOptions{})
	require.NoError(t, err)
	defer rt.Close(ctx)
	require.NotEmpty(t, rt.MetricsAddr)

	prompt := rt.Collector.TrackPrompt("test query")
	tool := rt.Collector.TrackToolCall("bash", "call_1", nil)
	tool.SetSuccess(true)
	tool.End()
	prompt.End()

	resp, err := http.Get("http://" + rt.MetricsAddr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body),
		`forge_tool_executions_total{status="success",tool_name="bash"} 1`)
}

func TestNewRuntime_ResumeFallsBackOnBadSnapshot(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	bad := filepath.Join(t.TempDir(), "llm_messages.json")
	require.NoError(t, os.WriteFile(bad, []byte("corrupt"), 0o644))

	rt, err := NewRuntime(ctx, cfg, RuntimeOptions{ResumePath: bad})
	require.NoError(t, err)
	defer rt.Close(ctx)

	// fresh session: just the system message
	assert.Len(t, rt.Engine.MessagesForLLM(), 1)
}
