package metrics

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Collector accumulates the session metric tree. The agent loop is
// single-threaded, but the mutex keeps concurrent readers (summary
// generation, exporters) safe.
type Collector struct {
	mu            sync.Mutex
	session       *SessionMetric
	sessionStart  time.Time
	currentPrompt *PromptMetric
	exporter      *Exporter
}

// NewCollector creates a collector for a session.
func NewCollector(sessionID string) *Collector {
	now := time.Now()
	return &Collector{
		session: &SessionMetric{
			SessionID: sessionID,
			StartTime: now.UTC().Format(time.RFC3339Nano),
		},
		sessionStart: now,
	}
}

// SetExporter attaches a Prometheus exporter that mirrors tracker
// completions as counters and histograms.
func (c *Collector) SetExporter(e *Exporter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exporter = e
}

// PromptTracker scopes one user-query turn. End must be called on all
// exit paths.
type PromptTracker struct {
	collector *Collector
	metric    *PromptMetric
	prev      *PromptMetric
	start     time.Time
	ended     bool
}

// TrackPrompt opens a prompt-level tracker. userQuery is the
// serialized query text (multimodal queries pass a summary).
func (c *Collector) TrackPrompt(userQuery string) *PromptTracker {
	c.mu.Lock()
	defer c.mu.Unlock()

	metric := &PromptMetric{
		PromptID:  uuid.NewString(),
		UserQuery: userQuery,
		StartTime: time.Now().UTC().Format(time.RFC3339Nano),
	}
	c.session.Prompts = append(c.session.Prompts, metric)
	c.session.TotalPrompts++

	tracker := &PromptTracker{
		collector: c,
		metric:    metric,
		prev:      c.currentPrompt,
		start:     time.Now(),
	}
	c.currentPrompt = metric
	return tracker
}

// IncrementIteration bumps the prompt's iteration count.
func (t *PromptTracker) IncrementIteration() {
	t.collector.mu.Lock()
	defer t.collector.mu.Unlock()
	t.metric.Iterations++
}

// End closes the tracker and restores the previous current prompt.
// Safe to call more than once.
func (t *PromptTracker) End() {
	t.collector.mu.Lock()
	defer t.collector.mu.Unlock()
	if t.ended {
		return
	}
	t.ended = true
	t.metric.EndTime = time.Now().UTC().Format(time.RFC3339Nano)
	t.metric.Duration = time.Since(t.start).Seconds()
	t.collector.currentPrompt = t.prev
}

// APICallTracker scopes one LLM call within the current prompt.
type APICallTracker struct {
	collector *Collector
	metric    *APICallMetric
	start     time.Time
	ended     bool
}

// TrackAPICall opens an API-call tracker under the current prompt.
// Returns nil when no prompt is being tracked.
func (c *Collector) TrackAPICall() *APICallTracker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentPrompt == nil {
		return nil
	}
	metric := &APICallMetric{
		APIID:     uuid.NewString(),
		StartTime: time.Now().UTC().Format(time.RFC3339Nano),
	}
	c.currentPrompt.APICalls = append(c.currentPrompt.APICalls, metric)
	return &APICallTracker{collector: c, metric: metric, start: time.Now()}
}

// SetTokens records the call's token usage.
func (t *APICallTracker) SetTokens(prompt, completion, total, cacheCreation, cacheRead int) {
	if t == nil {
		return
	}
	t.collector.mu.Lock()
	defer t.collector.mu.Unlock()
	t.metric.PromptTokens = prompt
	t.metric.CompletionTokens = completion
	t.metric.TotalTokens = total
	t.metric.CacheCreationTokens = cacheCreation
	t.metric.CacheReadTokens = cacheRead
}

// SetModel records the model that served the call.
func (t *APICallTracker) SetModel(model string) {
	if t == nil {
		return
	}
	t.collector.mu.Lock()
	defer t.collector.mu.Unlock()
	t.metric.Model = model
}

// SetFinishReason records the terminal finish reason.
func (t *APICallTracker) SetFinishReason(reason string) {
	if t == nil {
		return
	}
	t.collector.mu.Lock()
	defer t.collector.mu.Unlock()
	t.metric.FinishReason = reason
}

// SetSuccess marks the call outcome.
func (t *APICallTracker) SetSuccess(success bool) {
	if t == nil {
		return
	}
	t.collector.mu.Lock()
	defer t.collector.mu.Unlock()
	t.metric.Success = success
}

// SetError marks the call failed with an error message.
func (t *APICallTracker) SetError(err string) {
	if t == nil {
		return
	}
	t.collector.mu.Lock()
	defer t.collector.mu.Unlock()
	t.metric.Success = false
	t.metric.Error = err
}

// End closes the tracker. Safe to call more than once.
func (t *APICallTracker) End() {
	if t == nil {
		return
	}
	t.collector.mu.Lock()
	defer t.collector.mu.Unlock()
	if t.ended {
		return
	}
	t.ended = true
	t.metric.EndTime = time.Now().UTC().Format(time.RFC3339Nano)
	t.metric.Duration = time.Since(t.start).Seconds()
	if e := t.collector.exporter; e != nil {
		e.observeAPICall(t.metric)
	}
}

// ToolCallTracker scopes one tool execution within the current prompt.
type ToolCallTracker struct {
	collector *Collector
	metric    *ToolCallMetric
	start     time.Time
	ended     bool
}

// TrackToolCall opens a tool-call tracker under the current prompt.
// Returns nil when no prompt is being tracked.
func (c *Collector) TrackToolCall(toolName, toolCallID string, arguments map[string]any) *ToolCallTracker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentPrompt == nil {
		return nil
	}
	metric := &ToolCallMetric{
		ToolCallID: toolCallID,
		ToolName:   toolName,
		StartTime:  time.Now().UTC().Format(time.RFC3339Nano),
		Arguments:  arguments,
	}
	c.currentPrompt.ToolCalls = append(c.currentPrompt.ToolCalls, metric)
	return &ToolCallTracker{collector: c, metric: metric, start: time.Now()}
}

// SetSuccess marks the tool outcome.
func (t *ToolCallTracker) SetSuccess(success bool) {
	if t == nil {
		return
	}
	t.collector.mu.Lock()
	defer t.collector.mu.Unlock()
	t.metric.Success = success
}

// SetError marks the tool failed with an error message.
func (t *ToolCallTracker) SetError(err string) {
	if t == nil {
		return
	}
	t.collector.mu.Lock()
	defer t.collector.mu.Unlock()
	t.metric.Success = false
	t.metric.Error = err
}

// End closes the tracker. Safe to call more than once.
func (t *ToolCallTracker) End() {
	if t == nil {
		return
	}
	t.collector.mu.Lock()
	defer t.collector.mu.Unlock()
	if t.ended {
		return
	}
	t.ended = true
	t.metric.EndTime = time.Now().UTC().Format(time.RFC3339Nano)
	t.metric.Duration = time.Since(t.start).Seconds()
	if e := t.collector.exporter; e != nil {
		e.observeToolCall(t.metric)
	}
}

// EndSession marks the session as ended.
func (c *Collector) EndSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.EndTime == "" {
		c.session.EndTime = time.Now().UTC().Format(time.RFC3339Nano)
		c.session.Duration = time.Since(c.sessionStart).Seconds()
	}
}

// Raw returns the full metric tree.
func (c *Collector) Raw() *SessionMetric {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}
