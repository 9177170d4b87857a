// Package metrics collects hierarchical session metrics: a session
// owns prompts; each prompt owns API-call and tool-call records. At
// session end the collector rolls everything up into a summary with a
// token cost estimate.
package metrics

// ToolCallMetric records one tool execution.
type ToolCallMetric struct {
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	StartTime  string         `json:"start_time"`
	EndTime    string         `json:"end_time,omitempty"`
	Duration   float64        `json:"duration,omitempty"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Arguments  map[string]any `json:"arguments,omitempty"`
}

// APICallMetric records one LLM API call.
type APICallMetric struct {
	APIID               string  `json:"api_id"`
	StartTime           string  `json:"start_time"`
	EndTime             string  `json:"end_time,omitempty"`
	Duration            float64 `json:"duration,omitempty"`
	Success             bool    `json:"success"`
	Error               string  `json:"error,omitempty"`
	Model               string  `json:"model,omitempty"`
	FinishReason        string  `json:"finish_reason,omitempty"`
	PromptTokens        int     `json:"prompt_tokens"`
	CompletionTokens    int     `json:"completion_tokens"`
	TotalTokens         int     `json:"total_tokens"`
	CacheCreationTokens int     `json:"cache_creation_tokens"`
	CacheReadTokens     int     `json:"cache_read_tokens"`
}

// PromptMetric records one user-query turn.
type PromptMetric struct {
	PromptID   string            `json:"prompt_id"`
	UserQuery  string            `json:"user_query"`
	StartTime  string            `json:"start_time"`
	EndTime    string            `json:"end_time,omitempty"`
	Duration   float64           `json:"duration,omitempty"`
	Iterations int               `json:"iterations"`
	APICalls   []*APICallMetric  `json:"api_calls"`
	ToolCalls  []*ToolCallMetric `json:"tool_calls"`
}

// SessionMetric is the root of the hierarchy.
type SessionMetric struct {
	SessionID    string          `json:"session_id"`
	StartTime    string          `json:"start_time"`
	EndTime      string          `json:"end_time,omitempty"`
	Duration     float64         `json:"duration,omitempty"`
	TotalPrompts int             `json:"total_prompts"`
	Prompts      []*PromptMetric `json:"prompts"`
}
