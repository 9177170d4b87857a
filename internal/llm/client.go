package llm

import (
	"context"
	"encoding/json"
)

// Tool is a tool definition in the chat-completions export format:
// {"type":"function","function":{"name":...,"description":...,"parameters":{...}}}.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction carries the function name, description and JSON Schema
// for its parameters.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Usage reports token consumption for one API call.
type Usage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	TotalTokens         int `json:"total_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens,omitempty"`
	CacheReadTokens     int `json:"cache_read_tokens,omitempty"`
}

// zero reports whether the usage carries no token counts. Some
// providers emit spurious all-zero usage chunks mid-stream.
func (u *Usage) zero() bool {
	return u == nil || (u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0)
}

// Response is a completed model turn.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        *Usage
	Model        string
}

// HasToolCalls reports whether the model requested tool execution.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// Request is one generation request: the full message snapshot plus
// the exported tool schemas. Sampling parameters live on the client.
type Request struct {
	Messages []Message
	Tools    []Tool
}

// Client is the LLM adapter contract. GenerateStream reassembles the
// streamed deltas into a final Response, invoking onDelta for every
// content fragment in arrival order.
type Client interface {
	Model() string
	Generate(ctx context.Context, req Request) (*Response, error)
	GenerateStream(ctx context.Context, req Request, onDelta func(string)) (*Response, error)
}

// Options are the sampling and transport parameters shared by the
// provider implementations.
type Options struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	// TopP is nucleus sampling; nil leaves the provider default.
	TopP *float64
	// TopK limits sampling to the K most likely tokens. Anthropic only.
	TopK int
	// EnableThinking turns on extended thinking. Anthropic only.
	EnableThinking    bool
	MaxTokens         int
	TimeoutSeconds    int
	ParallelToolCalls bool
}
