// Package agent runs the core loop: user query in, a stream of events
// out, with LLM calls and tool executions in between.
package agent

import "github.com/haasonsaas/forge/internal/llm"

// EventKind discriminates the events emitted while a query runs.
type EventKind string

const (
	EventLLMStart                 EventKind = "llm_start"
	EventLLMChunk                 EventKind = "llm_chunk"
	EventLLMDone                  EventKind = "llm_done"
	EventToolConfirmationRequired EventKind = "tool_confirmation_required"
	EventToolStart                EventKind = "tool_start"
	EventToolDone                 EventKind = "tool_done"
	EventAgentDone                EventKind = "agent_done"
	EventError                    EventKind = "error"
)

// Event is one step of the agent's progress. Fields are populated per
// kind; consumers switch on Kind.
type Event struct {
	Kind EventKind `json:"kind"`

	// llm_start, llm_done
	Iteration int `json:"iteration,omitempty"`

	// llm_chunk
	Delta string `json:"delta,omitempty"`

	// llm_done, agent_done
	Content   string         `json:"content,omitempty"`
	ToolCalls []llm.ToolCall `json:"tool_calls,omitempty"`

	// tool events
	ToolName  string         `json:"tool_name,omitempty"`
	ToolID    string         `json:"tool_id,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Confirmed bool           `json:"confirmed,omitempty"`
	Result    string         `json:"result,omitempty"`
	Display   string         `json:"display,omitempty"`

	// agent_done
	Iterations int    `json:"iterations,omitempty"`
	SessionID  string `json:"session_id,omitempty"`

	// error
	Err string `json:"error,omitempty"`
}
