package llm

import (
	"sort"
	"strings"
)

// streamAccumulator reassembles a streamed completion. Content deltas
// append in arrival order; tool-call deltas bucket by their per-call
// index with string-field concatenation, since the wire may interleave
// fragments of several calls.
type streamAccumulator struct {
	content strings.Builder
	calls   map[int]*ToolCall
	finish  string
	usage   *Usage
	model   string
}

func newStreamAccumulator() *streamAccumulator {
	return &streamAccumulator{calls: make(map[int]*ToolCall)}
}

func (a *streamAccumulator) addContent(delta string) {
	a.content.WriteString(delta)
}

// addToolCallDelta merges one tool-call fragment into its bucket.
func (a *streamAccumulator) addToolCallDelta(index int, id, callType, name, arguments string) {
	tc, ok := a.calls[index]
	if !ok {
		tc = &ToolCall{}
		a.calls[index] = tc
	}
	tc.ID += id
	tc.Type += callType
	tc.Function.Name += name
	tc.Function.Arguments += arguments
}

func (a *streamAccumulator) setFinishReason(reason string) {
	if reason != "" {
		a.finish = reason
	}
}

func (a *streamAccumulator) setModel(model string) {
	if model != "" {
		a.model = model
	}
}

// setUsage records token usage, ignoring spurious all-zero chunks.
func (a *streamAccumulator) setUsage(u *Usage) {
	if u.zero() {
		return
	}
	a.usage = u
}

// response builds the synthetic final Response, with tool calls in
// index order.
func (a *streamAccumulator) response() *Response {
	indexes := make([]int, 0, len(a.calls))
	for i := range a.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	var calls []ToolCall
	for _, i := range indexes {
		calls = append(calls, *a.calls[i])
	}

	return &Response{
		Content:      a.content.String(),
		ToolCalls:    calls,
		FinishReason: a.finish,
		Usage:        a.usage,
		Model:        a.model,
	}
}
