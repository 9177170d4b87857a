// Package tools defines the Tool contract, the registry that exposes
// tool schemas to the LLM, and shared result helpers.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/forge/internal/llm"
)

// Parameter describes one tool input in the exported JSON schema.
type Parameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Enum        []string
	// Items is the element type for array parameters.
	Items string
}

// Definition is the static description of a tool.
type Definition struct {
	Name                 string
	Description          string
	Parameters           []Parameter
	RequiresConfirmation bool
}

// Result is what a tool returns: Content is the full text surfaced to
// the model; Display is a short human-facing summary and defaults to
// Content when empty.
type Result struct {
	Content string
	Display string
}

// Tool is a callable capability exposed to the model. Execute receives
// already-parsed JSON arguments; transport-level argument errors are
// handled upstream by the executor.
type Tool interface {
	Definition() Definition
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// ConfirmationPolicy lets a tool decide per invocation whether user
// confirmation is needed, overriding Definition().RequiresConfirmation.
// The bash tool uses this for its allow-pattern auto-approval.
type ConfirmationPolicy interface {
	RequiresConfirmation(args map[string]any) bool
}

// ErrorResult builds a failed Result using the error conventions the
// executor's success heuristic inspects: an "Error:" content prefix
// and a "❌" display marker.
func ErrorResult(content, display string) *Result {
	return &Result{
		Content: "Error: " + content,
		Display: "❌ " + display,
	}
}

// Errorf is ErrorResult with one formatted string for both fields.
func Errorf(format string, args ...any) *Result {
	msg := fmt.Sprintf(format, args...)
	return ErrorResult(msg, msg)
}

type schemaProperty struct {
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Enum        []string        `json:"enum,omitempty"`
	Items       *schemaProperty `json:"items,omitempty"`
}

type parameterSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]schemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// ParametersJSON renders the parameter list as a JSON Schema object.
func (d Definition) ParametersJSON() json.RawMessage {
	schema := parameterSchema{
		Type:       "object",
		Properties: make(map[string]schemaProperty, len(d.Parameters)),
	}
	for _, p := range d.Parameters {
		prop := schemaProperty{
			Type:        p.Type,
			Description: p.Description,
			Enum:        p.Enum,
		}
		if p.Type == "array" && p.Items != "" {
			prop.Items = &schemaProperty{Type: p.Items}
		}
		schema.Properties[p.Name] = prop
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}

	encoded, err := json.Marshal(schema)
	if err != nil {
		// The schema is built from plain structs; this cannot fail.
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return encoded
}

// LLMTool exports the definition in the chat-completions tool format.
func (d Definition) LLMTool() llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.ParametersJSON(),
		},
	}
}

// String helpers shared by tools.

// StringArg extracts a string argument, reporting whether it was set.
func StringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// IntArg extracts an integer argument. JSON numbers decode as float64.
func IntArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// BoolArg extracts a boolean argument.
func BoolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// StringSliceArg extracts a list-of-strings argument.
func StringSliceArg(args map[string]any, key string) ([]string, bool) {
	v, ok := args[key]
	if !ok {
		return nil, false
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
