// Package llm defines the provider-neutral chat types and the Client
// interface implemented by the OpenAI-compatible and Anthropic adapters.
package llm

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentBlock is one element of a multimodal message body.
// Type is "text" or "image_url".
type ContentBlock struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image by URL or data URI.
type ImageURL struct {
	URL string `json:"url"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// ImageBlock builds an image content block.
func ImageBlock(url string) ContentBlock {
	return ContentBlock{Type: "image_url", ImageURL: &ImageURL{URL: url}}
}

// ToolCall is a model-issued request to invoke a named tool.
// Arguments are kept as raw JSON text, possibly invalid, so the
// sanitizer can repair malformed model output.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry of the conversation ledger.
//
// Content holds plain text; Blocks holds multimodal content and, when
// non-empty, takes precedence over Content. On the wire the body
// serializes as either a JSON string or an array of content blocks,
// matching the chat-completions format.
type Message struct {
	Role       Role
	Content    string
	Blocks     []ContentBlock
	Name       string
	ToolCalls  []ToolCall
	ToolCallID string
}

// Text returns the textual content of the message. For block content
// the text blocks are concatenated.
func (m *Message) Text() string {
	if len(m.Blocks) == 0 {
		return m.Content
	}
	var out string
	for _, b := range m.Blocks {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

type messageJSON struct {
	Role       Role            `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// MarshalJSON renders Content as a plain string, or as a block array
// when multimodal blocks are present.
func (m Message) MarshalJSON() ([]byte, error) {
	raw := messageJSON{
		Role:       m.Role,
		Name:       m.Name,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
	}

	var content any
	if len(m.Blocks) > 0 {
		content = m.Blocks
	} else {
		content = m.Content
	}
	encoded, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	raw.Content = encoded

	return json.Marshal(raw)
}

// UnmarshalJSON accepts a string or block-array content body.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.Role = raw.Role
	m.Name = raw.Name
	m.ToolCalls = raw.ToolCalls
	m.ToolCallID = raw.ToolCallID
	m.Content = ""
	m.Blocks = nil

	if len(raw.Content) == 0 || string(raw.Content) == "null" {
		return nil
	}

	switch raw.Content[0] {
	case '"':
		return json.Unmarshal(raw.Content, &m.Content)
	case '[':
		return json.Unmarshal(raw.Content, &m.Blocks)
	default:
		return fmt.Errorf("llm: unsupported message content: %s", raw.Content)
	}
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a plain-text user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// UserBlocksMessage builds a multimodal user message.
func UserBlocksMessage(blocks []ContentBlock) Message {
	return Message{Role: RoleUser, Blocks: blocks}
}

// AssistantMessage builds an assistant message with optional tool calls.
func AssistantMessage(content string, toolCalls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// ToolMessage builds a tool-result message bound to a tool call id.
func ToolMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}
