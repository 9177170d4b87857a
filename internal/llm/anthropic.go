package llm

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// defaultAnthropicMaxTokens is used when the caller does not set a
// completion budget; the Messages API requires one.
const defaultAnthropicMaxTokens = 8192

// defaultThinkingBudget is the extended-thinking token budget; the API
// minimum is 1024.
const defaultThinkingBudget = 10000

// AnthropicClient talks to the Anthropic Messages API with prompt
// caching enabled for agent loops.
//
// Caching strategy: when the conversation ends with a tool result,
// the last tool-result block is marked with an ephemeral cache_control
// so the provider keeps the accumulated context warm. Conversations
// ending with a fresh user query are sent unmarked.
type AnthropicClient struct {
	client anthropic.Client
	opts   Options
}

// NewAnthropic creates a client for the Anthropic Messages API.
func NewAnthropic(opts Options) *AnthropicClient {
	options := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		options = append(options, option.WithBaseURL(opts.BaseURL))
	}
	return &AnthropicClient{
		client: anthropic.NewClient(options...),
		opts:   opts,
	}
}

func (c *AnthropicClient) Model() string {
	return c.opts.Model
}

func (c *AnthropicClient) Generate(ctx context.Context, req Request) (*Response, error) {
	msg, err := c.client.Messages.New(ctx, c.buildParams(req))
	if err != nil {
		return nil, classifyAnthropicError("anthropic", err)
	}
	return c.convertMessage(msg), nil
}

func (c *AnthropicClient) GenerateStream(ctx context.Context, req Request, onDelta func(string)) (*Response, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.buildParams(req))

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, classifyAnthropicError("anthropic", err)
		}

		if event.Type == "content_block_delta" {
			delta := event.AsContentBlockDelta().Delta
			if delta.Type == "text_delta" && delta.Text != "" && onDelta != nil {
				onDelta(delta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, classifyAnthropicError("anthropic", err)
	}

	return c.convertMessage(&message), nil
}

func (c *AnthropicClient) buildParams(req Request) anthropic.MessageNewParams {
	maxTokens := c.opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.opts.Model),
		MaxTokens: int64(maxTokens),
		Messages:  convertAnthropicMessages(req.Messages),
	}
	if system := systemText(req.Messages); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	// Extended thinking requires the default temperature.
	if c.opts.EnableThinking {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(defaultThinkingBudget)
	} else if c.opts.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(c.opts.Temperature))
	}
	if c.opts.TopP != nil {
		params.TopP = anthropic.Float(*c.opts.TopP)
	}
	if c.opts.TopK > 0 {
		params.TopK = anthropic.Int(int64(c.opts.TopK))
	}
	if len(req.Tools) > 0 {
		params.Tools = convertAnthropicTools(req.Tools)
	}
	return params
}

func (c *AnthropicClient) convertMessage(msg *anthropic.Message) *Response {
	out := &Response{
		Model:        string(msg.Model),
		FinishReason: finishReasonFromStop(msg.StopReason),
		Usage: &Usage{
			PromptTokens:        int(msg.Usage.InputTokens),
			CompletionTokens:    int(msg.Usage.OutputTokens),
			TotalTokens:         int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
			CacheCreationTokens: int(msg.Usage.CacheCreationInputTokens),
			CacheReadTokens:     int(msg.Usage.CacheReadInputTokens),
		},
	}

	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content += variant.Text
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:   variant.ID,
				Type: "function",
				Function: FunctionCall{
					Name:      variant.Name,
					Arguments: string(variant.Input),
				},
			})
		}
	}
	return out
}

// systemText extracts the leading system prompt; the Messages API
// takes it as a separate parameter.
func systemText(messages []Message) string {
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			return msg.Text()
		}
	}
	return ""
}

// convertAnthropicMessages translates the ledger into Messages API
// turns. Tool results ride in user-role messages; consecutive tool
// results coalesce into one turn so roles keep alternating. The last
// tool-result block gets the ephemeral cache marker when the ledger
// ends on a tool message.
func convertAnthropicMessages(messages []Message) []anthropic.MessageParam {
	var result []anthropic.MessageParam
	endsWithTool := len(messages) > 0 && messages[len(messages)-1].Role == RoleTool

	var pendingToolResults []anthropic.ContentBlockParamUnion
	flushToolResults := func() {
		if len(pendingToolResults) > 0 {
			result = append(result, anthropic.NewUserMessage(pendingToolResults...))
			pendingToolResults = nil
		}
	}

	for _, msg := range messages {
		if msg.Role != RoleTool {
			flushToolResults()
		}

		switch msg.Role {
		case RoleSystem:
			// Handled via the top-level system parameter.

		case RoleUser:
			var blocks []anthropic.ContentBlockParamUnion
			if len(msg.Blocks) > 0 {
				for _, b := range msg.Blocks {
					switch b.Type {
					case "text":
						blocks = append(blocks, anthropic.NewTextBlock(b.Text))
					case "image_url":
						if b.ImageURL != nil {
							blocks = append(blocks, anthropic.ContentBlockParamUnion{
								OfImage: &anthropic.ImageBlockParam{
									Source: anthropic.ImageBlockParamSourceUnion{
										OfURL: &anthropic.URLImageSourceParam{URL: b.ImageURL.URL},
									},
								},
							})
						}
					}
				}
			} else {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			result = append(result, anthropic.NewUserMessage(blocks...))

		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(
					tc.ID,
					json.RawMessage(tc.Function.Arguments),
					tc.Function.Name,
				))
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.NewAssistantMessage(blocks...))
			}

		case RoleTool:
			pendingToolResults = append(pendingToolResults,
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		}
	}
	flushToolResults()

	if endsWithTool && len(result) > 0 {
		markLastToolResult(result)
	}
	return result
}

// markLastToolResult sets the ephemeral cache_control marker on the
// final tool-result block of the final message.
func markLastToolResult(messages []anthropic.MessageParam) {
	last := &messages[len(messages)-1]
	for i := len(last.Content) - 1; i >= 0; i-- {
		if tr := last.Content[i].OfToolResult; tr != nil {
			tr.CacheControl = anthropic.NewCacheControlEphemeralParam()
			return
		}
	}
}

func convertAnthropicTools(tools []Tool) []anthropic.ToolUnionParam {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(tool.Function.Parameters) > 0 {
			// Malformed schemas degrade to an empty object schema so
			// one bad tool cannot break the request.
			_ = json.Unmarshal(tool.Function.Parameters, &schema)
		}

		param := anthropic.ToolUnionParamOfTool(schema, tool.Function.Name)
		if tool.Function.Description != "" {
			param.OfTool.Description = anthropic.String(tool.Function.Description)
		}
		result = append(result, param)
	}
	return result
}

func finishReasonFromStop(reason anthropic.StopReason) string {
	switch reason {
	case anthropic.StopReasonToolUse:
		return "tool_calls"
	case anthropic.StopReasonMaxTokens:
		return "length"
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return "stop"
	default:
		return string(reason)
	}
}
