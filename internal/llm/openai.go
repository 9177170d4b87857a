package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompatibleClient talks to any chat-completions endpoint using
// the go-openai SDK. It handles streaming reassembly (content deltas
// plus incrementally streamed tool calls) and error classification.
type OpenAICompatibleClient struct {
	client *openai.Client
	opts   Options
}

// NewOpenAICompatible creates a client for an OpenAI-compatible endpoint.
// BaseURL may point at any compatible service; empty means api.openai.com.
func NewOpenAICompatible(opts Options) *OpenAICompatibleClient {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.TimeoutSeconds > 0 {
		cfg.HTTPClient = &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second}
	}

	return &OpenAICompatibleClient{
		client: openai.NewClientWithConfig(cfg),
		opts:   opts,
	}
}

func (c *OpenAICompatibleClient) Model() string {
	return c.opts.Model
}

func (c *OpenAICompatibleClient) Generate(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req, false))
	if err != nil {
		return nil, classifyOpenAIError("openai_compatible", err)
	}
	if len(resp.Choices) == 0 {
		return nil, newProviderError("openai_compatible", ErrAPI, errors.New("response has no choices"))
	}

	choice := resp.Choices[0]
	out := &Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Model:        resp.Model,
		Usage:        convertUsage(resp.Usage),
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out, nil
}

func (c *OpenAICompatibleClient) GenerateStream(ctx context.Context, req Request, onDelta func(string)) (*Response, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(req, true))
	if err != nil {
		return nil, classifyOpenAIError("openai_compatible", err)
	}
	defer stream.Close()

	acc := newStreamAccumulator()
	acc.setModel(c.opts.Model)

	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return acc.response(), nil
			}
			return nil, classifyOpenAIError("openai_compatible", err)
		}

		acc.setModel(chunk.Model)

		// Usage may ride on the finish chunk or on a trailing chunk
		// with no choices.
		if chunk.Usage != nil {
			acc.setUsage(convertUsage(*chunk.Usage))
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			acc.addContent(choice.Delta.Content)
			if onDelta != nil {
				onDelta(choice.Delta.Content)
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			acc.addToolCallDelta(index, tc.ID, string(tc.Type), tc.Function.Name, tc.Function.Arguments)
		}
		acc.setFinishReason(string(choice.FinishReason))
	}
}

func (c *OpenAICompatibleClient) buildRequest(req Request, stream bool) openai.ChatCompletionRequest {
	chatReq := openai.ChatCompletionRequest{
		Model:       c.opts.Model,
		Messages:    convertMessages(req.Messages),
		Temperature: c.opts.Temperature,
		Stream:      stream,
	}
	if c.opts.TopP != nil {
		chatReq.TopP = float32(*c.opts.TopP)
	}
	if c.opts.MaxTokens > 0 {
		chatReq.MaxTokens = c.opts.MaxTokens
	}
	if stream {
		chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
		chatReq.ParallelToolCalls = c.opts.ParallelToolCalls
	}
	return chatReq
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))

	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role: string(msg.Role),
			Name: msg.Name,
		}

		if len(msg.Blocks) > 0 {
			parts := make([]openai.ChatMessagePart, 0, len(msg.Blocks))
			for _, b := range msg.Blocks {
				switch b.Type {
				case "text":
					parts = append(parts, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeText,
						Text: b.Text,
					})
				case "image_url":
					if b.ImageURL != nil {
						parts = append(parts, openai.ChatMessagePart{
							Type:     openai.ChatMessagePartTypeImageURL,
							ImageURL: &openai.ChatMessageImageURL{URL: b.ImageURL.URL},
						})
					}
				}
			}
			oaiMsg.MultiContent = parts
		} else {
			oaiMsg.Content = msg.Content
		}

		switch msg.Role {
		case RoleAssistant:
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
		case RoleTool:
			oaiMsg.ToolCallID = msg.ToolCallID
		}

		result = append(result, oaiMsg)
	}
	return result
}

func convertTools(tools []Tool) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		}
	}
	return result
}

func convertUsage(u openai.Usage) *Usage {
	out := &Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if u.PromptTokensDetails != nil {
		out.CacheReadTokens = u.PromptTokensDetails.CachedTokens
	}
	return out
}
