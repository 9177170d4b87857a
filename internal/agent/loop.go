package agent

import (
	"context"
	"fmt"

	"github.com/haasonsaas/forge/internal/agent/conversation"
	"github.com/haasonsaas/forge/internal/llm"
	"github.com/haasonsaas/forge/internal/metrics"
	"github.com/haasonsaas/forge/internal/observability"
)

// DefaultMaxIterations bounds the LLM/tool cycle per user query.
const DefaultMaxIterations = 10

// maxIterationsSentinel is the final response when the cap is hit
// without a terminal assistant message.
const maxIterationsSentinel = "Maximum iterations reached. The task may not be complete."

// Loop drives one user query through LLM calls and tool executions
// until the model produces a terminal response.
type Loop struct {
	engine        *conversation.Engine
	executor      *Executor
	client        llm.Client
	metrics       *metrics.Collector
	logger        *observability.Logger
	maxIterations int
}

// LoopConfig assembles a Loop.
type LoopConfig struct {
	Engine        *conversation.Engine
	Executor      *Executor
	Client        llm.Client
	Metrics       *metrics.Collector
	Logger        *observability.Logger
	MaxIterations int
}

// NewLoop builds the agent loop.
func NewLoop(cfg LoopConfig) *Loop {
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Loop{
		engine:        cfg.Engine,
		executor:      cfg.Executor,
		client:        cfg.Client,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		maxIterations: maxIterations,
	}
}

// Run consumes one text query and returns the event stream. The
// channel is unbuffered; the loop advances as the caller consumes.
func (l *Loop) Run(ctx context.Context, userQuery string, stream bool) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		l.engine.AddUserMessage(ctx, userQuery)
		l.run(ctx, summarizeQuery(userQuery), stream, events)
	}()
	return events
}

// RunBlocks is Run for a multimodal query.
func (l *Loop) RunBlocks(ctx context.Context, blocks []llm.ContentBlock, stream bool) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		l.engine.AddUserBlocks(ctx, blocks)
		l.run(ctx, summarizeBlocks(blocks), stream, events)
	}()
	return events
}

func (l *Loop) run(ctx context.Context, querySummary string, stream bool, events chan<- Event) {
	sessionID := l.engine.SessionID()
	if l.logger != nil {
		l.logger.Info(ctx, "starting user query",
			"session_id", sessionID,
			"prompt_id", l.engine.PromptID(),
			"query_summary", querySummary)
	}

	var promptTracker *metrics.PromptTracker
	if l.metrics != nil {
		promptTracker = l.metrics.TrackPrompt(querySummary)
		defer promptTracker.End()
	}

	emit := func(event Event) bool {
		select {
		case events <- event:
			return true
		case <-ctx.Done():
			return false
		}
	}

	iteration := 0
	finalResponse := ""
	for iteration < l.maxIterations {
		iteration++
		if l.logger != nil {
			l.logger.Info(ctx, "agent iteration",
				"iteration", iteration,
				"max_iterations", l.maxIterations,
				"session_id", sessionID)
		}
		if promptTracker != nil {
			promptTracker.IncrementIteration()
		}

		req := llm.Request{
			Messages: l.engine.MessagesForLLM(),
			Tools:    l.engine.ToolsForLLM(),
		}
		if !emit(Event{Kind: EventLLMStart, Iteration: iteration, SessionID: sessionID}) {
			return
		}

		response, err := l.callLLM(ctx, req, stream, emit)
		if err != nil {
			lerr := &LoopError{Phase: PhaseLLMCall, Iteration: iteration, Cause: err}
			if l.logger != nil {
				l.logger.Error(ctx, "error in agent loop iteration",
					"iteration", iteration,
					"error", lerr.Error(),
					"session_id", sessionID)
			}
			emit(Event{Kind: EventError, Err: lerr.Error(), Iteration: iteration})
			break
		}
		if !emit(Event{
			Kind:      EventLLMDone,
			Iteration: iteration,
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
			SessionID: sessionID,
		}) {
			return
		}

		l.engine.AddAssistantMessage(ctx, response, iteration)
		l.engine.WriteSnapshot(ctx)

		if !response.HasToolCalls() {
			finalResponse = response.Content
			break
		}

		for _, tc := range response.ToolCalls {
			l.executor.ExecuteToolCall(ctx, tc, func(event Event) { emit(event) })
		}
	}

	if iteration >= l.maxIterations && finalResponse == "" {
		finalResponse = maxIterationsSentinel
		if l.logger != nil {
			l.logger.Warn(ctx, "agent loop reached maximum iterations",
				"iterations", iteration,
				"session_id", sessionID)
		}
	}

	l.engine.WriteSnapshot(ctx)
	emit(Event{
		Kind:       EventAgentDone,
		Content:    finalResponse,
		Iterations: iteration,
		SessionID:  sessionID,
	})
}

// callLLM issues one generation request, tracking the call and
// forwarding streamed content deltas as llm_chunk events.
func (l *Loop) callLLM(ctx context.Context, req llm.Request, stream bool, emit func(Event) bool) (*llm.Response, error) {
	var tracker *metrics.APICallTracker
	if l.metrics != nil {
		tracker = l.metrics.TrackAPICall()
		defer tracker.End()
	}

	var response *llm.Response
	var err error
	if stream {
		response, err = l.client.GenerateStream(ctx, req, func(delta string) {
			emit(Event{Kind: EventLLMChunk, Delta: delta})
		})
	} else {
		response, err = l.client.Generate(ctx, req)
	}
	if err != nil {
		tracker.SetError(err.Error())
		return nil, err
	}

	if response.Usage != nil {
		tracker.SetTokens(
			response.Usage.PromptTokens,
			response.Usage.CompletionTokens,
			response.Usage.TotalTokens,
			response.Usage.CacheCreationTokens,
			response.Usage.CacheReadTokens,
		)
	}
	if response.Model != "" {
		tracker.SetModel(response.Model)
	}
	if response.FinishReason != "" {
		tracker.SetFinishReason(response.FinishReason)
	}
	tracker.SetSuccess(true)
	return response, nil
}

// summarizeQuery shortens a query for logging and metrics.
func summarizeQuery(query string) string {
	if len(query) > 100 {
		return query[:100]
	}
	return query
}

// summarizeBlocks summarizes a multimodal query as a text preview
// plus the image count.
func summarizeBlocks(blocks []llm.ContentBlock) string {
	textPreview := ""
	imageCount := 0
	for _, block := range blocks {
		switch block.Type {
		case "text":
			if textPreview == "" && block.Text != "" {
				textPreview = block.Text
				if len(textPreview) > 50 {
					textPreview = textPreview[:50]
				}
			}
		case "image_url":
			imageCount++
		}
	}
	return fmt.Sprintf("%s... [%d image(s)]", textPreview, imageCount)
}
