package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIBuildRequest_SamplingOptions(t *testing.T) {
	topP := 0.9
	c := NewOpenAICompatible(Options{Model: "gpt-test", TopP: &topP, MaxTokens: 256})
	req := c.buildRequest(Request{Messages: []Message{UserMessage("hi")}}, false)

	assert.InDelta(t, 0.9, float64(req.TopP), 1e-6)
	assert.Equal(t, 256, req.MaxTokens)

	// unset top_p stays at the provider default
	c = NewOpenAICompatible(Options{Model: "gpt-test"})
	req = c.buildRequest(Request{Messages: []Message{UserMessage("hi")}}, false)
	assert.Zero(t, req.TopP)
}

func TestAnthropicBuildParams_SamplingOptions(t *testing.T) {
	topP := 0.5
	c := NewAnthropic(Options{Model: "claude-test", Temperature: 0.7, TopP: &topP, TopK: 40})
	params := c.buildParams(Request{Messages: []Message{UserMessage("hi")}})

	assert.InDelta(t, 0.7, params.Temperature.Value, 1e-6)
	assert.InDelta(t, 0.5, params.TopP.Value, 1e-6)
	assert.EqualValues(t, 40, params.TopK.Value)
	assert.Nil(t, params.Thinking.OfEnabled)
}

func TestAnthropicBuildParams_ThinkingSupersedesTemperature(t *testing.T) {
	c := NewAnthropic(Options{Model: "claude-test", Temperature: 0.7, EnableThinking: true})
	params := c.buildParams(Request{Messages: []Message{UserMessage("hi")}})

	require.NotNil(t, params.Thinking.OfEnabled)
	assert.EqualValues(t, defaultThinkingBudget, params.Thinking.OfEnabled.BudgetTokens)
	assert.False(t, params.Temperature.Valid())
}
