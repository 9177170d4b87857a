package metrics

import (
	"encoding/json"
	"math"
	"time"
)

// SessionSummary is the session block of the rollup.
type SessionSummary struct {
	SessionID    string  `json:"session_id"`
	StartTime    string  `json:"start_time"`
	EndTime      string  `json:"end_time"`
	Duration     float64 `json:"duration"`
	TotalPrompts int     `json:"total_prompts"`
}

// PromptsSummary aggregates prompt-level metrics.
type PromptsSummary struct {
	Total           int     `json:"total"`
	TotalIterations int     `json:"total_iterations"`
	AvgDuration     float64 `json:"avg_duration"`
}

// TokenTotals sums token usage across the session.
type TokenTotals struct {
	Prompt        int `json:"prompt"`
	Completion    int `json:"completion"`
	Total         int `json:"total"`
	CacheRead     int `json:"cache_read"`
	CacheCreation int `json:"cache_creation"`
}

// APICallsSummary aggregates API-call metrics with the cost estimate.
type APICallsSummary struct {
	Total       int         `json:"total"`
	Success     int         `json:"success"`
	Failed      int         `json:"failed"`
	SuccessRate float64     `json:"success_rate"`
	AvgDuration float64     `json:"avg_duration"`
	Model       string      `json:"model,omitempty"`
	Tokens      TokenTotals `json:"tokens"`
	Cost        CostInfo    `json:"cost"`
}

// ToolBreakdown is the per-tool count split.
type ToolBreakdown struct {
	Count   int `json:"count"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// ToolCallsSummary aggregates tool-call metrics.
type ToolCallsSummary struct {
	Total           int                      `json:"total"`
	Success         int                      `json:"success"`
	Failed          int                      `json:"failed"`
	SuccessRate     float64                  `json:"success_rate"`
	AvgDuration     float64                  `json:"avg_duration"`
	BreakdownByTool map[string]ToolBreakdown `json:"breakdown_by_tool"`
}

// PromptDetail is one entry of the detailed prompt list.
type PromptDetail struct {
	PromptID       string  `json:"prompt_id"`
	UserQuery      string  `json:"user_query"`
	Duration       float64 `json:"duration"`
	Iterations     int     `json:"iterations"`
	APICallsCount  int     `json:"api_calls_count"`
	ToolCallsCount int     `json:"tool_calls_count"`
}

// Summary is the full end-of-session rollup.
type Summary struct {
	Session         SessionSummary   `json:"session"`
	Prompts         PromptsSummary   `json:"prompts"`
	APICalls        APICallsSummary  `json:"api_calls"`
	ToolCalls       ToolCallsSummary `json:"tool_calls"`
	DetailedPrompts []PromptDetail   `json:"detailed_prompts"`
}

// GenerateSummary rolls the metric tree up into a Summary. Marks the
// session ended if it is still open.
func (c *Collector) GenerateSummary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.EndTime == "" {
		c.session.EndTime = time.Now().UTC().Format(time.RFC3339Nano)
		c.session.Duration = time.Since(c.sessionStart).Seconds()
	}

	var apiCalls []*APICallMetric
	var toolCalls []*ToolCallMetric
	for _, p := range c.session.Prompts {
		apiCalls = append(apiCalls, p.APICalls...)
		toolCalls = append(toolCalls, p.ToolCalls...)
	}

	summary := Summary{
		Session: SessionSummary{
			SessionID:    c.session.SessionID,
			StartTime:    c.session.StartTime,
			EndTime:      c.session.EndTime,
			Duration:     c.session.Duration,
			TotalPrompts: c.session.TotalPrompts,
		},
	}

	var totalIterations int
	var promptDurations []float64
	for _, p := range c.session.Prompts {
		totalIterations += p.Iterations
		if p.Duration > 0 {
			promptDurations = append(promptDurations, p.Duration)
		}
		summary.DetailedPrompts = append(summary.DetailedPrompts, PromptDetail{
			PromptID:       p.PromptID,
			UserQuery:      p.UserQuery,
			Duration:       p.Duration,
			Iterations:     p.Iterations,
			APICallsCount:  len(p.APICalls),
			ToolCallsCount: len(p.ToolCalls),
		})
	}
	summary.Prompts = PromptsSummary{
		Total:           c.session.TotalPrompts,
		TotalIterations: totalIterations,
		AvgDuration:     mean(promptDurations),
	}

	var tokens TokenTotals
	var apiSuccess int
	var apiDurations []float64
	var model string
	for _, api := range apiCalls {
		if api.Success {
			apiSuccess++
		}
		if api.Duration > 0 {
			apiDurations = append(apiDurations, api.Duration)
		}
		tokens.Prompt += api.PromptTokens
		tokens.Completion += api.CompletionTokens
		tokens.Total += api.TotalTokens
		tokens.CacheRead += api.CacheReadTokens
		tokens.CacheCreation += api.CacheCreationTokens
		if model == "" && api.Model != "" {
			model = api.Model
		}
	}
	summary.APICalls = APICallsSummary{
		Total:       len(apiCalls),
		Success:     apiSuccess,
		Failed:      len(apiCalls) - apiSuccess,
		SuccessRate: rate(apiSuccess, len(apiCalls)),
		AvgDuration: round3(mean(apiDurations)),
		Model:       model,
		Tokens:      tokens,
		Cost:        CalculateCost(tokens.Prompt, tokens.Completion, tokens.CacheCreation, tokens.CacheRead, model, "5m"),
	}

	var toolSuccess int
	var toolDurations []float64
	breakdown := make(map[string]ToolBreakdown)
	for _, tool := range toolCalls {
		if tool.Success {
			toolSuccess++
		}
		if tool.Duration > 0 {
			toolDurations = append(toolDurations, tool.Duration)
		}
		entry := breakdown[tool.ToolName]
		entry.Count++
		if tool.Success {
			entry.Success++
		} else {
			entry.Failed++
		}
		breakdown[tool.ToolName] = entry
	}
	summary.ToolCalls = ToolCallsSummary{
		Total:           len(toolCalls),
		Success:         toolSuccess,
		Failed:          len(toolCalls) - toolSuccess,
		SuccessRate:     rate(toolSuccess, len(toolCalls)),
		AvgDuration:     round3(mean(toolDurations)),
		BreakdownByTool: breakdown,
	}

	return summary
}

// AsMap converts the summary to a generic map for trajectory writing,
// where callers enrich it with additional keys before serialization.
func (s Summary) AsMap() map[string]any {
	data, err := json.Marshal(s)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func rate(success, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(success) / float64(total) * 100)
}

func round3(f float64) float64 { return math.Round(f*1e3) / 1e3 }
