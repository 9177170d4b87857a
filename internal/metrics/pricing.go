package metrics

import (
	"math"
	"strings"
)

// Pricing is USD per 1M tokens for one model.
type Pricing struct {
	Input        float64
	Output       float64
	CacheWrite5m float64
	CacheWrite1h float64
	CacheRead    float64
}

// modelAliases maps provider/proxy naming schemes onto canonical
// pricing-table names.
var modelAliases = map[string]string{
	"claude_sonnet4":   "claude-sonnet-4",
	"claude_opus4":     "claude-opus-4",
	"claude_haiku4":    "claude-haiku-4",
	"claude_sonnet4_5": "claude-sonnet-4.5",
	"claude-haiku-4_5": "claude-haiku-4.5",
}

// anthropicPricing is the published per-model rate card.
var anthropicPricing = map[string]Pricing{
	"claude-opus-4.5":   {Input: 5.00, Output: 25.00, CacheWrite5m: 6.25, CacheWrite1h: 10.00, CacheRead: 0.50},
	"claude-opus-4.1":   {Input: 15.00, Output: 75.00, CacheWrite5m: 18.75, CacheWrite1h: 30.00, CacheRead: 1.50},
	"claude-opus-4":     {Input: 15.00, Output: 75.00, CacheWrite5m: 18.75, CacheWrite1h: 30.00, CacheRead: 1.50},
	"claude-sonnet-4.5": {Input: 3.00, Output: 15.00, CacheWrite5m: 3.75, CacheWrite1h: 6.00, CacheRead: 0.30},
	"claude-sonnet-4":   {Input: 3.00, Output: 15.00, CacheWrite5m: 3.75, CacheWrite1h: 6.00, CacheRead: 0.30},
	"claude-haiku-4.5":  {Input: 1.00, Output: 5.00, CacheWrite5m: 1.25, CacheWrite1h: 2.00, CacheRead: 0.10},
}

// CostBreakdown itemizes the with-cache cost.
type CostBreakdown struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheWrite float64 `json:"cache_write"`
	CacheRead  float64 `json:"cache_read"`
}

// CostInfo is the cost rollup for a token total. For unknown models
// ModelFound is false and the cost fields are null.
type CostInfo struct {
	WithCache      *float64       `json:"with_cache"`
	WithoutCache   *float64       `json:"without_cache"`
	Savings        *float64       `json:"savings"`
	SavingsPercent *float64       `json:"savings_percent,omitempty"`
	Breakdown      *CostBreakdown `json:"breakdown,omitempty"`
	ModelFound     bool           `json:"model_found"`
	Currency       string         `json:"currency,omitempty"`
}

// lookupPricing resolves a model name: alias table first, then exact
// match on the normalized name, then substring match either way.
func lookupPricing(modelName string) (Pricing, bool) {
	if modelName == "" {
		return Pricing{}, false
	}
	if canonical, ok := modelAliases[modelName]; ok {
		if pricing, ok := anthropicPricing[canonical]; ok {
			return pricing, true
		}
	}
	normalized := strings.ReplaceAll(strings.ToLower(modelName), "_", "-")
	if pricing, ok := anthropicPricing[normalized]; ok {
		return pricing, true
	}
	for key, pricing := range anthropicPricing {
		if strings.Contains(normalized, key) || strings.Contains(key, normalized) {
			return pricing, true
		}
	}
	return Pricing{}, false
}

// CalculateCost computes the with-cache and without-cache cost of a
// token total, plus the cache savings. cacheTTL selects the cache
// write rate ("5m" or "1h").
func CalculateCost(promptTokens, completionTokens, cacheCreationTokens, cacheReadTokens int, modelName, cacheTTL string) CostInfo {
	pricing, found := lookupPricing(modelName)
	if !found {
		return CostInfo{ModelFound: false}
	}

	cacheWriteRate := pricing.CacheWrite5m
	if cacheTTL == "1h" {
		cacheWriteRate = pricing.CacheWrite1h
	}

	perMillion := func(tokens int, rate float64) float64 {
		return float64(tokens) / 1_000_000 * rate
	}

	inputCost := perMillion(promptTokens, pricing.Input)
	outputCost := perMillion(completionTokens, pricing.Output)
	cacheWriteCost := perMillion(cacheCreationTokens, cacheWriteRate)
	cacheReadCost := perMillion(cacheReadTokens, pricing.CacheRead)

	withCache := inputCost + outputCost + cacheWriteCost + cacheReadCost
	withoutCache := perMillion(promptTokens+cacheCreationTokens+cacheReadTokens, pricing.Input) + outputCost
	savings := withoutCache - withCache
	savingsPercent := 0.0
	if withoutCache > 0 {
		savingsPercent = savings / withoutCache * 100
	}

	return CostInfo{
		WithCache:      ptr(round6(withCache)),
		WithoutCache:   ptr(round6(withoutCache)),
		Savings:        ptr(round6(savings)),
		SavingsPercent: ptr(round2(savingsPercent)),
		Breakdown: &CostBreakdown{
			Input:      round6(inputCost),
			Output:     round6(outputCost),
			CacheWrite: round6(cacheWriteCost),
			CacheRead:  round6(cacheReadCost),
		},
		ModelFound: true,
		Currency:   "USD",
	}
}

func ptr(f float64) *float64 { return &f }

func round6(f float64) float64 { return math.Round(f*1e6) / 1e6 }

func round2(f float64) float64 { return math.Round(f*1e2) / 1e2 }
