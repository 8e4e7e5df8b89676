package llm

import (
	"math"
)

// modelPricing holds the price per 1K tokens in USD.
type modelPricing struct {
	Input  float64
	Output float64
}

// Approximate prices as of early 2026.
var pricing = map[string]modelPricing{
	"llama-3.1-8b-instant":       {Input: 0.00005, Output: 0.00008},
	"llama-3.1-70b-versatile":    {Input: 0.00059, Output: 0.00079},
	"llama-3.3-70b-versatile":    {Input: 0.00059, Output: 0.00079},
	"mixtral-8x7b-32768":         {Input: 0.00024, Output: 0.00024},
	"gemma2-9b-it":               {Input: 0.0002, Output: 0.0002},
	"claude-3-5-haiku-20241022":  {Input: 0.0008, Output: 0.004},
	"claude-3-5-sonnet-20241022": {Input: 0.003, Output: 0.015},
}

var defaultPricing = modelPricing{Input: 0.0005, Output: 0.001}

// EstimateCost estimates the USD cost of a single LLM call.
func EstimateCost(inputTokens, outputTokens int, model string) float64 {
	p, ok := pricing[model]
	if !ok {
		p = defaultPricing
	}
	cost := float64(inputTokens)/1000*p.Input + float64(outputTokens)/1000*p.Output
	return math.Round(cost*1e8) / 1e8
}
