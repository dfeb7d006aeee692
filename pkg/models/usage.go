package models

// ModelPricing contains pricing per 1M tokens for a model.
type ModelPricing struct {
	// InputPerMillion is the cost per 1M input tokens.
	InputPerMillion float64
	// OutputPerMillion is the cost per 1M output tokens.
	OutputPerMillion float64
}

// DefaultModelPricing contains pricing for known Claude models.
var DefaultModelPricing = map[string]ModelPricing{
	"claude-opus-4-5-20251101":   {InputPerMillion: 15.00, OutputPerMillion: 75.00},
	"claude-sonnet-4-20250514":   {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-5-sonnet-20241022": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-5-haiku-20241022":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
}

// Usage represents aggregated token usage for an execution.
type Usage struct {
	// InputTokens is the total input tokens used.
	InputTokens int64 `json:"input_tokens"`
	// OutputTokens is the total output tokens used.
	OutputTokens int64 `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// Add accumulates another usage into this one.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Cost returns the dollar cost of the usage under the given model's
// pricing, or 0 if the model is unknown.
func (u Usage) Cost(model string) float64 {
	pricing, ok := DefaultModelPricing[model]
	if !ok {
		return 0
	}
	inputCost := float64(u.InputTokens) / 1_000_000 * pricing.InputPerMillion
	outputCost := float64(u.OutputTokens) / 1_000_000 * pricing.OutputPerMillion
	return inputCost + outputCost
}
