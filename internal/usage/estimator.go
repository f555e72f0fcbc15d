package usage

import "math"

// Default per-million-token rates in USD, matching the default
// DeepSeek-compatible pricing. Overridable via configuration.
const (
	DefaultCostPerMillionInput  = 0.14
	DefaultCostPerMillionOutput = 0.28
)

// Estimate holds token counts and the derived cost for one request.
type Estimate struct {
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
}

// Estimator converts character counts into approximate token counts and
// computes request cost from per-million-token rates.
type Estimator struct {
	costPerMillionInput  float64
	costPerMillionOutput float64
}

// NewEstimator builds an estimator with the given USD rates per million
// tokens. Non-positive rates fall back to the defaults.
func NewEstimator(costPerMillionInput, costPerMillionOutput float64) *Estimator {
	if costPerMillionInput <= 0 {
		costPerMillionInput = DefaultCostPerMillionInput
	}
	if costPerMillionOutput <= 0 {
		costPerMillionOutput = DefaultCostPerMillionOutput
	}
	return &Estimator{
		costPerMillionInput:  costPerMillionInput,
		costPerMillionOutput: costPerMillionOutput,
	}
}

// EstimateTokens approximates the token count of text as ceil(chars/4).
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / 4.0))
}

// Cost computes the USD cost for the given token counts. Negative counts
// are treated as zero.
func (e *Estimator) Cost(promptTokens, completionTokens int) float64 {
	if promptTokens < 0 {
		promptTokens = 0
	}
	if completionTokens < 0 {
		completionTokens = 0
	}
	return (float64(promptTokens)*e.costPerMillionInput +
		float64(completionTokens)*e.costPerMillionOutput) / 1_000_000
}

// FromText estimates both token counts from raw text and derives the cost.
// Used when the provider did not report exact usage.
func (e *Estimator) FromText(promptText, completionText string) Estimate {
	p := EstimateTokens(promptText)
	c := EstimateTokens(completionText)
	return Estimate{
		PromptTokens:     p,
		CompletionTokens: c,
		CostUSD:          e.Cost(p, c),
	}
}

// FromCounts derives the cost from exact provider-reported token counts.
func (e *Estimator) FromCounts(promptTokens, completionTokens int) Estimate {
	if promptTokens < 0 {
		promptTokens = 0
	}
	if completionTokens < 0 {
		completionTokens = 0
	}
	return Estimate{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		CostUSD:          e.Cost(promptTokens, completionTokens),
	}
}
