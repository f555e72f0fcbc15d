package usage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokensRoundsUp(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("a"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 250, EstimateTokens(strings.Repeat("x", 1000)))
}

func TestCostUsesPerMillionRates(t *testing.T) {
	e := NewEstimator(0.14, 0.28)

	assert.InDelta(t, 0.0, e.Cost(0, 0), 1e-12)
	assert.InDelta(t, 0.14, e.Cost(1_000_000, 0), 1e-9)
	assert.InDelta(t, 0.28, e.Cost(0, 1_000_000), 1e-9)
	assert.InDelta(t, (1000*0.14+500*0.28)/1e6, e.Cost(1000, 500), 1e-12)
}

func TestCostFloorsNegativeCounts(t *testing.T) {
	e := NewEstimator(0.14, 0.28)
	assert.InDelta(t, 0.0, e.Cost(-10, -5), 1e-12)
}

func TestNewEstimatorDefaultsOnNonPositiveRates(t *testing.T) {
	e := NewEstimator(0, -1)
	assert.InDelta(t, DefaultCostPerMillionInput, e.Cost(1_000_000, 0), 1e-9)
	assert.InDelta(t, DefaultCostPerMillionOutput, e.Cost(0, 1_000_000), 1e-9)
}

func TestFromText(t *testing.T) {
	e := NewEstimator(0.14, 0.28)

	est := e.FromText(strings.Repeat("p", 8), strings.Repeat("c", 9))

	assert.Equal(t, 2, est.PromptTokens)
	assert.Equal(t, 3, est.CompletionTokens)
	assert.InDelta(t, (2*0.14+3*0.28)/1e6, est.CostUSD, 1e-15)
}

func TestFromCountsUsesExactNumbers(t *testing.T) {
	e := NewEstimator(0.14, 0.28)

	est := e.FromCounts(120, 340)

	assert.Equal(t, 120, est.PromptTokens)
	assert.Equal(t, 340, est.CompletionTokens)
	assert.InDelta(t, (120*0.14+340*0.28)/1e6, est.CostUSD, 1e-15)

	est = e.FromCounts(-1, -2)
	assert.Zero(t, est.PromptTokens)
	assert.Zero(t, est.CompletionTokens)
}
