package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistoricalCVaR(t *testing.T) {
	// 20 observations: at 95% confidence the tail is the single worst.
	returns := make([]float64, 20)
	for i := range returns {
		returns[i] = 0.01
	}
	returns[7] = -0.10
	returns[13] = -0.04

	assert.InDelta(t, -0.10, HistoricalCVaR(returns, 0.95), 1e-12)

	// At 90% confidence the tail is the worst two, averaged.
	assert.InDelta(t, -0.07, HistoricalCVaR(returns, 0.90), 1e-12)
}

func TestHistoricalVaR(t *testing.T) {
	returns := []float64{0.02, -0.05, 0.01, -0.02, 0.03, 0.0, 0.01, -0.01, 0.02, 0.01}

	// 10 observations at 90%: tail holds the single worst return.
	assert.InDelta(t, -0.05, HistoricalVaR(returns, 0.90), 1e-12)
	// At 80%: the tail holds the worst two; VaR is the better of them.
	assert.InDelta(t, -0.02, HistoricalVaR(returns, 0.80), 1e-12)
}

func TestTailReturns_ExactQuantileBoundaries(t *testing.T) {
	// n*(1-confidence) lands exactly on an integer; the tail must not
	// absorb an extra observation from float error in 1-confidence.
	twenty := make([]float64, 20)
	assert.Len(t, tailReturns(twenty, 0.95), 1)

	forty := make([]float64, 40)
	assert.Len(t, tailReturns(forty, 0.95), 2)
	assert.Len(t, tailReturns(forty, 0.90), 4)
}

func TestTailRisk_EdgeCases(t *testing.T) {
	assert.Equal(t, 0.0, HistoricalCVaR(nil, 0.95))
	assert.Equal(t, 0.0, HistoricalVaR(nil, 0.95))

	single := []float64{-0.03}
	assert.InDelta(t, -0.03, HistoricalCVaR(single, 0.95), 1e-12)
}
