package formulas

import (
	"math"
	"sort"
)

// HistoricalVaR is the return at the (1 - confidence) quantile of the
// empirical distribution: the loss threshold exceeded in the worst tail.
// Negative for losses. Zero for an empty series.
func HistoricalVaR(returns []float64, confidence float64) float64 {
	tail := tailReturns(returns, confidence)
	if len(tail) == 0 {
		return 0.0
	}
	return tail[len(tail)-1]
}

// HistoricalCVaR is the mean return of the worst (1 - confidence) tail:
// the expected loss given the VaR threshold is breached.
func HistoricalCVaR(returns []float64, confidence float64) float64 {
	tail := tailReturns(returns, confidence)
	if len(tail) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, r := range tail {
		sum += r
	}
	return sum / float64(len(tail))
}

// quantileEpsilon absorbs the float error of 1-confidence (0.05 computes
// as 0.050000000000000044), which would otherwise pull an extra
// observation into the tail at exact quantile boundaries.
const quantileEpsilon = 1e-9

// tailReturns sorts ascending and keeps the worst ceil(n * (1-confidence))
// observations, at least one.
func tailReturns(returns []float64, confidence float64) []float64 {
	if len(returns) == 0 {
		return nil
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	tailCount := int(math.Ceil(float64(len(sorted))*(1.0-confidence) - quantileEpsilon))
	if tailCount < 1 {
		tailCount = 1
	}
	if tailCount > len(sorted) {
		tailCount = len(sorted)
	}
	return sorted[:tailCount]
}
