// Package concentration provides portfolio concentration metrics.
package concentration

import "github.com/aristath/portfolio-risk/internal/domain"

// Herfindahl computes the Herfindahl index Σ w_i² over normalized weights.
// Weights are squared directly, so shorts and longs both add positively to
// concentration. For a normalized vector the result lies in (0, 1].
func Herfindahl(weights domain.WeightVector) float64 {
	hhi := 0.0
	for _, w := range weights {
		hhi += w * w
	}
	return hhi
}

// EffectiveAssets is the equivalent number of equally-weighted positions:
// 1 / HHI. Zero for an empty portfolio.
func EffectiveAssets(weights domain.WeightVector) float64 {
	hhi := Herfindahl(weights)
	if hhi == 0 {
		return 0
	}
	return 1.0 / hhi
}
