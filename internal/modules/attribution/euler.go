// Package attribution decomposes portfolio volatility across holdings via
// the Euler identity for homogeneous quadratic risk forms.
package attribution

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-risk/internal/domain"
)

// Calculator computes per-asset marginal contributions to volatility.
type Calculator struct {
	log zerolog.Logger
}

// NewCalculator creates a new Euler attribution calculator.
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{
		log: log.With().Str("component", "euler_attribution").Logger(),
	}
}

// Contributions computes, for each asset i:
//
//	marginal_i     = (Σw)_i
//	contribution_i = w_i * marginal_i / σ_p
//
// The contributions sum to σ_p exactly (Euler identity); PctOfTotal is the
// canonical ranking metric contribution_i / σ_p. A zero-volatility
// portfolio yields all-zero contributions rather than dividing by zero.
func (c *Calculator) Contributions(
	tickers []string,
	weights domain.WeightVector,
	cov [][]float64,
) domain.EulerContributions {
	n := len(tickers)

	marginals := make([]float64, n)
	variance := 0.0
	for i := 0; i < n; i++ {
		row := 0.0
		for j := 0; j < n; j++ {
			row += cov[i][j] * weights[tickers[j]]
		}
		marginals[i] = row
		variance += weights[tickers[i]] * row
	}

	result := domain.EulerContributions{
		PerAsset:   make(map[string]float64, n),
		PctOfTotal: make(map[string]float64, n),
	}

	if variance <= 0 {
		for _, t := range tickers {
			result.PerAsset[t] = 0
			result.PctOfTotal[t] = 0
		}
		c.log.Debug().Msg("Zero portfolio variance, all risk contributions are zero")
		return result
	}

	sigma := math.Sqrt(variance)
	result.Total = sigma
	for i, t := range tickers {
		contribution := weights[t] * marginals[i] / sigma
		result.PerAsset[t] = contribution
		result.PctOfTotal[t] = contribution / sigma
	}

	return result
}
