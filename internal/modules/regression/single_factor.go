// Package regression fits independent per-(asset, factor) OLS regressions.
//
// Each factor is fit on its own: this avoids multicollinearity among
// correlated proxies (industry vs. market) and lets a factor be skipped
// individually when its proxy lacks data, instead of invalidating the whole
// row. The betas are therefore not mutually orthogonalized; summing weighted
// per-factor variances can double-count shared variance. That is an accepted
// approximation, not true multivariate attribution.
package regression

import (
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-risk/internal/domain"
	"github.com/aristath/portfolio-risk/internal/modules/returns"
	"github.com/aristath/portfolio-risk/pkg/formulas"
)

// Engine fits single-factor OLS regressions over date-intersected series.
type Engine struct {
	log zerolog.Logger
	// minObservations gates inclusion: (asset, factor) pairs with fewer
	// aligned observations are omitted from the result table entirely.
	minObservations int
}

// NewEngine creates a single-factor regression engine.
func NewEngine(minObservations int, log zerolog.Logger) *Engine {
	if minObservations < 2 {
		minObservations = 2
	}
	return &Engine{
		log:             log.With().Str("component", "single_factor_regression").Logger(),
		minObservations: minObservations,
	}
}

// FitFactor regresses asset returns on one factor's returns over their
// common dates. The second return value is false when the pair has fewer
// aligned observations than the configured minimum.
//
// beta = cov(asset, factor) / var(factor)
// alpha = mean(asset) - beta * mean(factor)
// idio_vol = sample stdev of (asset - (alpha + beta*factor))
// r_squared = corr(asset, factor)^2
func (e *Engine) FitFactor(asset, factor domain.Series) (domain.FactorStats, bool) {
	assetVals, factorVals := returns.AlignPair(asset, factor)
	if len(assetVals) < e.minObservations {
		return domain.FactorStats{}, false
	}

	factorVar := formulas.Variance(factorVals)
	assetMean := formulas.Mean(assetVals)
	factorMean := formulas.Mean(factorVals)

	var beta, rSquared float64
	if factorVar > 0 {
		beta = formulas.Covariance(assetVals, factorVals) / factorVar
		// Correlation against a constant asset series is 0/0; a flat asset
		// has no variance for the factor to explain, so r_squared stays 0.
		if formulas.Variance(assetVals) > 0 {
			corr := formulas.Correlation(assetVals, factorVals)
			rSquared = corr * corr
		}
	}
	// Zero-variance factor: beta and r_squared stay 0 and the residual
	// reduces to the demeaned asset series.

	alpha := assetMean - beta*factorMean

	residuals := make([]float64, len(assetVals))
	for i := range assetVals {
		residuals[i] = assetVals[i] - (alpha + beta*factorVals[i])
	}

	return domain.FactorStats{
		Beta:           beta,
		Alpha:          alpha,
		RSquared:       rSquared,
		IdioVolMonthly: formulas.StdDev(residuals),
		Observations:   len(assetVals),
	}, true
}

// BuildBetaTable fits every asset against its available factors according
// to the asset's analysis mode. Simple-market assets are fit against the
// market factor only; multi-factor assets against every factor with a proxy
// series. Pairs below the observation minimum are skipped, and an asset with
// no qualifying factor has no row at all.
func (e *Engine) BuildBetaTable(
	assetReturns map[string]domain.Series,
	factorsByAsset map[string]domain.FactorSet,
	modes map[string]domain.AnalysisMode,
) domain.FactorBetaTable {
	table := make(domain.FactorBetaTable)

	for ticker, asset := range assetReturns {
		factors := factorsByAsset[ticker]
		if len(factors) == 0 {
			e.log.Debug().Str("ticker", ticker).Msg("No factor proxies for asset, skipping")
			continue
		}

		mode := modes[ticker]
		row := make(map[string]domain.FactorStats)

		for name, factor := range factors {
			if mode == domain.ModeSimpleMarket && name != domain.FactorMarket {
				continue
			}

			stats, ok := e.FitFactor(asset, factor)
			if !ok {
				e.log.Debug().
					Str("ticker", ticker).
					Str("factor", name).
					Int("min_observations", e.minObservations).
					Msg("Insufficient aligned observations, factor omitted")
				continue
			}
			row[name] = stats
		}

		if len(row) > 0 {
			table[ticker] = row
		}
	}

	return table
}

// FactorVolatilities computes the annualized standard deviation of each
// factor proxy series.
func FactorVolatilities(factors domain.FactorSet) domain.FactorVolatilityVector {
	vols := make(domain.FactorVolatilityVector, len(factors))
	for name, series := range factors {
		vols[name] = formulas.AnnualizedVolatility(series.Values)
	}
	return vols
}
