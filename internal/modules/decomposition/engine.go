// Package decomposition splits portfolio variance into systematic (factor)
// and idiosyncratic components from single-factor betas and factor
// volatilities.
package decomposition

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-risk/internal/domain"
	"github.com/aristath/portfolio-risk/pkg/formulas"
)

// aggregateFactors are decomposed into their own dedicated breakdown rather
// than blended into the generic factor bucket, to avoid double counting
// variance already carried by the market factor. Their beta rows stay in
// the canonical table; only the summation treats them specially.
var aggregateFactors = map[string]bool{
	domain.FactorIndustry:    true,
	domain.FactorSubindustry: true,
}

// Engine computes variance decompositions.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a variance decomposition engine.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		log: log.With().Str("component", "variance_decomposition").Logger(),
	}
}

// WeightedFactorVariances computes w_i² · β_{i,f}² · σ_f² per (asset,
// factor) pair, in annualized variance units. Pairs absent from the beta
// table stay absent here.
func (e *Engine) WeightedFactorVariances(
	weights domain.WeightVector,
	betas domain.FactorBetaTable,
	factorVols domain.FactorVolatilityVector,
) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(betas))
	for ticker, row := range betas {
		w, ok := weights[ticker]
		if !ok {
			continue
		}
		cells := make(map[string]float64, len(row))
		for factor, stats := range row {
			vol, ok := factorVols[factor]
			if !ok {
				continue
			}
			cells[factor] = w * w * stats.Beta * stats.Beta * vol * vol
		}
		if len(cells) > 0 {
			out[ticker] = cells
		}
	}
	return out
}

// Decompose combines weights, betas and factor volatilities into the
// portfolio's variance decomposition.
//
// idiosyncratic_variance = Σ_i w_i² · idio_var_i (annualized from monthly
// residual volatility); factor_variance sums the weighted factor variances
// of the generic factors; industry/subindustry aggregates are reported in
// their own breakdown. The additivity invariant holds by construction:
// portfolio_variance = factor_variance + idiosyncratic_variance.
func (e *Engine) Decompose(
	weights domain.WeightVector,
	betas domain.FactorBetaTable,
	factorVols domain.FactorVolatilityVector,
) domain.VarianceDecomposition {
	weighted := e.WeightedFactorVariances(weights, betas, factorVols)

	// Summation runs in sorted ticker/factor order so repeated runs over
	// identical inputs reproduce bit-identical sums.
	factorBreakdown := make(map[string]float64)
	industryBreakdown := make(map[string]float64)
	factorVariance := 0.0
	for _, ticker := range sortedKeys(weighted) {
		cells := weighted[ticker]
		for _, factor := range sortedKeys(cells) {
			v := cells[factor]
			if aggregateFactors[factor] {
				industryBreakdown[factor] += v
				continue
			}
			factorBreakdown[factor] += v
			factorVariance += v
		}
	}

	idioVariance := 0.0
	for _, ticker := range sortedKeys(weights) {
		row, ok := betas[ticker]
		if !ok {
			continue
		}
		idioVol, ok := residualVolatility(row)
		if !ok {
			continue
		}
		w := weights[ticker]
		idioVariance += w * w * formulas.AnnualizeVariance(idioVol*idioVol)
	}

	portfolioVariance := factorVariance + idioVariance

	d := domain.VarianceDecomposition{
		PortfolioVariance:     portfolioVariance,
		IdiosyncraticVariance: idioVariance,
		FactorVariance:        factorVariance,
		FactorBreakdownVar:    factorBreakdown,
		FactorBreakdownPct:    make(map[string]float64, len(factorBreakdown)),
		IndustryBreakdownVar:  industryBreakdown,
		IndustryBreakdownPct:  make(map[string]float64, len(industryBreakdown)),
	}

	// A zero-variance portfolio (e.g. a single cash holding) reports zero
	// percentages rather than dividing by zero.
	if portfolioVariance > 0 {
		d.IdiosyncraticPct = idioVariance / portfolioVariance
		d.FactorPct = factorVariance / portfolioVariance
		for factor, v := range factorBreakdown {
			d.FactorBreakdownPct[factor] = v / portfolioVariance
		}
		for factor, v := range industryBreakdown {
			d.IndustryBreakdownPct[factor] = v / portfolioVariance
		}
	}

	return d
}

func sortedKeys[V any, M ~map[string]V](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// residualVolatility picks the canonical monthly residual volatility for an
// asset: the market regression's when fitted, otherwise the residual of the
// best-explained factor (highest r², ties broken alphabetically).
func residualVolatility(row map[string]domain.FactorStats) (float64, bool) {
	if stats, ok := row[domain.FactorMarket]; ok {
		return stats.IdioVolMonthly, true
	}

	factors := make([]string, 0, len(row))
	for f := range row {
		factors = append(factors, f)
	}
	if len(factors) == 0 {
		return 0, false
	}
	sort.Strings(factors)

	best := factors[0]
	for _, f := range factors[1:] {
		if row[f].RSquared > row[best].RSquared {
			best = f
		}
	}
	return row[best].IdioVolMonthly, true
}
