package regression

import "github.com/aristath/portfolio-risk/internal/domain"

// DecideMode selects the analysis mode for one asset from the completeness
// of its proxy map. The decision is made once, up front; the pipeline never
// re-checks proxy presence mid-flight.
//
// An asset with style proxies beyond the market factor (momentum and value)
// gets the multi-factor treatment; anything less falls back to a simple
// market regression.
func DecideMode(factors domain.FactorSet) domain.AnalysisMode {
	if _, ok := factors[domain.FactorMarket]; !ok {
		return domain.ModeSimpleMarket
	}

	_, hasMomentum := factors[domain.FactorMomentum]
	_, hasValue := factors[domain.FactorValue]
	if hasMomentum && hasValue {
		return domain.ModeMultiFactor
	}

	return domain.ModeSimpleMarket
}
