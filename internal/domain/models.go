// Package domain holds the shared value types of the risk engine.
// All entities are recomputed per analysis call and never mutated in place.
package domain

// Canonical factor names used throughout the pipeline.
const (
	FactorMarket      = "market"
	FactorMomentum    = "momentum"
	FactorValue       = "value"
	FactorIndustry    = "industry"
	FactorSubindustry = "subindustry"
)

// Series is an ordered monthly time series: parallel Dates ("YYYY-MM",
// ascending) and Values slices. Used for prices, returns and yield levels.
type Series struct {
	Dates  []string  `json:"dates"`
	Values []float64 `json:"values"`
}

// Len returns the number of observations.
func (s Series) Len() int {
	return len(s.Values)
}

// SeriesTable is a set of series aligned to one common date window.
type SeriesTable struct {
	Dates []string             `json:"dates"`
	Data  map[string][]float64 `json:"data"`
}

// FactorSet maps factor name to its proxy return series.
type FactorSet map[string]Series

// RateFactorSet maps maturity label (e.g. "2Y", "10Y") to a yield-level
// series in percentage units, differenced to decimal Δy before fitting.
type RateFactorSet map[string]Series

// WeightVector maps ticker to signed portfolio weight. It is not required
// to sum to 1 unless explicitly normalized.
type WeightVector map[string]float64

// GrossExposure returns the sum of absolute weights.
func (w WeightVector) GrossExposure() float64 {
	total := 0.0
	for _, v := range w {
		if v < 0 {
			total -= v
		} else {
			total += v
		}
	}
	return total
}

// NetExposure returns the signed sum of weights.
func (w WeightVector) NetExposure() float64 {
	total := 0.0
	for _, v := range w {
		total += v
	}
	return total
}

// AnalysisMode selects the regression treatment for an asset. The mode is
// decided once per asset, up front, from proxy-map completeness.
type AnalysisMode string

const (
	// ModeSimpleMarket fits only the market factor.
	ModeSimpleMarket AnalysisMode = "simple_market"
	// ModeMultiFactor fits every factor with an available proxy series.
	ModeMultiFactor AnalysisMode = "multi_factor"
)

// FactorStats holds the single-factor OLS output for one (asset, factor)
// pair. A pair below the observation minimum is absent from the table
// entirely; absence, not zero, signals insufficient data.
type FactorStats struct {
	Beta           float64 `json:"beta"`
	Alpha          float64 `json:"alpha"`
	RSquared       float64 `json:"r_squared"`
	IdioVolMonthly float64 `json:"idio_vol_monthly"`
	Observations   int     `json:"observations"`
}

// FactorBetaTable maps ticker -> factor -> regression stats.
type FactorBetaTable map[string]map[string]FactorStats

// FactorVolatilityVector maps factor name to annualized standard deviation.
type FactorVolatilityVector map[string]float64

// RateFactorResult is the joint yield-curve regression output for one
// rate-sensitive asset. It is omitted outright (nil) below the observation
// gate so "not applicable" stays distinguishable from "zero sensitivity".
type RateFactorResult struct {
	Betas            map[string]float64 `json:"betas"`             // maturity -> key-rate beta
	InterestRateBeta float64            `json:"interest_rate_beta"` // sum of key-rate betas (signed effective duration, years)
	StdErrors        map[string]float64 `json:"std_errors"` // maturity -> Newey-West HAC standard error
	R2Adj            float64            `json:"r2_adj"`
	ConditionNumber  float64            `json:"condition_number"`
	VIF              map[string]float64 `json:"vif"`
	Observations     int                `json:"observations"`
}

// EulerContributions decomposes portfolio volatility across holdings.
// Invariant: the per-asset contributions sum to Total.
type EulerContributions struct {
	Total      float64            `json:"total"`        // portfolio volatility
	PerAsset   map[string]float64 `json:"per_asset"`    // ticker -> contribution to sigma_p
	PctOfTotal map[string]float64 `json:"pct_of_total"` // ticker -> contribution / sigma_p
}

// VarianceDecomposition splits portfolio variance into factor and
// idiosyncratic components. Invariant: FactorVariance +
// IdiosyncraticVariance == PortfolioVariance within floating tolerance,
// and the percentages sum to 1 when PortfolioVariance > 0.
type VarianceDecomposition struct {
	PortfolioVariance     float64            `json:"portfolio_variance"`
	IdiosyncraticVariance float64            `json:"idiosyncratic_variance"`
	IdiosyncraticPct      float64            `json:"idiosyncratic_pct"`
	FactorVariance        float64            `json:"factor_variance"`
	FactorPct             float64            `json:"factor_pct"`
	FactorBreakdownVar    map[string]float64 `json:"factor_breakdown_var"`
	FactorBreakdownPct    map[string]float64 `json:"factor_breakdown_pct"`
	IndustryBreakdownVar  map[string]float64 `json:"industry_breakdown_var"`
	IndustryBreakdownPct  map[string]float64 `json:"industry_breakdown_pct"`
}
