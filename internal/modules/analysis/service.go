// Package analysis orchestrates the full risk pipeline: returns alignment,
// factor and rate regressions, aggregation, Euler attribution, variance
// decomposition, concentration and compliance.
package analysis

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-risk/internal/config"
	"github.com/aristath/portfolio-risk/internal/domain"
	"github.com/aristath/portfolio-risk/internal/modules/aggregation"
	"github.com/aristath/portfolio-risk/internal/modules/attribution"
	"github.com/aristath/portfolio-risk/internal/modules/compliance"
	"github.com/aristath/portfolio-risk/internal/modules/concentration"
	"github.com/aristath/portfolio-risk/internal/modules/decomposition"
	"github.com/aristath/portfolio-risk/internal/modules/ratefactor"
	"github.com/aristath/portfolio-risk/internal/modules/regression"
	"github.com/aristath/portfolio-risk/pkg/formulas"
)

// Input is one analysis request. All series are monthly and already
// restricted to the caller's analysis window; the service performs no I/O.
type Input struct {
	Weights domain.WeightVector
	// AssetReturns maps ticker to its monthly return series.
	AssetReturns map[string]domain.Series
	// Proxies are the portfolio-level factor proxy return series
	// (market, momentum, value).
	Proxies domain.FactorSet
	// AssetProxies carry per-asset factor series, typically the
	// industry/subindustry peer composites.
	AssetProxies map[string]domain.FactorSet
	// YieldCurves holds yield-level series per maturity for each
	// rate-sensitive asset.
	YieldCurves map[string]domain.RateFactorSet
	Limits      compliance.RiskLimits
}

// Report is the full recomputed pipeline output for one weight vector.
type Report struct {
	Tickers          []string                       `json:"tickers"`
	Weights          domain.WeightVector            `json:"weights"`
	Dropped          []string                       `json:"dropped"`
	Modes            map[string]domain.AnalysisMode `json:"modes"`
	PortfolioReturns domain.Series                  `json:"portfolio_returns"`
	Covariance       [][]float64                    `json:"covariance"`
	Correlation      [][]float64                    `json:"correlation"`
	VolatilityAnnual float64                        `json:"volatility_annual"`
	// VaR95Monthly and CVaR95Monthly are empirical monthly tail metrics of
	// the aligned portfolio return series at 95% confidence.
	VaR95Monthly  float64                             `json:"var_95_monthly"`
	CVaR95Monthly float64                             `json:"cvar_95_monthly"`
	Betas         domain.FactorBetaTable              `json:"betas"`
	FactorVols    domain.FactorVolatilityVector       `json:"factor_vols"`
	RateResults   map[string]*domain.RateFactorResult `json:"rate_results"`
	Euler         domain.EulerContributions           `json:"euler"`
	Decomposition domain.VarianceDecomposition        `json:"decomposition"`
	Herfindahl    float64                             `json:"herfindahl"`
	Compliance    compliance.Report                   `json:"compliance"`
}

// Service wires the pipeline stages together.
type Service struct {
	log        zerolog.Logger
	aggregator *aggregation.Aggregator
	factors    *regression.Engine
	rates      *ratefactor.Engine
	euler      *attribution.Calculator
	decomposer *decomposition.Engine
	evaluator  *compliance.Evaluator
}

// NewService creates the analysis service from explicit configuration.
func NewService(cfg config.AnalysisConfig, log zerolog.Logger) *Service {
	log = log.With().Str("component", "analysis").Logger()
	return &Service{
		log:        log,
		aggregator: aggregation.NewAggregator(cfg.NormalizeWeights, log),
		factors:    regression.NewEngine(cfg.MinObservations, log),
		rates:      ratefactor.NewEngine(cfg.RateMinObservations, log),
		euler:      attribution.NewCalculator(log),
		decomposer: decomposition.NewEngine(log),
		evaluator:  compliance.NewEvaluator(cfg.ComplianceLookbackYears, log),
	}
}

// Analyze runs the full pipeline for one portfolio. Identical inputs
// produce bit-identical reports.
func (s *Service) Analyze(input Input) (*Report, error) {
	aligned, err := s.aggregator.Align(input.Weights, input.AssetReturns)
	if err != nil {
		return nil, err
	}

	// Per-asset proxy maps and analysis modes, decided once up front.
	factorsByAsset := make(map[string]domain.FactorSet, len(aligned.Tickers))
	modes := make(map[string]domain.AnalysisMode, len(aligned.Tickers))
	for _, ticker := range aligned.Tickers {
		merged := mergeFactorSets(input.Proxies, input.AssetProxies[ticker])
		factorsByAsset[ticker] = merged
		modes[ticker] = regression.DecideMode(merged)
	}

	coveredReturns := make(map[string]domain.Series, len(aligned.Tickers))
	for _, ticker := range aligned.Tickers {
		coveredReturns[ticker] = input.AssetReturns[ticker]
	}
	betas := s.factors.BuildBetaTable(coveredReturns, factorsByAsset, modes)

	factorVols := s.factorVolatilities(input, aligned.Tickers)

	rateResults := make(map[string]*domain.RateFactorResult)
	for _, ticker := range aligned.Tickers {
		curve, ok := input.YieldCurves[ticker]
		if !ok {
			continue
		}
		if result := s.rates.Fit(ticker, input.AssetReturns[ticker], curve); result != nil {
			rateResults[ticker] = result
		}
	}

	cov, err := s.aggregator.CovarianceMatrix(aligned)
	if err != nil {
		return nil, err
	}
	corr := s.aggregator.CorrelationMatrix(cov)

	monthlyVol := s.aggregator.PortfolioVolatility(aligned, cov)
	annualVol := monthlyVol * sqrtMonthsPerYear

	euler := s.euler.Contributions(aligned.Tickers, aligned.Weights, cov)
	decomp := s.decomposer.Decompose(aligned.Weights, betas, factorVols)
	hhi := concentration.Herfindahl(aligned.Weights)

	portfolioReturns := s.aggregator.PortfolioReturns(aligned)

	report := &Report{
		Tickers:          aligned.Tickers,
		Weights:          aligned.Weights,
		Dropped:          aligned.Dropped,
		Modes:            modes,
		PortfolioReturns: portfolioReturns,
		Covariance:       cov,
		Correlation:      corr,
		VolatilityAnnual: annualVol,
		VaR95Monthly:     formulas.HistoricalVaR(portfolioReturns.Values, tailConfidence),
		CVaR95Monthly:    formulas.HistoricalCVaR(portfolioReturns.Values, tailConfidence),
		Betas:            betas,
		FactorVols:       factorVols,
		RateResults:      rateResults,
		Euler:            euler,
		Decomposition:    decomp,
		Herfindahl:       hhi,
		Compliance:       s.evaluator.Evaluate(annualVol, betas, hhi, input.Proxies, input.Limits),
	}

	s.log.Info().
		Int("assets", len(aligned.Tickers)).
		Int("dropped", len(aligned.Dropped)).
		Float64("volatility_annual", annualVol).
		Float64("herfindahl", hhi).
		Msg("Completed risk analysis")

	return report, nil
}

// ScenarioDiff compares the decompositions of a base portfolio and a
// perturbed weight vector over the same inputs.
type ScenarioDiff struct {
	Base               *Report            `json:"base"`
	Scenario           *Report            `json:"scenario"`
	VolatilityDelta    float64            `json:"volatility_delta"`
	FactorPctDelta     float64            `json:"factor_pct_delta"`
	IdioPctDelta       float64            `json:"idio_pct_delta"`
	HerfindahlDelta    float64            `json:"herfindahl_delta"`
	ContributionDeltas map[string]float64 `json:"contribution_deltas"`
}

// WhatIf recomputes the full pipeline on a perturbed weight vector and
// diffs the two snapshots.
func (s *Service) WhatIf(input Input, perturbed domain.WeightVector) (*ScenarioDiff, error) {
	base, err := s.Analyze(input)
	if err != nil {
		return nil, err
	}

	scenarioInput := input
	scenarioInput.Weights = perturbed
	scenario, err := s.Analyze(scenarioInput)
	if err != nil {
		return nil, err
	}

	deltas := make(map[string]float64)
	for ticker, c := range scenario.Euler.PerAsset {
		deltas[ticker] = c - base.Euler.PerAsset[ticker]
	}
	for ticker, c := range base.Euler.PerAsset {
		if _, ok := scenario.Euler.PerAsset[ticker]; !ok {
			deltas[ticker] = -c
		}
	}

	return &ScenarioDiff{
		Base:               base,
		Scenario:           scenario,
		VolatilityDelta:    scenario.VolatilityAnnual - base.VolatilityAnnual,
		FactorPctDelta:     scenario.Decomposition.FactorPct - base.Decomposition.FactorPct,
		IdioPctDelta:       scenario.Decomposition.IdiosyncraticPct - base.Decomposition.IdiosyncraticPct,
		HerfindahlDelta:    scenario.Herfindahl - base.Herfindahl,
		ContributionDeltas: deltas,
	}, nil
}

// factorVolatilities builds one annualized volatility per factor name.
// Shared proxies contribute directly; per-asset industry composites
// contribute the series of the first (sorted) ticker carrying each factor,
// a deterministic tie-break for the single-σ-per-factor model.
func (s *Service) factorVolatilities(input Input, tickers []string) domain.FactorVolatilityVector {
	vols := regression.FactorVolatilities(input.Proxies)

	sorted := make([]string, len(tickers))
	copy(sorted, tickers)
	sort.Strings(sorted)

	for _, ticker := range sorted {
		for name, series := range input.AssetProxies[ticker] {
			if _, ok := vols[name]; ok {
				continue
			}
			vols[name] = formulas.AnnualizedVolatility(series.Values)
		}
	}
	return vols
}

func mergeFactorSets(shared, perAsset domain.FactorSet) domain.FactorSet {
	merged := make(domain.FactorSet, len(shared)+len(perAsset))
	for name, series := range shared {
		merged[name] = series
	}
	for name, series := range perAsset {
		merged[name] = series
	}
	return merged
}

// tailConfidence is the confidence level of the reported VaR/CVaR.
const tailConfidence = 0.95

var sqrtMonthsPerYear = math.Sqrt(formulas.MonthsPerYear)
