// Package aggregation turns per-asset return series and signed weights into
// portfolio-level series, covariance/correlation matrices and volatility.
package aggregation

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/portfolio-risk/internal/domain"
	"github.com/aristath/portfolio-risk/internal/modules/returns"
)

// Aggregator builds portfolio-level aggregates over one common aligned
// window. The normalize flag is explicit configuration, never ambient
// global state.
type Aggregator struct {
	log              zerolog.Logger
	normalizeWeights bool
}

// NewAggregator creates a portfolio aggregator.
func NewAggregator(normalizeWeights bool, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		log:              log.With().Str("component", "aggregator").Logger(),
		normalizeWeights: normalizeWeights,
	}
}

// NormalizeWeights rescales weights to gross exposure 1 preserving sign
// when normalization is enabled, and passes them through unchanged when it
// is disabled. An empty or all-zero weight vector is a caller contract
// violation and fails fast.
func (a *Aggregator) NormalizeWeights(weights domain.WeightVector) (domain.WeightVector, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("empty weight vector")
	}

	gross := weights.GrossExposure()
	if gross == 0 {
		return nil, fmt.Errorf("all-zero weight vector")
	}

	out := make(domain.WeightVector, len(weights))
	for ticker, w := range weights {
		if a.normalizeWeights {
			out[ticker] = w / gross
		} else {
			out[ticker] = w
		}
	}
	return out, nil
}

// AlignedPortfolio is the common-window view of a portfolio: the aligned
// return table, a stable ticker order, and the weights actually in effect
// after uncovered assets were dropped and the remainder renormalized.
type AlignedPortfolio struct {
	Table   domain.SeriesTable
	Tickers []string
	Weights domain.WeightVector
	Dropped []string
}

// Align restricts the portfolio to assets with return coverage, aligns their
// series to one common window and renormalizes the remaining weights.
//
// Assets whose series is empty (no overlap with the analysis window) are
// dropped explicitly and the remaining weights rescaled to preserve the
// pre-drop gross exposure; with normalization enabled the result has gross
// exposure 1 either way.
func (a *Aggregator) Align(
	weights domain.WeightVector,
	assetReturns map[string]domain.Series,
) (*AlignedPortfolio, error) {
	normalized, err := a.NormalizeWeights(weights)
	if err != nil {
		return nil, err
	}

	covered := make(map[string]domain.Series)
	dropped := make([]string, 0)
	uncovered := make([]string, 0)
	zeroWeight := make([]string, 0)
	for ticker, w := range normalized {
		if w == 0 {
			zeroWeight = append(zeroWeight, ticker)
			dropped = append(dropped, ticker)
			continue
		}
		series, ok := assetReturns[ticker]
		if !ok || series.Len() == 0 {
			uncovered = append(uncovered, ticker)
			dropped = append(dropped, ticker)
			continue
		}
		covered[ticker] = series
	}
	sort.Strings(dropped)

	if len(covered) == 0 {
		return nil, fmt.Errorf("no assets with return coverage")
	}
	if len(uncovered) > 0 {
		sort.Strings(uncovered)
		a.log.Warn().
			Strs("tickers", uncovered).
			Msg("Dropping assets without return coverage and renormalizing remaining weights")
	}
	if len(zeroWeight) > 0 {
		sort.Strings(zeroWeight)
		a.log.Debug().
			Strs("tickers", zeroWeight).
			Msg("Dropping zero-weight assets")
	}

	table := returns.AlignTable(covered)
	if len(table.Dates) == 0 {
		return nil, fmt.Errorf("no common return window across %d assets", len(covered))
	}

	tickers := make([]string, 0, len(covered))
	for t := range covered {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	kept := make(domain.WeightVector, len(tickers))
	preDropGross := normalized.GrossExposure()
	keptGross := 0.0
	for _, t := range tickers {
		kept[t] = normalized[t]
		keptGross += math.Abs(normalized[t])
	}
	if len(dropped) > 0 && keptGross > 0 {
		scale := preDropGross / keptGross
		for t := range kept {
			kept[t] *= scale
		}
	}

	return &AlignedPortfolio{
		Table:   table,
		Tickers: tickers,
		Weights: kept,
		Dropped: dropped,
	}, nil
}

// PortfolioReturns computes the weighted sum of asset returns over the
// aligned window.
func (a *Aggregator) PortfolioReturns(p *AlignedPortfolio) domain.Series {
	values := make([]float64, len(p.Table.Dates))
	for i := range p.Table.Dates {
		total := 0.0
		for _, ticker := range p.Tickers {
			total += p.Weights[ticker] * p.Table.Data[ticker][i]
		}
		values[i] = total
	}
	return domain.Series{Dates: p.Table.Dates, Values: values}
}

// CovarianceMatrix computes the sample covariance matrix over the full
// aligned-return table, one common window for all assets. A zero-variance
// asset gets an exactly zero row and column.
func (a *Aggregator) CovarianceMatrix(p *AlignedPortfolio) ([][]float64, error) {
	n := len(p.Tickers)
	obs := len(p.Table.Dates)
	if obs < 2 {
		return nil, fmt.Errorf("insufficient observations for covariance: need at least 2, got %d", obs)
	}

	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		ri := p.Table.Data[p.Tickers[i]]
		for j := i; j < n; j++ {
			rj := p.Table.Data[p.Tickers[j]]
			c := stat.Covariance(ri, rj, nil)
			cov[i][j] = c
			if i != j {
				cov[j][i] = c
			}
		}
	}

	return cov, nil
}

// CorrelationMatrix derives the correlation matrix from a covariance
// matrix. Pairs involving a zero-variance asset correlate at exactly 0,
// and every diagonal entry with positive variance is exactly 1.
func (a *Aggregator) CorrelationMatrix(cov [][]float64) [][]float64 {
	n := len(cov)
	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			vi, vj := cov[i][i], cov[j][j]
			if vi > 0 && vj > 0 {
				corr[i][j] = cov[i][j] / math.Sqrt(vi*vj)
			}
		}
	}
	return corr
}

// PortfolioVolatility computes sqrt(wᵀΣw) in the frequency of the
// covariance input (monthly covariance gives monthly volatility).
func (a *Aggregator) PortfolioVolatility(p *AlignedPortfolio, cov [][]float64) float64 {
	variance := 0.0
	for i, ti := range p.Tickers {
		for j, tj := range p.Tickers {
			variance += p.Weights[ti] * cov[i][j] * p.Weights[tj]
		}
	}
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}
