// Package compliance evaluates computed risk figures against configured
// limits. The evaluation is a pure, stateless computation: the only
// "failure" mode is a per-factor or per-asset data-insufficiency skip,
// never a global fault.
package compliance

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-risk/internal/domain"
)

// RiskLimits holds the configured ceilings. A zero value disables the
// corresponding check.
type RiskLimits struct {
	// MaxVolatility caps annualized portfolio volatility.
	MaxVolatility float64 `json:"max_volatility"`
	// MaxSingleFactorLoss is the worst tolerated portfolio loss from a
	// single factor's worst historical month, e.g. 0.10 for -10%.
	MaxSingleFactorLoss float64 `json:"max_single_factor_loss"`
	// MaxConcentration caps the Herfindahl index.
	MaxConcentration float64 `json:"max_concentration"`
}

// CheckStatus classifies one evaluated limit.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusFail CheckStatus = "fail"
	// StatusSkipped marks a check that could not be evaluated for lack of
	// data. Skipped is distinct from pass: conflating "omitted due to
	// insufficient data" with "computed as exactly zero" can produce false
	// compliance conclusions.
	StatusSkipped CheckStatus = "skipped"
)

// Check is one evaluated limit.
type Check struct {
	Name   string      `json:"name"`
	Ticker string      `json:"ticker,omitempty"`
	Factor string      `json:"factor,omitempty"`
	Status CheckStatus `json:"status"`
	Value  float64     `json:"value"`
	Limit  float64     `json:"limit"`
	Reason string      `json:"reason,omitempty"`
}

// Report is the full compliance evaluation.
type Report struct {
	Checks     []Check `json:"checks"`
	Violations int     `json:"violations"`
}

// Evaluator compares risk output against limits.
type Evaluator struct {
	log zerolog.Logger
	// lookbackMonths bounds the search for each proxy's worst monthly loss.
	lookbackMonths int
}

// NewEvaluator creates a compliance evaluator. lookbackYears bounds the
// historical window used to derive per-factor beta limits (default 10).
func NewEvaluator(lookbackYears int, log zerolog.Logger) *Evaluator {
	if lookbackYears < 1 {
		lookbackYears = 10
	}
	return &Evaluator{
		log:            log.With().Str("component", "compliance").Logger(),
		lookbackMonths: lookbackYears * 12,
	}
}

// MaxFactorBeta derives the maximum allowable beta against one factor:
// max_beta = max_single_factor_loss / |worst historical monthly loss| of
// the factor proxy over the lookback window. The second return value is
// false when the proxy has no loss month in the window, in which case the
// beta check is skipped rather than guessed.
func (e *Evaluator) MaxFactorBeta(maxLoss float64, proxy domain.Series) (float64, bool) {
	if maxLoss <= 0 || proxy.Len() == 0 {
		return 0, false
	}

	values := proxy.Values
	if len(values) > e.lookbackMonths {
		values = values[len(values)-e.lookbackMonths:]
	}

	worst := 0.0
	for _, r := range values {
		if r < worst {
			worst = r
		}
	}
	if worst >= 0 {
		return 0, false
	}

	return maxLoss / -worst, true
}

// Evaluate runs every enabled check against the computed figures. Betas
// absent from the table are not checked at all; their absence already
// encodes "insufficient data".
func (e *Evaluator) Evaluate(
	annualizedVol float64,
	betas domain.FactorBetaTable,
	hhi float64,
	proxies domain.FactorSet,
	limits RiskLimits,
) Report {
	report := Report{Checks: make([]Check, 0)}

	if limits.MaxVolatility > 0 {
		report.Checks = append(report.Checks, Check{
			Name:   "portfolio_volatility",
			Status: passFail(annualizedVol <= limits.MaxVolatility),
			Value:  annualizedVol,
			Limit:  limits.MaxVolatility,
		})
	}

	if limits.MaxConcentration > 0 {
		report.Checks = append(report.Checks, Check{
			Name:   "concentration",
			Status: passFail(hhi <= limits.MaxConcentration),
			Value:  hhi,
			Limit:  limits.MaxConcentration,
		})
	}

	if limits.MaxSingleFactorLoss > 0 {
		report.Checks = append(report.Checks, e.factorBetaChecks(betas, proxies, limits.MaxSingleFactorLoss)...)
	}

	for _, c := range report.Checks {
		if c.Status == StatusFail {
			report.Violations++
		}
	}

	if report.Violations > 0 {
		e.log.Warn().Int("violations", report.Violations).Msg("Risk limit violations detected")
	}

	return report
}

// factorBetaChecks evaluates |beta| against the derived per-factor limit
// for every fitted (asset, factor) pair, in deterministic order.
func (e *Evaluator) factorBetaChecks(
	betas domain.FactorBetaTable,
	proxies domain.FactorSet,
	maxLoss float64,
) []Check {
	tickers := make([]string, 0, len(betas))
	for t := range betas {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	checks := make([]Check, 0)
	for _, ticker := range tickers {
		row := betas[ticker]

		factors := make([]string, 0, len(row))
		for f := range row {
			factors = append(factors, f)
		}
		sort.Strings(factors)

		for _, factor := range factors {
			proxy, ok := proxies[factor]
			if !ok {
				checks = append(checks, Check{
					Name:   "factor_beta",
					Ticker: ticker,
					Factor: factor,
					Status: StatusSkipped,
					Reason: "no proxy series for factor",
				})
				continue
			}

			maxBeta, ok := e.MaxFactorBeta(maxLoss, proxy)
			if !ok {
				checks = append(checks, Check{
					Name:   "factor_beta",
					Ticker: ticker,
					Factor: factor,
					Status: StatusSkipped,
					Reason: "no historical loss month in lookback window",
				})
				continue
			}

			beta := row[factor].Beta
			absBeta := beta
			if absBeta < 0 {
				absBeta = -absBeta
			}
			checks = append(checks, Check{
				Name:   "factor_beta",
				Ticker: ticker,
				Factor: factor,
				Status: passFail(absBeta <= maxBeta),
				Value:  beta,
				Limit:  maxBeta,
			})
		}
	}

	return checks
}

func passFail(ok bool) CheckStatus {
	if ok {
		return StatusPass
	}
	return StatusFail
}

// WorstMonthlyLoss reports the most negative monthly return of a series,
// or 0 when the series never lost.
func WorstMonthlyLoss(s domain.Series) float64 {
	worst := 0.0
	for _, r := range s.Values {
		if r < worst {
			worst = r
		}
	}
	return worst
}
