package compliance

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-risk/internal/domain"
)

func monthlyDates(n int) []string {
	dates := make([]string, n)
	year, month := 2020, 1
	for i := 0; i < n; i++ {
		dates[i] = fmt.Sprintf("%04d-%02d", year, month)
		month++
		if month > 12 {
			month = 1
			year++
		}
	}
	return dates
}

func TestMaxFactorBeta(t *testing.T) {
	e := NewEvaluator(10, zerolog.Nop())

	// Worst monthly loss -8% with a tolerated single-factor loss of 12%
	// allows beta up to 1.5.
	proxy := domain.Series{
		Dates:  monthlyDates(4),
		Values: []float64{0.02, -0.08, 0.01, -0.03},
	}

	maxBeta, ok := e.MaxFactorBeta(0.12, proxy)
	require.True(t, ok)
	assert.InDelta(t, 1.5, maxBeta, 1e-12)
}

func TestMaxFactorBeta_NoLossMonthSkips(t *testing.T) {
	e := NewEvaluator(10, zerolog.Nop())

	proxy := domain.Series{
		Dates:  monthlyDates(3),
		Values: []float64{0.01, 0.02, 0.0},
	}

	_, ok := e.MaxFactorBeta(0.12, proxy)
	assert.False(t, ok)

	_, ok = e.MaxFactorBeta(0.12, domain.Series{})
	assert.False(t, ok)
}

func TestMaxFactorBeta_LookbackWindowBoundsHistory(t *testing.T) {
	// One-year lookback: a catastrophic month outside the window is
	// ignored.
	e := NewEvaluator(1, zerolog.Nop())

	n := 24
	values := make([]float64, n)
	values[0] = -0.50 // ancient crash, outside the 12-month window
	for i := 1; i < n; i++ {
		values[i] = 0.01
	}
	values[n-1] = -0.05 // worst loss inside the window

	proxy := domain.Series{Dates: monthlyDates(n), Values: values}

	maxBeta, ok := e.MaxFactorBeta(0.10, proxy)
	require.True(t, ok)
	assert.InDelta(t, 2.0, maxBeta, 1e-12)
}

func TestEvaluate_VolatilityAndConcentration(t *testing.T) {
	e := NewEvaluator(10, zerolog.Nop())

	report := e.Evaluate(
		0.25, // annualized vol
		domain.FactorBetaTable{},
		0.52, // HHI
		domain.FactorSet{},
		RiskLimits{MaxVolatility: 0.20, MaxConcentration: 0.60},
	)

	require.Len(t, report.Checks, 2)
	assert.Equal(t, 1, report.Violations)

	byName := map[string]Check{}
	for _, c := range report.Checks {
		byName[c.Name] = c
	}
	assert.Equal(t, StatusFail, byName["portfolio_volatility"].Status)
	assert.Equal(t, StatusPass, byName["concentration"].Status)
}

func TestEvaluate_FactorBetaChecks(t *testing.T) {
	e := NewEvaluator(10, zerolog.Nop())

	betas := domain.FactorBetaTable{
		"AAPL": {
			domain.FactorMarket: {Beta: 2.0},
		},
		"SGOV": {
			domain.FactorMarket: {Beta: 0.1},
		},
	}
	proxies := domain.FactorSet{
		domain.FactorMarket: {
			Dates:  monthlyDates(4),
			Values: []float64{0.02, -0.10, 0.01, 0.03},
		},
	}

	// max_beta = 0.10 / 0.10 = 1.0
	report := e.Evaluate(0.0, betas, 0.0, proxies, RiskLimits{MaxSingleFactorLoss: 0.10})

	require.Len(t, report.Checks, 2)
	assert.Equal(t, 1, report.Violations)

	// Deterministic order: AAPL before SGOV.
	assert.Equal(t, "AAPL", report.Checks[0].Ticker)
	assert.Equal(t, StatusFail, report.Checks[0].Status)
	assert.Equal(t, StatusPass, report.Checks[1].Status)
	assert.InDelta(t, 1.0, report.Checks[0].Limit, 1e-12)
}

func TestEvaluate_SkipsAreNotViolations(t *testing.T) {
	e := NewEvaluator(10, zerolog.Nop())

	betas := domain.FactorBetaTable{
		"AAPL": {
			domain.FactorMomentum: {Beta: 3.0},
		},
	}
	// No proxy series for momentum: the check is skipped, not failed, and
	// never divides by zero.
	report := e.Evaluate(0.0, betas, 0.0, domain.FactorSet{}, RiskLimits{MaxSingleFactorLoss: 0.10})

	require.Len(t, report.Checks, 1)
	assert.Equal(t, StatusSkipped, report.Checks[0].Status)
	assert.Equal(t, 0, report.Violations)
}

func TestEvaluate_ZeroVariancePortfolioDoesNotDivideByZero(t *testing.T) {
	e := NewEvaluator(10, zerolog.Nop())

	// Flat proxy (never lost): every beta check skips.
	proxies := domain.FactorSet{
		domain.FactorMarket: {
			Dates:  monthlyDates(3),
			Values: []float64{0.0, 0.0, 0.0},
		},
	}
	betas := domain.FactorBetaTable{
		"CASH": {domain.FactorMarket: {Beta: 0.0}},
	}

	report := e.Evaluate(0.0, betas, 1.0, proxies, RiskLimits{
		MaxVolatility:       0.20,
		MaxSingleFactorLoss: 0.10,
		MaxConcentration:    1.0,
	})

	assert.Equal(t, 0, report.Violations)
	for _, c := range report.Checks {
		assert.NotEqual(t, StatusFail, c.Status)
	}
}

func TestWorstMonthlyLoss(t *testing.T) {
	s := domain.Series{Values: []float64{0.02, -0.07, 0.01, -0.03}}
	assert.InDelta(t, -0.07, WorstMonthlyLoss(s), 1e-12)

	flat := domain.Series{Values: []float64{0.01, 0.02}}
	assert.Equal(t, 0.0, WorstMonthlyLoss(flat))
}
