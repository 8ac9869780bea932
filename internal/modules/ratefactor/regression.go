// Package ratefactor fits the joint yield-curve regression for
// rate-sensitive assets. Unlike the single-factor engine, all maturity
// regressors are fit simultaneously in one OLS, because key-rate betas are
// only meaningful relative to one another. Standard errors are
// heteroskedasticity/autocorrelation-consistent (Newey-West).
package ratefactor

import (
	"errors"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/portfolio-risk/internal/domain"
	"github.com/aristath/portfolio-risk/internal/modules/returns"
	"github.com/aristath/portfolio-risk/pkg/formulas"
)

// HighVIFThreshold marks a regressor as collinear enough to flag.
// Informational only, never fatal.
const HighVIFThreshold = 10.0

// VIFCap bounds reported variance inflation: encoding/json cannot
// represent +Inf, and anything near the cap is already unusable.
const VIFCap = 1e6

// YieldPercentToDecimal converts yield levels in percentage units into
// decimal-unit first differences.
const YieldPercentToDecimal = 0.01

// DefaultMinObservations gates the fit; below it rate analytics are omitted
// outright so downstream consumers can tell "not applicable" from "zero
// sensitivity".
const DefaultMinObservations = 6

// Engine fits the multivariate rate-factor regression.
type Engine struct {
	log             zerolog.Logger
	builder         *returns.Builder
	minObservations int
}

// NewEngine creates a rate-factor regression engine.
func NewEngine(minObservations int, log zerolog.Logger) *Engine {
	if minObservations < 2 {
		minObservations = DefaultMinObservations
	}
	return &Engine{
		log:             log.With().Str("component", "rate_factor_regression").Logger(),
		builder:         returns.NewBuilder(log),
		minObservations: minObservations,
	}
}

// Fit regresses asset returns jointly on the Δy series of every maturity
// bucket. Yield levels arrive in percentage units and are differenced to
// decimal Δy aligned to the asset's dates. Returns nil when the aligned
// window is below the observation minimum or the design matrix cannot
// support the fit.
func (e *Engine) Fit(ticker string, asset domain.Series, yields domain.RateFactorSet) *domain.RateFactorResult {
	if len(yields) == 0 || asset.Len() == 0 {
		return nil
	}

	// Stable regressor order for reproducible output.
	maturities := make([]string, 0, len(yields))
	for m := range yields {
		maturities = append(maturities, m)
	}
	sort.Strings(maturities)

	// Difference yield levels to decimal Δy, then align everything to one
	// common window.
	toAlign := map[string]domain.Series{"__asset__": asset}
	for _, m := range maturities {
		toAlign[m] = e.builder.Diff(yields[m], YieldPercentToDecimal)
	}
	table := returns.AlignTable(toAlign)

	n := len(table.Dates)
	p := len(maturities)
	if n < e.minObservations {
		e.log.Debug().
			Str("ticker", ticker).
			Int("observations", n).
			Int("min_observations", e.minObservations).
			Msg("Insufficient aligned observations for rate regression, omitting")
		return nil
	}
	if n <= p+1 {
		e.log.Warn().
			Str("ticker", ticker).
			Int("observations", n).
			Int("regressors", p).
			Msg("Too few observations for joint rate fit, omitting")
		return nil
	}

	y := table.Data["__asset__"]

	// Design matrix with intercept in column 0.
	x := mat.NewDense(n, p+1, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1.0)
		for j, m := range maturities {
			x.Set(i, j+1, table.Data[m][i])
		}
	}

	coefs, ok := solveOLS(x, y)
	if !ok {
		e.log.Warn().
			Str("ticker", ticker).
			Msg("Singular design matrix in rate regression, omitting")
		return nil
	}

	// Residuals and fit quality.
	residuals := make([]float64, n)
	fitted := make([]float64, n)
	for i := 0; i < n; i++ {
		pred := coefs[0]
		for j := 0; j < p; j++ {
			pred += coefs[j+1] * x.At(i, j+1)
		}
		fitted[i] = pred
		residuals[i] = y[i] - pred
	}
	r2 := rSquared(y, residuals)
	r2Adj := adjustedRSquared(r2, n, p)

	// Newey-West HAC covariance of the coefficient vector.
	se := neweyWestStdErrors(x, residuals, bartlettLag(n))

	betas := make(map[string]float64, p)
	stdErrors := make(map[string]float64, p)
	total := 0.0
	for j, m := range maturities {
		betas[m] = coefs[j+1]
		stdErrors[m] = se[j+1]
		total += coefs[j+1]
	}

	vif := e.varianceInflationFactors(ticker, table, maturities)

	cond := mat.Cond(x, 2)

	e.log.Debug().
		Str("ticker", ticker).
		Int("observations", n).
		Float64("r2_adj", r2Adj).
		Float64("condition_number", cond).
		Msg("Fitted rate-factor regression")

	return &domain.RateFactorResult{
		Betas:            betas,
		InterestRateBeta: total,
		StdErrors:        stdErrors,
		R2Adj:            r2Adj,
		ConditionNumber:  cond,
		VIF:              vif,
		Observations:     n,
	}
}

// solveOLS solves b = (X'X)^-1 X'y. Returns false on a singular design.
// A near-singular but invertible design proceeds; the caller's condition
// number and VIF diagnostics tell the consumer how much to trust it.
func solveOLS(x *mat.Dense, y []float64) ([]float64, bool) {
	n, k := x.Dims()

	var xtx mat.Dense
	xtx.Mul(x.T(), x)

	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err != nil && !recoverableCondition(err) {
		return nil, false
	}

	yVec := mat.NewVecDense(n, y)
	var xty mat.VecDense
	xty.MulVec(x.T(), yVec)

	var b mat.VecDense
	b.MulVec(&xtxInv, &xty)

	coefs := make([]float64, k)
	for i := 0; i < k; i++ {
		coefs[i] = b.AtVec(i)
	}
	return coefs, true
}

// recoverableCondition reports whether an inversion error is a finite
// condition-number warning (the inverse was still computed) rather than
// exact singularity.
func recoverableCondition(err error) bool {
	var cond mat.Condition
	if errors.As(err, &cond) {
		return !math.IsInf(float64(cond), 1)
	}
	return false
}

// bartlettLag is the standard Newey-West automatic lag: floor(4*(T/100)^(2/9)).
func bartlettLag(n int) int {
	return int(math.Floor(4.0 * math.Pow(float64(n)/100.0, 2.0/9.0)))
}

// neweyWestStdErrors computes HAC standard errors with Bartlett-kernel
// weights: Var(b) = (X'X)^-1 S (X'X)^-1 where
// S = Γ0 + Σ_{l=1..L} w_l (Γ_l + Γ_l') and w_l = 1 - l/(L+1).
func neweyWestStdErrors(x *mat.Dense, residuals []float64, lag int) []float64 {
	n, k := x.Dims()

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err != nil && !recoverableCondition(err) {
		// The caller already solved OLS on this design; an inversion
		// failure here means the matrix went numerically singular.
		// Surface as zero SEs rather than blocking the fit.
		return make([]float64, k)
	}

	s := mat.NewDense(k, k, nil)

	// Γ0: Σ_t x_t e_t² x_t'
	for t := 0; t < n; t++ {
		addOuterScaled(s, x, t, t, residuals[t]*residuals[t])
	}

	// Lagged terms with Bartlett weights.
	for l := 1; l <= lag && l < n; l++ {
		w := 1.0 - float64(l)/float64(lag+1)
		for t := l; t < n; t++ {
			scale := w * residuals[t] * residuals[t-l]
			addOuterScaled(s, x, t, t-l, scale)
			addOuterScaled(s, x, t-l, t, scale)
		}
	}

	var tmp, cov mat.Dense
	tmp.Mul(&xtxInv, s)
	cov.Mul(&tmp, &xtxInv)

	se := make([]float64, k)
	for i := 0; i < k; i++ {
		v := cov.At(i, i)
		if v > 0 {
			se[i] = math.Sqrt(v)
		}
	}
	return se
}

// addOuterScaled adds scale * x_rowA x_rowB' to dst.
func addOuterScaled(dst *mat.Dense, x *mat.Dense, rowA, rowB int, scale float64) {
	_, k := x.Dims()
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			dst.Set(i, j, dst.At(i, j)+scale*x.At(rowA, i)*x.At(rowB, j))
		}
	}
}

func rSquared(y, residuals []float64) float64 {
	meanY := formulas.Mean(y)
	var ssTot, ssRes float64
	for i := range y {
		d := y[i] - meanY
		ssTot += d * d
		ssRes += residuals[i] * residuals[i]
	}
	if ssTot <= 0 {
		return 0
	}
	r2 := 1.0 - ssRes/ssTot
	if r2 < 0 {
		return 0
	}
	return r2
}

func adjustedRSquared(r2 float64, n, p int) float64 {
	if n-p-1 <= 0 {
		return 0
	}
	adj := 1.0 - (1.0-r2)*float64(n-1)/float64(n-p-1)
	if adj < 0 {
		return 0
	}
	return adj
}

// varianceInflationFactors regresses each Δy regressor on the others.
// VIF_j = 1 / (1 - R_j²). A single-regressor design has VIF 1 by definition.
func (e *Engine) varianceInflationFactors(
	ticker string,
	table domain.SeriesTable,
	maturities []string,
) map[string]float64 {
	vif := make(map[string]float64, len(maturities))
	if len(maturities) == 1 {
		vif[maturities[0]] = 1.0
		return vif
	}

	n := len(table.Dates)
	for _, target := range maturities {
		others := make([]string, 0, len(maturities)-1)
		for _, m := range maturities {
			if m != target {
				others = append(others, m)
			}
		}

		x := mat.NewDense(n, len(others)+1, nil)
		for i := 0; i < n; i++ {
			x.Set(i, 0, 1.0)
			for j, m := range others {
				x.Set(i, j+1, table.Data[m][i])
			}
		}
		y := table.Data[target]

		coefs, ok := solveOLS(x, y)
		if !ok {
			vif[target] = VIFCap
			continue
		}

		residuals := make([]float64, n)
		for i := 0; i < n; i++ {
			pred := coefs[0]
			for j := range others {
				pred += coefs[j+1] * x.At(i, j+1)
			}
			residuals[i] = y[i] - pred
		}

		r2 := rSquared(y, residuals)
		if r2 >= 1.0 {
			vif[target] = VIFCap
		} else if v := 1.0 / (1.0 - r2); v > VIFCap {
			vif[target] = VIFCap
		} else {
			vif[target] = v
		}

		if vif[target] > HighVIFThreshold {
			e.log.Warn().
				Str("ticker", ticker).
				Str("maturity", target).
				Float64("vif", vif[target]).
				Msg("High variance inflation factor among rate regressors")
		}
	}

	return vif
}
