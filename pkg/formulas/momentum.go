package formulas

import (
	"github.com/markcheno/go-talib"
)

// MomentumROC computes the trailing rate-of-change series of monthly
// closes over the given lookback (12 for the standard 12-month momentum
// signal). The first lookback entries are zero while the window warms up.
// Output values are decimal returns, not percentages.
func MomentumROC(closes []float64, lookback int) []float64 {
	if lookback < 1 || len(closes) <= lookback {
		return make([]float64, len(closes))
	}

	roc := talib.Roc(closes, lookback)
	for i := range roc {
		roc[i] /= 100.0
	}
	return roc
}
