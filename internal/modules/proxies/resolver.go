// Package proxies resolves factor names to proxy return series: ETF
// proxies for the shared style factors and equal-weight peer composites
// for industry factors.
package proxies

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-risk/internal/domain"
	"github.com/aristath/portfolio-risk/internal/modules/returns"
	"github.com/aristath/portfolio-risk/pkg/formulas"
)

// Momentum-sleeve fallback defaults: rank on 12-month trailing
// rate-of-change, keep the top half.
const (
	DefaultMomentumLookback    = 12
	DefaultMomentumTopFraction = 0.5
)

// DefaultTickers maps each shared factor to its default ETF proxy.
func DefaultTickers() map[string]string {
	return map[string]string{
		domain.FactorMarket:   "SPY",
		domain.FactorMomentum: "MTUM",
		domain.FactorValue:    "VTV",
	}
}

// Resolver turns stored monthly closes into factor proxy return series.
type Resolver struct {
	log     zerolog.Logger
	builder *returns.Builder
	tickers map[string]string
}

// NewResolver creates a resolver. Pass nil tickers for the defaults.
func NewResolver(tickers map[string]string, log zerolog.Logger) *Resolver {
	if tickers == nil {
		tickers = DefaultTickers()
	}
	return &Resolver{
		log:     log.With().Str("component", "proxies").Logger(),
		builder: returns.NewBuilder(log),
		tickers: tickers,
	}
}

// Tickers returns the proxy ticker for every configured factor.
func (r *Resolver) Tickers() map[string]string {
	out := make(map[string]string, len(r.tickers))
	for factor, ticker := range r.tickers {
		out[factor] = ticker
	}
	return out
}

// FactorSet builds the shared factor proxy returns from monthly closes
// keyed by ticker. Factors whose proxy has no usable price history are
// absent from the result, not zero-filled.
func (r *Resolver) FactorSet(prices map[string]domain.Series) domain.FactorSet {
	set := make(domain.FactorSet)
	for factor, ticker := range r.tickers {
		closes, ok := prices[ticker]
		if !ok {
			r.log.Debug().Str("factor", factor).Str("ticker", ticker).Msg("No prices for factor proxy")
			continue
		}
		rets := r.builder.FromPrices(closes)
		if rets.Len() == 0 {
			continue
		}
		set[factor] = rets
	}
	return set
}

// Composite builds an equal-weight peer composite return series from the
// peers' monthly closes. Peers with no usable returns are skipped; the
// composite covers the peers' common date window. Returns false when no
// peer survives.
func (r *Resolver) Composite(peerPrices map[string]domain.Series) (domain.Series, bool) {
	peerReturns := make(map[string]domain.Series)
	for ticker, closes := range peerPrices {
		rets := r.builder.FromPrices(closes)
		if rets.Len() == 0 {
			continue
		}
		peerReturns[ticker] = rets
	}
	if len(peerReturns) == 0 {
		return domain.Series{}, false
	}

	table := returns.AlignTable(peerReturns)
	if len(table.Dates) == 0 {
		return domain.Series{}, false
	}

	n := float64(len(table.Data))
	composite := domain.Series{
		Dates:  table.Dates,
		Values: make([]float64, len(table.Dates)),
	}
	for _, values := range table.Data {
		for i, v := range values {
			composite.Values[i] += v / n
		}
	}
	return composite, true
}

// MomentumComposite builds a momentum sleeve from a peer universe: peers
// are ranked by trailing rate-of-change over the lookback and the top
// fraction is combined equal-weight. Used as the momentum proxy when no
// momentum ETF history is available. Returns false when too few peers
// carry enough history to rank.
func (r *Resolver) MomentumComposite(
	peerPrices map[string]domain.Series,
	lookback int,
	topFraction float64,
) (domain.Series, bool) {
	if topFraction <= 0 || topFraction > 1 {
		topFraction = 0.5
	}

	type ranked struct {
		ticker string
		roc    float64
	}
	candidates := make([]ranked, 0, len(peerPrices))
	for ticker, closes := range peerPrices {
		roc := formulas.MomentumROC(closes.Values, lookback)
		if len(roc) == 0 || roc[len(roc)-1] == 0 {
			continue
		}
		candidates = append(candidates, ranked{ticker: ticker, roc: roc[len(roc)-1]})
	}
	if len(candidates) < 2 {
		return domain.Series{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].roc != candidates[j].roc {
			return candidates[i].roc > candidates[j].roc
		}
		return candidates[i].ticker < candidates[j].ticker
	})

	keep := int(float64(len(candidates)) * topFraction)
	if keep < 1 {
		keep = 1
	}

	winners := make(map[string]domain.Series, keep)
	for _, c := range candidates[:keep] {
		winners[c.ticker] = peerPrices[c.ticker]
	}

	r.log.Debug().
		Int("universe", len(candidates)).
		Int("winners", keep).
		Msg("Built momentum composite")

	return r.Composite(winners)
}
