// Package yahoo fetches monthly price history from Yahoo Finance via the
// go-yfinance library. It is the engine's only market-data source; yield
// curve levels use the ^IRX/^FVX/^TNX/^TYX index symbols.
package yahoo

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/multi"
	"github.com/wnjoon/go-yfinance/pkg/ticker"

	"github.com/aristath/portfolio-risk/internal/domain"
)

// YieldSymbols maps maturity buckets to the Yahoo index symbols carrying
// their yield levels. The indices quote yield*10, rescaled on ingest.
func YieldSymbols() map[string]string {
	return map[string]string{
		"3M":  "^IRX",
		"5Y":  "^FVX",
		"10Y": "^TNX",
		"30Y": "^TYX",
	}
}

// yieldIndexScale converts the ^TNX-style quote (yield * 10) to percent.
const yieldIndexScale = 0.1

// Client fetches monthly history with retries.
type Client struct {
	log        zerolog.Logger
	maxRetries int
}

// NewClient creates a Yahoo Finance client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		log:        log.With().Str("client", "yahoo").Logger(),
		maxRetries: 3,
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// MonthlyCloses fetches adjusted monthly closes for one symbol over a
// Yahoo period string ("1y", "5y", "10y", "max"). Dates come back as
// "YYYY-MM", one bar per month.
func (c *Client) MonthlyCloses(symbol, period string) (domain.Series, error) {
	yahooSymbol := normalizeSymbol(symbol)

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			waitTime := time.Duration(1<<uint(attempt-1)) * time.Second
			c.log.Warn().
				Err(lastErr).
				Str("symbol", yahooSymbol).
				Int("attempt", attempt+1).
				Dur("wait", waitTime).
				Msg("Retrying monthly history fetch")
			time.Sleep(waitTime)
		}

		series, err := c.fetchMonthly(yahooSymbol, period)
		if err != nil {
			lastErr = err
			continue
		}
		return series, nil
	}

	return domain.Series{}, fmt.Errorf("failed to fetch monthly history for %s after %d attempts: %w",
		yahooSymbol, c.maxRetries, lastErr)
}

func (c *Client) fetchMonthly(yahooSymbol, period string) (domain.Series, error) {
	t, err := ticker.New(yahooSymbol)
	if err != nil {
		return domain.Series{}, fmt.Errorf("failed to create ticker: %w", err)
	}
	defer t.Close()

	bars, err := t.History(models.HistoryParams{
		Period:     period,
		Interval:   "1mo",
		AutoAdjust: true,
	})
	if err != nil {
		return domain.Series{}, fmt.Errorf("failed to get monthly history: %w", err)
	}

	return barsToSeries(bars), nil
}

// MonthlyYields fetches yield-curve levels (percent) for every maturity
// bucket. Missing buckets are skipped, not zero-filled.
func (c *Client) MonthlyYields(period string) (domain.RateFactorSet, error) {
	curve := make(domain.RateFactorSet)
	for maturity, symbol := range YieldSymbols() {
		series, err := c.MonthlyCloses(symbol, period)
		if err != nil {
			c.log.Warn().Err(err).Str("maturity", maturity).Msg("Failed to fetch yield index, skipping")
			continue
		}
		for i := range series.Values {
			series.Values[i] *= yieldIndexScale
		}
		if series.Len() > 0 {
			curve[maturity] = series
		}
	}
	if len(curve) == 0 {
		return nil, fmt.Errorf("no yield index returned data")
	}
	return curve, nil
}

// BatchMonthlyCloses fetches monthly closes for many symbols in one
// download. Symbols that error are absent from the result; the caller
// decides whether partial coverage is acceptable.
func (c *Client) BatchMonthlyCloses(symbols []string, period string) (map[string]domain.Series, error) {
	if len(symbols) == 0 {
		return map[string]domain.Series{}, nil
	}

	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		normalized = append(normalized, normalizeSymbol(s))
	}

	params := models.DefaultDownloadParams()
	params.Symbols = normalized
	params.Period = period
	params.Interval = "1mo"

	result, err := multi.Download(normalized, &params)
	if err != nil {
		return nil, fmt.Errorf("failed to download batch monthly history: %w", err)
	}

	out := make(map[string]domain.Series, len(normalized))
	for _, symbol := range normalized {
		if bars, ok := result.Data[symbol]; ok && len(bars) > 0 {
			out[symbol] = barsToSeries(bars)
		} else if barErr, ok := result.Errors[symbol]; ok {
			c.log.Warn().Err(barErr).Str("symbol", symbol).Msg("Failed to get monthly history for symbol")
		}
	}
	return out, nil
}

// barsToSeries collapses bars to one close per month. Yahoo occasionally
// returns a partial extra bar at the window edge; the last bar for a
// month wins.
func barsToSeries(bars []models.Bar) domain.Series {
	months := make([]string, 0, len(bars))
	byMonth := make(map[string]float64, len(bars))
	for _, bar := range bars {
		month := bar.Date.Format("2006-01")
		if _, seen := byMonth[month]; !seen {
			months = append(months, month)
		}
		byMonth[month] = bar.Close
	}

	series := domain.Series{
		Dates:  months,
		Values: make([]float64, len(months)),
	}
	for i, month := range months {
		series.Values[i] = byMonth[month]
	}
	return series
}
