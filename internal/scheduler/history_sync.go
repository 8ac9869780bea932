package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-risk/internal/domain"
)

// PriceFetcher is the market-data surface the sync job needs.
type PriceFetcher interface {
	BatchMonthlyCloses(symbols []string, period string) (map[string]domain.Series, error)
	MonthlyYields(period string) (domain.RateFactorSet, error)
}

// HistoryWriter is the persistence surface the sync job needs.
type HistoryWriter interface {
	UpsertPrices(ctx context.Context, ticker string, series domain.Series) error
	UpsertYields(ctx context.Context, maturity string, series domain.Series) error
}

// HistorySyncConfig wires a history sync job.
type HistorySyncConfig struct {
	Fetcher PriceFetcher
	Store   HistoryWriter
	// Symbols supplies the tickers to sync on each run: portfolio holdings
	// plus the factor proxy tickers.
	Symbols func() ([]string, error)
	// Period is the Yahoo period string to fetch, e.g. "10y".
	Period  string
	Timeout time.Duration
	Log     zerolog.Logger
}

// HistorySyncJob refreshes monthly closes and yield levels in the history
// database. A symbol that fails to sync is logged and skipped; the run
// only errors when nothing could be fetched at all.
type HistorySyncJob struct {
	cfg HistorySyncConfig
	log zerolog.Logger
}

// NewHistorySyncJob creates the monthly history sync job.
func NewHistorySyncJob(cfg HistorySyncConfig) *HistorySyncJob {
	if cfg.Period == "" {
		cfg.Period = "10y"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &HistorySyncJob{
		cfg: cfg,
		log: cfg.Log.With().Str("job", "history_sync").Logger(),
	}
}

// Name implements Job.
func (j *HistorySyncJob) Name() string {
	return "history_sync"
}

// Run implements Job.
func (j *HistorySyncJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.cfg.Timeout)
	defer cancel()

	symbols, err := j.cfg.Symbols()
	if err != nil {
		return fmt.Errorf("failed to resolve symbols to sync: %w", err)
	}

	synced := 0
	if len(symbols) > 0 {
		prices, err := j.cfg.Fetcher.BatchMonthlyCloses(symbols, j.cfg.Period)
		if err != nil {
			return fmt.Errorf("failed to fetch monthly closes: %w", err)
		}
		for ticker, series := range prices {
			if err := j.cfg.Store.UpsertPrices(ctx, ticker, series); err != nil {
				j.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to store prices")
				continue
			}
			synced++
		}
	}

	curve, err := j.cfg.Fetcher.MonthlyYields(j.cfg.Period)
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to fetch yield curve, keeping stored levels")
	}
	for maturity, series := range curve {
		if err := j.cfg.Store.UpsertYields(ctx, maturity, series); err != nil {
			j.log.Error().Err(err).Str("maturity", maturity).Msg("Failed to store yields")
			continue
		}
		synced++
	}

	if synced == 0 {
		return fmt.Errorf("history sync stored nothing for %d symbols", len(symbols))
	}

	j.log.Info().
		Int("symbols", len(symbols)).
		Int("series_synced", synced).
		Msg("History sync completed")
	return nil
}
