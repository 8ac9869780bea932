// Package history persists monthly market history: adjusted closes per
// ticker and yield-curve levels per maturity. It is the single on-disk
// source the analysis pipeline reads series from.
package history

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-risk/internal/database"
	"github.com/aristath/portfolio-risk/internal/domain"
)

// Store is the repository over the history database.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore creates a history store.
func NewStore(db *database.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "history").Logger(),
	}
}

// UpsertPrices writes one ticker's monthly closes, replacing existing rows
// for the same months. The whole batch commits or none of it does.
func (s *Store) UpsertPrices(ctx context.Context, ticker string, series domain.Series) error {
	if len(series.Dates) != len(series.Values) {
		return fmt.Errorf("series for %s has %d dates but %d values", ticker, len(series.Dates), len(series.Values))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin price upsert for %s: %w", ticker, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO monthly_prices (ticker, month, close, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(ticker, month) DO UPDATE SET
			close = excluded.close,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare price upsert: %w", err)
	}
	defer stmt.Close()

	for i, month := range series.Dates {
		if _, err := stmt.ExecContext(ctx, ticker, month, series.Values[i]); err != nil {
			return fmt.Errorf("failed to upsert price %s %s: %w", ticker, month, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit price upsert for %s: %w", ticker, err)
	}

	s.log.Debug().Str("ticker", ticker).Int("months", series.Len()).Msg("Upserted monthly prices")
	return nil
}

// Prices reads one ticker's monthly closes in [from, to] inclusive,
// ordered by month. Empty bounds mean unbounded.
func (s *Store) Prices(ctx context.Context, ticker, from, to string) (domain.Series, error) {
	query := "SELECT month, close FROM monthly_prices WHERE ticker = ?"
	args := []interface{}{ticker}
	if from != "" {
		query += " AND month >= ?"
		args = append(args, from)
	}
	if to != "" {
		query += " AND month <= ?"
		args = append(args, to)
	}
	query += " ORDER BY month ASC"

	return s.querySeries(ctx, query, args...)
}

// UpsertYields writes one maturity bucket's monthly yield levels
// (percentage units).
func (s *Store) UpsertYields(ctx context.Context, maturity string, series domain.Series) error {
	if len(series.Dates) != len(series.Values) {
		return fmt.Errorf("series for %s has %d dates but %d values", maturity, len(series.Dates), len(series.Values))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin yield upsert for %s: %w", maturity, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO monthly_yields (maturity, month, level, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(maturity, month) DO UPDATE SET
			level = excluded.level,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare yield upsert: %w", err)
	}
	defer stmt.Close()

	for i, month := range series.Dates {
		if _, err := stmt.ExecContext(ctx, maturity, month, series.Values[i]); err != nil {
			return fmt.Errorf("failed to upsert yield %s %s: %w", maturity, month, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit yield upsert for %s: %w", maturity, err)
	}

	s.log.Debug().Str("maturity", maturity).Int("months", series.Len()).Msg("Upserted monthly yields")
	return nil
}

// Yields reads one maturity bucket's yield levels in [from, to] inclusive.
func (s *Store) Yields(ctx context.Context, maturity, from, to string) (domain.Series, error) {
	query := "SELECT month, level FROM monthly_yields WHERE maturity = ?"
	args := []interface{}{maturity}
	if from != "" {
		query += " AND month >= ?"
		args = append(args, from)
	}
	if to != "" {
		query += " AND month <= ?"
		args = append(args, to)
	}
	query += " ORDER BY month ASC"

	return s.querySeries(ctx, query, args...)
}

// YieldCurve reads every stored maturity bucket over one window.
func (s *Store) YieldCurve(ctx context.Context, from, to string) (domain.RateFactorSet, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT maturity FROM monthly_yields ORDER BY maturity")
	if err != nil {
		return nil, fmt.Errorf("failed to list maturities: %w", err)
	}
	defer rows.Close()

	maturities := make([]string, 0)
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("failed to scan maturity: %w", err)
		}
		maturities = append(maturities, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	curve := make(domain.RateFactorSet, len(maturities))
	for _, m := range maturities {
		series, err := s.Yields(ctx, m, from, to)
		if err != nil {
			return nil, err
		}
		if series.Len() > 0 {
			curve[m] = series
		}
	}
	return curve, nil
}

// Tickers lists every ticker with stored prices.
func (s *Store) Tickers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT ticker FROM monthly_prices ORDER BY ticker")
	if err != nil {
		return nil, fmt.Errorf("failed to list tickers: %w", err)
	}
	defer rows.Close()

	tickers := make([]string, 0)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

func (s *Store) querySeries(ctx context.Context, query string, args ...interface{}) (domain.Series, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.Series{}, fmt.Errorf("failed to query series: %w", err)
	}
	defer rows.Close()

	series := domain.Series{
		Dates:  make([]string, 0),
		Values: make([]float64, 0),
	}
	for rows.Next() {
		var month string
		var value float64
		if err := rows.Scan(&month, &value); err != nil {
			return domain.Series{}, fmt.Errorf("failed to scan series row: %w", err)
		}
		series.Dates = append(series.Dates, month)
		series.Values = append(series.Values, value)
	}
	return series, rows.Err()
}
