package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-risk/internal/database"
)

// Store is a TTL-bounded key/value cache backed by the cache database.
type Store struct {
	db  *database.DB
	log zerolog.Logger
	ttl time.Duration
	now func() time.Time
}

// NewStore creates a result cache with the given entry TTL.
func NewStore(db *database.DB, ttl time.Duration, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "cache").Logger(),
		ttl: ttl,
		now: time.Now,
	}
}

// Get returns the cached payload for a key, or false when absent or
// expired. Expired entries are treated as misses; Purge removes them.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var payload string
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT payload, expires_at FROM result_cache WHERE key = ?", key,
	).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if s.now().Unix() >= expiresAt {
		return "", false, nil
	}

	s.log.Debug().Str("key", key).Msg("Cache hit")
	return payload, true, nil
}

// Set stores a payload under a key, replacing any previous entry.
func (s *Store) Set(ctx context.Context, key, payload string) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO result_cache (key, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`, key, payload, now.Unix(), now.Add(s.ttl).Unix())
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Purge deletes expired entries and returns how many were removed.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM result_cache WHERE expires_at <= ?", s.now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.log.Info().Int64("removed", removed).Msg("Purged expired cache entries")
	}
	return removed, nil
}
