package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-risk/internal/database"
	"github.com/aristath/portfolio-risk/internal/domain"
)

func TestWeightsHash_Deterministic(t *testing.T) {
	a := domain.WeightVector{"AAPL": 0.6, "SGOV": 0.4}
	b := domain.WeightVector{"SGOV": 0.4, "AAPL": 0.6}

	assert.Equal(t, WeightsHash(a), WeightsHash(b))
	assert.Len(t, WeightsHash(a), 8)
	assert.Equal(t, "00000000", WeightsHash(domain.WeightVector{}))
}

func TestWeightsHash_SensitiveToChanges(t *testing.T) {
	base := domain.WeightVector{"AAPL": 0.6, "SGOV": 0.4}

	assert.NotEqual(t, WeightsHash(base), WeightsHash(domain.WeightVector{"AAPL": 0.61, "SGOV": 0.39}))
	assert.NotEqual(t, WeightsHash(base), WeightsHash(domain.WeightVector{"AAPL": 0.6}))

	// Sub-rounding jitter does not change the key.
	jittered := domain.WeightVector{"AAPL": 0.6 + 1e-9, "SGOV": 0.4}
	assert.Equal(t, WeightsHash(base), WeightsHash(jittered))
}

func TestAnalysisKey_CombinesAllInputs(t *testing.T) {
	weights := domain.WeightVector{"AAPL": 1.0}
	settings := map[string]interface{}{"min_observations": 12}

	key := AnalysisKey(weights, settings, "2020-01", "2024-12")
	assert.Len(t, key, 26)

	assert.NotEqual(t, key, AnalysisKey(weights, settings, "2020-01", "2025-01"))
	assert.NotEqual(t, key, AnalysisKey(weights, map[string]interface{}{"min_observations": 24}, "2020-01", "2024-12"))
}

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	return NewStore(db, ttl, zerolog.Nop())
}

func TestStore_RoundTrip(t *testing.T) {
	store := newTestStore(t, time.Hour)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "k1", `{"herfindahl":0.52}`))

	payload, ok, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"herfindahl":0.52}`, payload)

	// Overwrite replaces the payload.
	require.NoError(t, store.Set(ctx, "k1", `{"herfindahl":0.68}`))
	payload, ok, err = store.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"herfindahl":0.68}`, payload)
}

func TestStore_ExpiryAndPurge(t *testing.T) {
	store := newTestStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k1", "payload"))

	// Advance the clock past the TTL.
	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, ok, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := store.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
