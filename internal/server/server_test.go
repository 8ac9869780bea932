package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-risk/internal/cache"
	"github.com/aristath/portfolio-risk/internal/config"
	"github.com/aristath/portfolio-risk/internal/database"
	"github.com/aristath/portfolio-risk/internal/domain"
	"github.com/aristath/portfolio-risk/internal/modules/analysis"
	"github.com/aristath/portfolio-risk/internal/modules/compliance"
	"github.com/aristath/portfolio-risk/internal/modules/history"
	"github.com/aristath/portfolio-risk/internal/modules/proxies"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()
	log := zerolog.Nop()

	historyDB, err := database.New(database.Config{
		Path: filepath.Join(dir, "history.db"), Profile: database.ProfileStandard, Name: "history",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = historyDB.Close() })
	require.NoError(t, historyDB.Migrate())

	cacheDB, err := database.New(database.Config{
		Path: filepath.Join(dir, "cache.db"), Profile: database.ProfileCache, Name: "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cacheDB.Close() })
	require.NoError(t, cacheDB.Migrate())

	cfg := &config.Config{
		Analysis: config.AnalysisConfig{
			NormalizeWeights:        true,
			MinObservations:         12,
			RateMinObservations:     6,
			ComplianceLookbackYears: 10,
		},
	}

	store := history.NewStore(historyDB, log)
	seedHistory(t, store)

	return New(Config{
		Log:       log,
		HistoryDB: historyDB,
		CacheDB:   cacheDB,
		Config:    cfg,
		Port:      0,
		Analysis:  analysis.NewService(cfg.Analysis, log),
		History:   store,
		Cache:     cache.NewStore(cacheDB, time.Hour, log),
		Proxies:   proxies.NewResolver(nil, log),
	})
}

// seedHistory stores 25 months of closes: SPY trending with drawdowns,
// AAPL tracking SPY with 1.2x amplitude, SGOV flat.
func seedHistory(t *testing.T, store *history.Store) {
	t.Helper()
	ctx := context.Background()

	n := 25
	dates := make([]string, n)
	spy := make([]float64, n)
	aapl := make([]float64, n)
	sgov := make([]float64, n)

	year, month := 2022, 1
	spy[0], aapl[0], sgov[0] = 400, 150, 100
	for i := 0; i < n; i++ {
		dates[i] = fmt.Sprintf("%04d-%02d", year, month)
		month++
		if month > 12 {
			month = 1
			year++
		}
		if i == 0 {
			continue
		}
		r := 0.02
		if i%3 == 0 {
			r = -0.03
		}
		spy[i] = spy[i-1] * (1 + r)
		aapl[i] = aapl[i-1] * (1 + 1.2*r)
		sgov[i] = 100
	}

	require.NoError(t, store.UpsertPrices(ctx, "SPY", domain.Series{Dates: dates, Values: spy}))
	require.NoError(t, store.UpsertPrices(ctx, "AAPL", domain.Series{Dates: dates, Values: aapl}))
	require.NoError(t, store.UpsertPrices(ctx, "SGOV", domain.Series{Dates: dates, Values: sgov}))
}

func postJSON(t *testing.T, srv *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleAnalysis(t *testing.T) {
	srv := newTestServer(t)

	rec := postJSON(t, srv, "/api/analysis", AnalysisRequest{
		Weights: domain.WeightVector{"AAPL": 0.6, "SGOV": 0.4},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AnalysisResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.False(t, resp.Cached)
	require.NotNil(t, resp.Report)
	assert.InDelta(t, 0.52, resp.Report.Herfindahl, 1e-9)
	assert.Contains(t, resp.Report.Betas, "AAPL")

	// Same request again is served from cache with an identical report but
	// a fresh run id.
	rec2 := postJSON(t, srv, "/api/analysis", AnalysisRequest{
		Weights: domain.WeightVector{"AAPL": 0.6, "SGOV": 0.4},
	})
	require.Equal(t, http.StatusOK, rec2.Code)

	var resp2 AnalysisResponse
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &resp2))
	assert.True(t, resp2.Cached)
	assert.NotEqual(t, resp.RunID, resp2.RunID)
	assert.Equal(t, resp.Report.Decomposition, resp2.Report.Decomposition)
}

func TestHandleAnalysis_MomentumSleeveFallback(t *testing.T) {
	srv := newTestServer(t)

	// No MTUM history is seeded, so the momentum factor comes from the
	// sleeve ranked over the portfolio's own holdings (both non-flat).
	rec := postJSON(t, srv, "/api/analysis", AnalysisRequest{
		Weights: domain.WeightVector{"AAPL": 0.5, "SPY": 0.5},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AnalysisResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Report)
	require.Contains(t, resp.Report.FactorVols, domain.FactorMomentum)
	assert.Greater(t, resp.Report.FactorVols[domain.FactorMomentum], 0.0)
}

func TestHandleAnalysis_BadRequests(t *testing.T) {
	srv := newTestServer(t)

	rec := postJSON(t, srv, "/api/analysis", AnalysisRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/analysis", bytes.NewReader([]byte("not json")))
	out := httptest.NewRecorder()
	srv.Router().ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)
}

func TestHandleAnalysis_NoCoverage(t *testing.T) {
	srv := newTestServer(t)

	rec := postJSON(t, srv, "/api/analysis", AnalysisRequest{
		Weights: domain.WeightVector{"GHOST": 1.0},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleWhatIf(t *testing.T) {
	srv := newTestServer(t)

	rec := postJSON(t, srv, "/api/analysis/whatif", WhatIfRequest{
		AnalysisRequest: AnalysisRequest{
			Weights: domain.WeightVector{"AAPL": 0.6, "SGOV": 0.4},
		},
		ScenarioWeights: domain.WeightVector{"AAPL": 0.8, "SGOV": 0.2},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Diff analysis.ScenarioDiff `json:"diff"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 0.16, resp.Diff.HerfindahlDelta, 1e-9)
	assert.Greater(t, resp.Diff.VolatilityDelta, 0.0)
}

func TestHandleCompliance(t *testing.T) {
	srv := newTestServer(t)

	rec := postJSON(t, srv, "/api/compliance", AnalysisRequest{
		Weights: domain.WeightVector{"AAPL": 0.6, "SGOV": 0.4},
		Limits:  compliance.RiskLimits{MaxConcentration: 0.5},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Violations int `json:"violations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	// HHI 0.52 breaches the 0.5 concentration ceiling.
	assert.Equal(t, 1, resp.Violations)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHandleTriggerSync_Unconfigured(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/system/sync", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
