package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/portfolio-risk/internal/cache"
	"github.com/aristath/portfolio-risk/internal/domain"
	"github.com/aristath/portfolio-risk/internal/modules/analysis"
	"github.com/aristath/portfolio-risk/internal/modules/compliance"
	"github.com/aristath/portfolio-risk/internal/modules/proxies"
)

// AnalysisRequest is the body of POST /api/analysis.
type AnalysisRequest struct {
	Weights domain.WeightVector `json:"weights"`
	// From/To bound the analysis window ("YYYY-MM", inclusive). Empty
	// means the full stored history.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
	// RateSensitive lists tickers that get the yield-curve regression.
	RateSensitive []string `json:"rate_sensitive,omitempty"`
	// IndustryPeers maps ticker to its industry peer tickers; peers with
	// stored history become the asset's equal-weight industry composite.
	IndustryPeers map[string][]string   `json:"industry_peers,omitempty"`
	Limits        compliance.RiskLimits `json:"limits,omitempty"`
	// SkipCache forces recomputation.
	SkipCache bool `json:"skip_cache,omitempty"`
}

// WhatIfRequest is the body of POST /api/analysis/whatif.
type WhatIfRequest struct {
	AnalysisRequest
	ScenarioWeights domain.WeightVector `json:"scenario_weights"`
}

// AnalysisResponse wraps a report with its run metadata. The report is
// deterministic per inputs; the run id and timestamp are per request.
type AnalysisResponse struct {
	RunID       string           `json:"run_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Cached      bool             `json:"cached"`
	Report      *analysis.Report `json:"report"`
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	var req AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Weights) == 0 {
		s.respondError(w, http.StatusBadRequest, "weights are required")
		return
	}

	key := cache.AnalysisKey(req.Weights, s.cacheSettings(req), req.From, req.To)

	if !req.SkipCache {
		if payload, ok, err := s.cache.Get(r.Context(), key); err == nil && ok {
			var report analysis.Report
			if uerr := json.Unmarshal([]byte(payload), &report); uerr != nil {
				s.log.Warn().Err(uerr).Str("key", key).Msg("Discarding undecodable cache entry")
			} else {
				s.respondJSON(w, http.StatusOK, AnalysisResponse{
					RunID:       uuid.New().String(),
					GeneratedAt: time.Now().UTC(),
					Cached:      true,
					Report:      &report,
				})
				return
			}
		}
	}

	input, err := s.buildInput(r, req)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.analysis.Analyze(input)
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if payload, err := json.Marshal(report); err == nil {
		if err := s.cache.Set(r.Context(), key, string(payload)); err != nil {
			s.log.Warn().Err(err).Msg("Failed to cache analysis report")
		}
	}

	s.respondJSON(w, http.StatusOK, AnalysisResponse{
		RunID:       uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
		Report:      report,
	})
}

func (s *Server) handleWhatIf(w http.ResponseWriter, r *http.Request) {
	var req WhatIfRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Weights) == 0 || len(req.ScenarioWeights) == 0 {
		s.respondError(w, http.StatusBadRequest, "weights and scenario_weights are required")
		return
	}

	input, err := s.buildInput(r, req.AnalysisRequest)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	diff, err := s.analysis.WhatIf(input, req.ScenarioWeights)
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":       uuid.New().String(),
		"generated_at": time.Now().UTC(),
		"diff":         diff,
	})
}

func (s *Server) handleCompliance(w http.ResponseWriter, r *http.Request) {
	var req AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Weights) == 0 {
		s.respondError(w, http.StatusBadRequest, "weights are required")
		return
	}

	input, err := s.buildInput(r, req)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.analysis.Analyze(input)
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":     uuid.New().String(),
		"compliance": report.Compliance,
		"violations": report.Compliance.Violations,
	})
}

// buildInput loads the stored series an analysis request needs: asset
// returns, factor proxy returns, per-asset industry composites and the
// yield curve for rate-sensitive tickers.
func (s *Server) buildInput(r *http.Request, req AnalysisRequest) (analysis.Input, error) {
	ctx := r.Context()

	assetReturns := make(map[string]domain.Series, len(req.Weights))
	assetPrices := make(map[string]domain.Series, len(req.Weights))
	for ticker := range req.Weights {
		prices, err := s.history.Prices(ctx, ticker, req.From, req.To)
		if err != nil {
			return analysis.Input{}, fmt.Errorf("failed to load prices for %s: %w", ticker, err)
		}
		assetPrices[ticker] = prices
		assetReturns[ticker] = s.builder.FromPrices(prices)
	}

	proxyPrices := make(map[string]domain.Series)
	for _, proxyTicker := range s.proxies.Tickers() {
		prices, err := s.history.Prices(ctx, proxyTicker, req.From, req.To)
		if err != nil {
			return analysis.Input{}, fmt.Errorf("failed to load prices for proxy %s: %w", proxyTicker, err)
		}
		if prices.Len() > 0 {
			proxyPrices[proxyTicker] = prices
		}
	}
	factorSet := s.proxies.FactorSet(proxyPrices)

	// No momentum ETF history stored: fall back to a momentum sleeve
	// ranked from the portfolio's own holdings.
	if _, ok := factorSet[domain.FactorMomentum]; !ok {
		composite, ok := s.proxies.MomentumComposite(
			assetPrices, proxies.DefaultMomentumLookback, proxies.DefaultMomentumTopFraction)
		if ok {
			factorSet[domain.FactorMomentum] = composite
		}
	}

	assetProxies := make(map[string]domain.FactorSet)
	for ticker, peers := range req.IndustryPeers {
		peerPrices := make(map[string]domain.Series, len(peers))
		for _, peer := range peers {
			prices, err := s.history.Prices(ctx, peer, req.From, req.To)
			if err != nil {
				return analysis.Input{}, fmt.Errorf("failed to load prices for peer %s: %w", peer, err)
			}
			if prices.Len() > 0 {
				peerPrices[peer] = prices
			}
		}
		if composite, ok := s.proxies.Composite(peerPrices); ok {
			assetProxies[ticker] = domain.FactorSet{domain.FactorIndustry: composite}
		}
	}

	input := analysis.Input{
		Weights:      req.Weights,
		AssetReturns: assetReturns,
		Proxies:      factorSet,
		AssetProxies: assetProxies,
		Limits:       req.Limits,
	}

	if len(req.RateSensitive) > 0 {
		curve, err := s.history.YieldCurve(ctx, req.From, req.To)
		if err != nil {
			return analysis.Input{}, fmt.Errorf("failed to load yield curve: %w", err)
		}
		if len(curve) > 0 {
			input.YieldCurves = make(map[string]domain.RateFactorSet, len(req.RateSensitive))
			for _, ticker := range req.RateSensitive {
				input.YieldCurves[ticker] = curve
			}
		}
	}

	return input, nil
}

// cacheSettings collects every configuration value that changes analysis
// output, so config changes invalidate cached reports.
func (s *Server) cacheSettings(req AnalysisRequest) map[string]interface{} {
	return map[string]interface{}{
		"normalize_weights":         s.cfg.Analysis.NormalizeWeights,
		"min_observations":          s.cfg.Analysis.MinObservations,
		"rate_min_observations":     s.cfg.Analysis.RateMinObservations,
		"compliance_lookback_years": s.cfg.Analysis.ComplianceLookbackYears,
		"max_volatility":            req.Limits.MaxVolatility,
		"max_single_factor_loss":    req.Limits.MaxSingleFactorLoss,
		"max_concentration":         req.Limits.MaxConcentration,
		"rate_sensitive":            fmt.Sprintf("%v", req.RateSensitive),
		"industry_peers":            fmt.Sprintf("%v", req.IndustryPeers),
	}
}
