// Package cache provides a content-addressed result cache for analysis
// output. Keys hash the canonical inputs, so changed weights, settings or
// history windows can never be served a stale payload.
package cache

import (
	"crypto/md5"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/aristath/portfolio-risk/internal/domain"
)

// WeightsHash generates a deterministic hash from a weight vector.
// Weights are rounded to 6 decimal places for stability and sorted by
// ticker for deterministic ordering. Returns the first 8 hex characters
// of the MD5.
func WeightsHash(weights domain.WeightVector) string {
	if len(weights) == 0 {
		return "00000000"
	}

	tickers := make([]string, 0, len(weights))
	for t := range weights {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	parts := make([]string, 0, len(tickers))
	for _, t := range tickers {
		rounded := math.Round(weights[t]*1e6) / 1e6
		parts = append(parts, fmt.Sprintf("%s:%.6f", strings.ToUpper(t), rounded))
	}

	return shortHash(strings.Join(parts, ","))
}

// SettingsHash generates a deterministic hash from the analysis settings
// that affect results.
func SettingsHash(settings map[string]interface{}) string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		value := ""
		if v := settings[k]; v != nil {
			value = fmt.Sprintf("%v", v)
		}
		parts = append(parts, fmt.Sprintf("%s:%s", k, value))
	}

	return shortHash(strings.Join(parts, ","))
}

// WindowHash generates a deterministic hash of the analysis window bounds.
func WindowHash(from, to string) string {
	return shortHash(fmt.Sprintf("%s..%s", from, to))
}

// AnalysisKey combines the weight, settings and window hashes into one
// cache key. Any change to positions, configuration or the history window
// yields a different key.
func AnalysisKey(weights domain.WeightVector, settings map[string]interface{}, from, to string) string {
	return fmt.Sprintf("%s:%s:%s", WeightsHash(weights), SettingsHash(settings), WindowHash(from, to))
}

func shortHash(canonical string) string {
	sum := md5.Sum([]byte(canonical))
	return fmt.Sprintf("%x", sum)[:8]
}
