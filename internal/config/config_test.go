package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Analysis.NormalizeWeights)
	assert.Equal(t, 12, cfg.Analysis.MinObservations)
	assert.Equal(t, 6, cfg.Analysis.RateMinObservations)
	assert.Equal(t, 10, cfg.Analysis.ComplianceLookbackYears)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 720, cfg.CacheTTLMinutes)
	assert.Equal(t, "10y", cfg.SyncPeriod)
	assert.Equal(t, "SPY", cfg.ProxyTickers["market"])
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MIN_OBSERVATIONS", "24")
	t.Setenv("NORMALIZE_WEIGHTS", "false")
	t.Setenv("PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 24, cfg.Analysis.MinObservations)
	assert.False(t, cfg.Analysis.NormalizeWeights)
	assert.Equal(t, 9100, cfg.Port)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Port = 0 }},
		{"min observations below 2", func(c *Config) { c.Analysis.MinObservations = 1 }},
		{"rate min observations below 2", func(c *Config) { c.Analysis.RateMinObservations = 0 }},
		{"zero lookback", func(c *Config) { c.Analysis.ComplianceLookbackYears = 0 }},
		{"zero cache ttl", func(c *Config) { c.CacheTTLMinutes = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Port:            8011,
				LogLevel:        "info",
				CacheTTLMinutes: 720,
				Analysis: AnalysisConfig{
					NormalizeWeights:        true,
					MinObservations:         12,
					RateMinObservations:     6,
					ComplianceLookbackYears: 10,
				},
			}
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
