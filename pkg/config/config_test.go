package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FillsDefaults(t *testing.T) {
	c, err := Parse([]byte("confluence:\n  symbols: [BTCUSDT]\n"))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 300*time.Second, c.Confluence.PublishTTL)
	assert.Equal(t, 750*time.Millisecond, c.Cache.OpTimeout)
	assert.Equal(t, 2.0, c.Confluence.DecayRate)
	assert.True(t, c.Cache.IndicatorCaching)
	assert.Equal(t, "binance", c.Market.Source)
}

func TestParse_YAMLOverridesDefaults(t *testing.T) {
	raw := `
confluence:
  symbols: [BTCUSDT, ETHUSDT]
  interval: 10s
cache:
  indicator_caching: false
  default_ttl: 30s
  ttls:
    rsi: 90s
`
	c, err := Parse([]byte(raw))
	require.NoError(t, err)

	assert.False(t, c.Cache.IndicatorCaching)
	assert.Equal(t, 10*time.Second, c.Confluence.Interval)
	assert.Equal(t, 90*time.Second, c.IndicatorTTL("rsi"))
	assert.Equal(t, 30*time.Second, c.IndicatorTTL("cmf"))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no symbols", "environment: test\n"},
		{"bad source", "confluence:\n  symbols: [X]\nmarket:\n  source: ftx\n"},
		{"negative weight", "confluence:\n  symbols: [X]\n  weights:\n    technical: -1\n"},
		{"kafka without brokers", "confluence:\n  symbols: [X]\nkafka:\n  enabled: true\n"},
		{"clickhouse source disabled", "confluence:\n  symbols: [X]\nmarket:\n  source: clickhouse\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnv_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("confluence:\n  symbols: [BTCUSDT]\n"), 0o600))

	t.Setenv("SYMBOLS", "SOLUSDT, XRPUSDT ,")
	t.Setenv("INDICATOR_CACHING", "false")
	t.Setenv("REDIS_PORT", "6380")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"SOLUSDT", "XRPUSDT"}, c.Confluence.Symbols)
	assert.False(t, c.Cache.IndicatorCaching)
	assert.Equal(t, 6380, c.Redis.Port)
}

func TestLoad_ExampleFile(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Len(t, c.Confluence.Symbols, 3)
	assert.InDelta(t, 1.0, c.Confluence.Weights["technical"]+c.Confluence.Weights["volume"]+
		c.Confluence.Weights["orderflow"]+c.Confluence.Weights["orderbook"]+
		c.Confluence.Weights["sentiment"]+c.Confluence.Weights["price_structure"], 1e-9)
}
