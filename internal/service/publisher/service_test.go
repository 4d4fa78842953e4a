package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Confluence/internal/domain/models"
	"Confluence/pkg/cache"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// downStore fails every write.
type downStore struct{ cache.Service }

func (downStore) MSet(context.Context, map[string]interface{}, time.Duration) error {
	return errors.New("connection refused")
}

func newTestService(t *testing.T) (*Service, *cache.MemoryCache) {
	t.Helper()
	store := cache.NewMemoryCache()
	t.Cleanup(func() { _ = store.Close() })
	return New(store, WithClock(func() time.Time { return fixedNow })), store
}

func bullishResult() *models.AnalysisResult {
	return &models.AnalysisResult{
		Symbol:          "BTCUSDT",
		ConfluenceScore: 81.234,
		Reliability:     62.5,
		Components: map[string]float64{
			"technical": 80, "volume": 82, "orderflow": 85,
			"orderbook": 78, "sentiment": 83, "price_structure": 80,
		},
		SubComponents: map[string]map[string]float64{
			"technical": {"rsi": 71.119, "macd": 88},
		},
		Timestamp: fixedNow.Add(-time.Second),
	}
}

func TestPublish_WritesBothKeys(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	require.True(t, svc.Publish(ctx, "BTCUSDT", bullishResult()))

	var raw string
	require.NoError(t, store.Get(ctx, "confluence:breakdown:BTCUSDT", &raw))
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	for _, field := range []string{"overall_score", "sentiment", "reliability", "components", "sub_components",
		"interpretations", "timestamp", "cached_at", "symbol", "has_breakdown", "real_confluence"} {
		assert.Contains(t, doc, field)
	}
	assert.Equal(t, 81.23, doc["overall_score"])
	assert.Equal(t, "BULLISH", doc["sentiment"])
	assert.Equal(t, true, doc["has_breakdown"])
	assert.Equal(t, "2024-05-01T12:00:00Z", doc["cached_at"])
	assert.Equal(t, float64(fixedNow.Add(-time.Second).Unix()), doc["timestamp"])

	sum, err := svc.Score(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, models.ScoreSummary{Score: 81.23, Sentiment: "BULLISH", Timestamp: fixedNow.Add(-time.Second).Unix()}, *sum)

	for _, key := range []string{BreakdownKey("BTCUSDT"), ScoreKey("BTCUSDT")} {
		ttl, err := store.TTL(ctx, key)
		require.NoError(t, err)
		assert.InDelta(t, (300 * time.Second).Seconds(), ttl.Seconds(), 1)
	}
}

func TestPublish_OverwritesNotMerges(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.True(t, svc.Publish(ctx, "BTCUSDT", bullishResult()))

	second := &models.AnalysisResult{
		ConfluenceScore: 22,
		Components:      map[string]float64{"orderflow": 10},
		Interpretations: map[string]string{"overall": "sellers in control"},
	}
	require.True(t, svc.Publish(ctx, "BTCUSDT", second))

	b, err := svc.Breakdown(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 22.0, b.OverallScore)
	assert.Equal(t, "BEARISH", b.Sentiment)
	assert.Equal(t, 10.0, b.Components["orderflow"])
	assert.Equal(t, 50.0, b.Components["technical"])
	assert.Empty(t, b.SubComponents)
	assert.Equal(t, map[string]string{"overall": "sellers in control"}, b.Interpretations)
	assert.Equal(t, fixedNow.Unix(), b.Timestamp)
}

func TestPublish_ComponentKeyNormalization(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result := &models.AnalysisResult{
		ConfluenceScore: 55,
		Components: map[string]float64{
			"orderbook_imbalance": 91,
			"cvd_flow":            12,
			"RSI_14":              66,
			"support_levels":      40,
			"funding_rate":        35,
			"obv":                 58,
			"lunar_phase":         99,
		},
	}
	require.True(t, svc.Publish(ctx, "ETHUSDT", result))

	b, err := svc.Breakdown(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{
		"orderbook":       91,
		"orderflow":       12,
		"technical":       66,
		"price_structure": 40,
		"sentiment":       35,
		"volume":          58,
	}, b.Components)
}

func TestPublish_SentimentThresholds(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{100, "BULLISH"},
		{70, "BULLISH"},
		{69.99, "NEUTRAL"},
		{50, "NEUTRAL"},
		{30.01, "NEUTRAL"},
		{30, "BEARISH"},
		{0, "BEARISH"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SentimentFor(tt.score), tt.score)
	}
}

func TestPublish_SynthesizesInterpretations(t *testing.T) {
	svc, _ := newTestService(t)
	b, err := svc.BuildBreakdown("BTCUSDT", &models.AnalysisResult{
		ConfluenceScore: 75,
		Components:      map[string]float64{"technical": 85, "volume": 20},
	})
	require.NoError(t, err)

	require.Len(t, b.Interpretations, 7)
	assert.Contains(t, b.Interpretations["overall"], "Bullish confluence at 75.0/100")
	assert.Equal(t, "Technical is bullish (85.0)", b.Interpretations["technical"])
	assert.Equal(t, "Volume is bearish (20.0)", b.Interpretations["volume"])
	assert.Equal(t, "Orderbook is neutral (50.0)", b.Interpretations["orderbook"])
}

func TestPublish_MarketInterpretations(t *testing.T) {
	svc, _ := newTestService(t)
	b, err := svc.BuildBreakdown("BTCUSDT", &models.AnalysisResult{
		ConfluenceScore: 60,
		MarketInterpretations: []models.Interpretation{
			{Component: "technical", Text: "RSI rising."},
			{Component: "technical", Text: "MACD crossed up."},
			{Text: "Mild upside bias."},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"technical": "RSI rising. MACD crossed up.",
		"overall":   "Mild upside bias.",
	}, b.Interpretations)
}

func TestPublish_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("nil result", func(t *testing.T) {
		svc, _ := newTestService(t)
		assert.False(t, svc.Publish(ctx, "BTCUSDT", nil))
	})

	t.Run("no store", func(t *testing.T) {
		assert.False(t, New(nil).Publish(ctx, "BTCUSDT", bullishResult()))
	})

	t.Run("empty symbol", func(t *testing.T) {
		svc, _ := newTestService(t)
		assert.False(t, svc.Publish(ctx, "", &models.AnalysisResult{}))
	})

	t.Run("store down", func(t *testing.T) {
		svc := New(downStore{})

		assert.NotPanics(t, func() {
			assert.False(t, svc.Publish(ctx, "BTCUSDT", bullishResult()))
		})
	})
}

func TestPublish_SanitizesNonFinite(t *testing.T) {
	svc, _ := newTestService(t)
	nan := 0.0
	nan = nan / nan
	result := bullishResult()
	result.ConfluenceScore = nan
	result.SubComponents["technical"]["rsi"] = nan

	require.True(t, svc.Publish(context.Background(), "BTCUSDT", result))
	b, err := svc.Breakdown(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 50.0, b.OverallScore)
	assert.Equal(t, 50.0, b.SubComponents["technical"]["rsi"])
}

func TestReads_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Breakdown(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Score(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNeutralResult_PublishesNeutralBreakdown(t *testing.T) {
	svc, _ := newTestService(t)
	b, ok := svc.PublishBreakdown(context.Background(), "SOLUSDT", NeutralResult("SOLUSDT", fixedNow))
	require.True(t, ok)
	assert.Equal(t, 50.0, b.OverallScore)
	assert.Equal(t, "NEUTRAL", b.Sentiment)
	for _, c := range models.Components {
		assert.Equal(t, 50.0, b.Components[string(c)])
	}
}
