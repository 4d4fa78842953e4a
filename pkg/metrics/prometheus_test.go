package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_CountsAndGauges(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordCacheResult("rsi", "hit")
	r.RecordCacheResult("rsi", "hit")
	r.RecordCacheResult("rsi", "miss")
	r.RecordPublish("BTCUSDT", true)
	r.RecordPublish("BTCUSDT", false)
	r.RecordScore("BTCUSDT", 72.5, 0.61)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheResults.WithLabelValues("rsi", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheResults.WithLabelValues("rsi", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.publishes.WithLabelValues("BTCUSDT", "failure")))
	assert.Equal(t, 72.5, testutil.ToFloat64(r.score.WithLabelValues("BTCUSDT")))
	assert.Equal(t, 0.61, testutil.ToFloat64(r.confidence.WithLabelValues("BTCUSDT")))
}

func TestNewWithRegistry_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewWithRegistry(prometheus.NewRegistry())
		NewWithRegistry(prometheus.NewRegistry())
	})
}
