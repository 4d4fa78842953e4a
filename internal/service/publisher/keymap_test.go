package publisher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"Confluence/internal/domain/models"
)

func TestSlotFor(t *testing.T) {
	tests := []struct {
		in   string
		want models.Component
		ok   bool
	}{
		{"technical", models.ComponentTechnical, true},
		{" Price_Structure ", models.ComponentPriceStructure, true},
		{"orderbook_imbalance", models.ComponentOrderbook, true},
		{"bid_ask_spread", models.ComponentOrderbook, true},
		{"orderflow", models.ComponentOrderflow, true},
		{"trade_delta", models.ComponentOrderflow, true},
		{"vwap_deviation", models.ComponentVolume, true},
		{"fear_greed", models.ComponentSentiment, true},
		{"ema_cross", models.ComponentTechnical, true},
		{"pivot_points", models.ComponentPriceStructure, true},
		// structure rules run before technical ones
		{"trend_structure", models.ComponentPriceStructure, true},
		{"orderflow_imbalance", models.ComponentOrderflow, true},
		{"flow_imbalance", models.ComponentOrderflow, true},
		{"book_spread", models.ComponentOrderbook, true},
		{"", "", false},
		{"weather", "", false},
	}
	for _, tt := range tests {
		got, ok := SlotFor(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNormalizeComponents_ExactBeatsSubstring(t *testing.T) {
	out := NormalizeComponents(map[string]float64{
		"book_depth": 10,
		"orderbook":  90,
		"aa_flow":    30,
		"zz_flow":    70,
	})
	assert.Equal(t, 90.0, out["orderbook"])
	assert.Equal(t, 30.0, out["orderflow"])
	assert.Len(t, out, 6)
}

func TestNormalizeComponents_FlowImbalanceKeepsOrderbookNeutral(t *testing.T) {
	out := NormalizeComponents(map[string]float64{"orderflow_imbalance": 88})
	assert.Equal(t, 88.0, out["orderflow"])
	assert.Equal(t, 50.0, out["orderbook"])
}

func TestNormalizeComponents_ClipsAndDefaults(t *testing.T) {
	out := NormalizeComponents(map[string]float64{"rsi": 140, "cmf": -3})
	assert.Equal(t, 100.0, out["technical"])
	assert.Equal(t, 0.0, out["volume"])
	assert.Equal(t, 50.0, out["sentiment"])

	empty := NormalizeComponents(nil)
	assert.Len(t, empty, 6)
	for _, v := range empty {
		assert.Equal(t, 50.0, v)
	}
}
