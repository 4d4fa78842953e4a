package indicators

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Confluence/internal/domain/models"
)

func allKinds() []Kind {
	var out []Kind
	for _, c := range models.Components {
		out = append(out, KindsFor(c)...)
	}
	return out
}

func TestKindsFor_CoversEveryComponent(t *testing.T) {
	for _, c := range models.Components {
		assert.NotEmpty(t, KindsFor(c), c)
	}
	assert.Empty(t, KindsFor("astrology"))
	assert.Len(t, allKinds(), len(computers))
}

func TestCompute_Directional(t *testing.T) {
	up := trendData(120, 0.004)
	down := trendData(120, -0.004)

	for _, kind := range allKinds() {
		if kind == KindSpreadQuality {
			// symmetric book skew is covered separately
			continue
		}
		t.Run(string(kind), func(t *testing.T) {
			bull := Compute(kind, up)
			bear := Compute(kind, down)
			assert.Greater(t, bull, bear, "bull=%v bear=%v", bull, bear)
		})
	}
}

func TestMACD_SteadyTrendKeepsDirection(t *testing.T) {
	linear := func(step float64) *models.MarketData {
		data := &models.MarketData{Symbol: "BTCUSDT"}
		price := 100.0
		for i := 0; i < 80; i++ {
			price += step
			data.Candles = append(data.Candles, models.Candle{
				Bucket: t0.Add(time.Duration(i) * time.Minute),
				Open:   price - step, High: price + 0.1, Low: price - 0.1, Close: price, Volume: 1000,
			})
		}
		return data
	}

	up := Compute(KindMACD, linear(0.5))
	down := Compute(KindMACD, linear(-0.5))
	assert.Greater(t, up, 60.0)
	assert.Less(t, down, 40.0)
}

func TestCompute_InsufficientDataIsNeutral(t *testing.T) {
	empty := &models.MarketData{Symbol: "BTCUSDT"}
	for _, kind := range allKinds() {
		t.Run(string(kind), func(t *testing.T) {
			assert.Equal(t, models.NeutralScore, Compute(kind, empty))
			_, err := Evaluate(kind, empty)
			assert.Error(t, err)
		})
	}
}

func TestCompute_NilAndUnknown(t *testing.T) {
	assert.Equal(t, models.NeutralScore, Compute(KindRSI, nil))

	_, err := Evaluate("lunar_phase", trendData(60, 0.001))
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Equal(t, models.NeutralScore, Compute("lunar_phase", trendData(60, 0.001)))
}

func TestCompute_RangeInvariant(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		data := noisyData(r, 10+r.Intn(200))
		for _, kind := range allKinds() {
			v := Compute(kind, data)
			require.GreaterOrEqual(t, v, 0.0, kind)
			require.LessOrEqual(t, v, 100.0, kind)
		}
	}
}

func TestCompute_DegenerateInputs(t *testing.T) {
	flat := trendData(120, 0)
	for i := range flat.Candles {
		flat.Candles[i].High = 100
		flat.Candles[i].Low = 100
		flat.Candles[i].Open = 100
		flat.Candles[i].Close = 100
		flat.Candles[i].Volume = 0
	}
	for _, kind := range []Kind{KindRSI, KindMACD, KindStochastic, KindOBVTrend, KindCMF, KindVWAPDeviation, KindRangePosition, KindBollingerPosition} {
		assert.Equal(t, models.NeutralScore, Compute(kind, flat), kind)
	}

	crossed := &models.MarketData{OrderBook: &models.OrderBook{
		Bids: []models.BookLevel{{Price: 101, Quantity: 1}},
		Asks: []models.BookLevel{{Price: 100, Quantity: 1}},
	}}
	assert.Equal(t, models.NeutralScore, Compute(KindBookImbalance, crossed))
}

func TestSpreadQuality_MicropriceSkew(t *testing.T) {
	book := func(bidQty, askQty float64) *models.MarketData {
		return &models.MarketData{OrderBook: &models.OrderBook{
			Bids: []models.BookLevel{{Price: 99.99, Quantity: bidQty}},
			Asks: []models.BookLevel{{Price: 100.01, Quantity: askQty}},
		}}
	}
	assert.Greater(t, Compute(KindSpreadQuality, book(10, 1)), 50.0)
	assert.Less(t, Compute(KindSpreadQuality, book(1, 10)), 50.0)
	assert.InDelta(t, 50.0, Compute(KindSpreadQuality, book(5, 5)), 1e-9)
}

func TestSentimentIndex_PassThroughAndClip(t *testing.T) {
	v := 135.0
	assert.Equal(t, 100.0, Compute(KindSentimentIndex, &models.MarketData{Sentiment: &v}))
	v = 42
	assert.Equal(t, 42.0, Compute(KindSentimentIndex, &models.MarketData{Sentiment: &v}))
}

func TestParams_ReturnsCopy(t *testing.T) {
	p := Params(KindRSI)
	p["period"] = 99
	assert.Equal(t, 14, Params(KindRSI)["period"])
}
