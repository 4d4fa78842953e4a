package indicators

import (
	"Confluence/internal/domain/models"
	"Confluence/internal/services/features"
)

// rsiScore uses RSI directly: momentum above 50 is bullish.
func rsiScore(data *models.MarketData) (float64, error) {
	rsi, ok := features.RSI(data.Closes(), paramInt(KindRSI, "period"))
	if !ok {
		return 0, ErrInsufficientData
	}
	return rsi, nil
}

// macdScore blends the MACD line (trend direction) with the histogram
// (acceleration), both in units of recent close volatility.
func macdScore(data *models.MarketData) (float64, error) {
	closes := data.Closes()
	slow := paramInt(KindMACD, "slow")
	line, _, hist, ok := features.MACD(closes, paramInt(KindMACD, "fast"), slow, paramInt(KindMACD, "signal"))
	if !ok {
		return 0, ErrInsufficientData
	}
	sd, ok := features.StdDev(closes, slow)
	if !ok || sd == 0 {
		return models.NeutralScore, nil
	}
	return 0.5*squash(line, sd) + 0.5*squash(hist, 0.25*sd), nil
}

// emaTrendScore blends EMA stacking order with the fast/slow spread.
func emaTrendScore(data *models.MarketData) (float64, error) {
	closes := data.Closes()
	fast, ok1 := features.EMA(closes, paramInt(KindEMATrend, "fast"))
	mid, ok2 := features.EMA(closes, paramInt(KindEMATrend, "mid"))
	slow, ok3 := features.EMA(closes, paramInt(KindEMATrend, "slow"))
	if !ok1 || !ok2 || !ok3 || slow == 0 {
		return 0, ErrInsufficientData
	}
	price := closes[len(closes)-1]

	stack := 0.0
	for _, cmp := range [][2]float64{{price, fast}, {fast, mid}, {mid, slow}} {
		switch {
		case cmp[0] > cmp[1]:
			stack++
		case cmp[0] < cmp[1]:
			stack--
		}
	}
	spread := (fast - slow) / slow
	return 0.5*fromSigned(stack/3) + 0.5*squash(spread, 0.02), nil
}

func stochasticScore(data *models.MarketData) (float64, error) {
	_, d, ok := features.Stochastic(data.Candles, paramInt(KindStochastic, "k"), paramInt(KindStochastic, "d"))
	if !ok {
		return 0, ErrInsufficientData
	}
	return d, nil
}
