package indicators

import (
	"Confluence/internal/domain/models"
	"Confluence/internal/services/features"
)

// rangePositionScore places the last close inside the recent high/low range.
func rangePositionScore(data *models.MarketData) (float64, error) {
	hi, lo, ok := features.HighLow(data.Candles, paramInt(KindRangePosition, "period"))
	if !ok {
		return 0, ErrInsufficientData
	}
	if hi == lo {
		return models.NeutralScore, nil
	}
	return (data.Candles[len(data.Candles)-1].Close - lo) / (hi - lo) * 100, nil
}

// swingStructureScore splits the window into segments and counts higher
// highs/lows against lower highs/lows between consecutive segments.
func swingStructureScore(data *models.MarketData) (float64, error) {
	period := paramInt(KindSwingStructure, "period")
	segments := paramInt(KindSwingStructure, "segments")
	if segments < 2 || len(data.Candles) < period {
		return 0, ErrInsufficientData
	}
	window := data.Candles[len(data.Candles)-period:]
	size := period / segments

	var prevHi, prevLo float64
	net := 0.0
	for s := 0; s < segments; s++ {
		hi, lo, _ := features.HighLow(window[s*size:(s+1)*size], size)
		if s > 0 {
			switch {
			case hi > prevHi:
				net++
			case hi < prevHi:
				net--
			}
			switch {
			case lo > prevLo:
				net++
			case lo < prevLo:
				net--
			}
		}
		prevHi, prevLo = hi, lo
	}
	return fromSigned(net / float64(2*(segments-1))), nil
}

// bollingerPositionScore is %B scaled to 0..100.
func bollingerPositionScore(data *models.MarketData) (float64, error) {
	closes := data.Closes()
	_, upper, lower, ok := features.Bollinger(closes, paramInt(KindBollingerPosition, "period"), paramFloat(KindBollingerPosition, "k"))
	if !ok {
		return 0, ErrInsufficientData
	}
	if upper == lower {
		return models.NeutralScore, nil
	}
	return (closes[len(closes)-1] - lower) / (upper - lower) * 100, nil
}
