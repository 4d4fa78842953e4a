package indicators

import (
	"Confluence/internal/domain/models"
	"Confluence/internal/services/features"
)

// volumeRatioScore reads heavy volume in the direction of the last bar.
func volumeRatioScore(data *models.MarketData) (float64, error) {
	n := paramInt(KindVolumeRatio, "period")
	if len(data.Candles) < n+1 {
		return 0, ErrInsufficientData
	}
	vols := data.Volumes()
	avg, _ := features.SMA(vols[:len(vols)-1], n)
	if avg == 0 {
		return models.NeutralScore, nil
	}
	last := data.Candles[len(data.Candles)-1]
	dir := 0.0
	switch {
	case last.Close > last.Open:
		dir = 1
	case last.Close < last.Open:
		dir = -1
	}
	ratio := last.Volume / avg
	return squash(dir*(ratio-1), 1), nil
}

// obvTrendScore is the OBV slope relative to average volume.
func obvTrendScore(data *models.MarketData) (float64, error) {
	n := paramInt(KindOBVTrend, "period")
	obv := features.OBV(data.Candles)
	slope, ok := features.Slope(obv, n)
	if !ok {
		return 0, ErrInsufficientData
	}
	avg, _ := features.SMA(data.Volumes(), n)
	if avg == 0 {
		return models.NeutralScore, nil
	}
	return squash(slope/avg, 0.5), nil
}

func cmfScore(data *models.MarketData) (float64, error) {
	cmf, ok := features.CMF(data.Candles, paramInt(KindCMF, "period"))
	if !ok {
		return 0, ErrInsufficientData
	}
	return fromSigned(cmf), nil
}

// vwapDeviationScore: trading above VWAP is bullish.
func vwapDeviationScore(data *models.MarketData) (float64, error) {
	vwap, ok := features.VWAP(data.Candles, paramInt(KindVWAPDeviation, "period"))
	if !ok || vwap == 0 {
		return 0, ErrInsufficientData
	}
	dev := (data.LastPrice() - vwap) / vwap
	return squash(dev, paramFloat(KindVWAPDeviation, "scale")), nil
}
