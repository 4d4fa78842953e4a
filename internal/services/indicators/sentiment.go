package indicators

import (
	"Confluence/internal/domain/models"
	"Confluence/internal/services/features"
)

// priceMomentumScore uses the 24h change from the ticker, or the candle
// series when no ticker is available.
func priceMomentumScore(data *models.MarketData) (float64, error) {
	scale := paramFloat(KindPriceMomentum, "scale")
	if data.Ticker != nil {
		return squash(data.Ticker.PriceChangePercent, scale), nil
	}
	n := len(data.Candles)
	if n < 2 {
		return 0, ErrInsufficientData
	}
	back := n - 1
	interval := data.Candles[n-1].Bucket.Sub(data.Candles[n-2].Bucket)
	if bars := features.BarsPerDay(interval); bars > 0 && bars < n {
		back = bars
	}
	past := data.Candles[n-1-back].Close
	if past == 0 {
		return 0, ErrInsufficientData
	}
	pct := (data.Candles[n-1].Close - past) / past * 100
	return squash(pct, scale), nil
}

// fundingBiasScore treats positive funding as long-side crowd sentiment.
func fundingBiasScore(data *models.MarketData) (float64, error) {
	if data.FundingRate == nil {
		return 0, ErrInsufficientData
	}
	return squash(*data.FundingRate, paramFloat(KindFundingBias, "scale")), nil
}

func sentimentIndexScore(data *models.MarketData) (float64, error) {
	if data.Sentiment == nil {
		return 0, ErrInsufficientData
	}
	return *data.Sentiment, nil
}
