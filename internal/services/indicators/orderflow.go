package indicators

import (
	"sort"

	"Confluence/internal/domain/models"
	"Confluence/internal/services/features"
)

// tradeDeltaScore is the taker buy/sell notional imbalance.
func tradeDeltaScore(data *models.MarketData) (float64, error) {
	if len(data.Trades) < paramInt(KindTradeDelta, "min_trades") {
		return 0, ErrInsufficientData
	}
	var buy, sell float64
	for _, t := range data.Trades {
		if t.IsBuyerMaker {
			sell += t.Notional()
		} else {
			buy += t.Notional()
		}
	}
	if buy+sell == 0 {
		return models.NeutralScore, nil
	}
	return fromSigned((buy - sell) / (buy + sell)), nil
}

// largeTradeBiasScore is the imbalance among trades above the notional percentile.
func largeTradeBiasScore(data *models.MarketData) (float64, error) {
	if len(data.Trades) < paramInt(KindLargeTradeBias, "min_trades") {
		return 0, ErrInsufficientData
	}
	notionals := make([]float64, len(data.Trades))
	for i, t := range data.Trades {
		notionals[i] = t.Notional()
	}
	sort.Float64s(notionals)
	threshold := features.Percentile(notionals, paramFloat(KindLargeTradeBias, "percentile"))

	var buy, sell float64
	for _, t := range data.Trades {
		if t.Notional() < threshold {
			continue
		}
		if t.IsBuyerMaker {
			sell += t.Notional()
		} else {
			buy += t.Notional()
		}
	}
	if buy+sell == 0 {
		return models.NeutralScore, nil
	}
	return fromSigned((buy - sell) / (buy + sell)), nil
}
