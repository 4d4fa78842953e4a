package indicators

import (
	"Confluence/internal/domain/models"
)

func bestLevels(book *models.OrderBook) (bid, ask models.BookLevel, ok bool) {
	if book == nil || len(book.Bids) == 0 || len(book.Asks) == 0 {
		return bid, ask, false
	}
	bid, ask = book.Bids[0], book.Asks[0]
	if bid.Price <= 0 || ask.Price <= 0 || ask.Price < bid.Price {
		return bid, ask, false
	}
	return bid, ask, true
}

// bookImbalanceScore compares resting quantity on the top levels.
func bookImbalanceScore(data *models.MarketData) (float64, error) {
	if _, _, ok := bestLevels(data.OrderBook); !ok {
		return 0, ErrInsufficientData
	}
	levels := paramInt(KindBookImbalance, "levels")
	bidQty := sumQty(data.OrderBook.Bids, levels)
	askQty := sumQty(data.OrderBook.Asks, levels)
	if bidQty+askQty == 0 {
		return models.NeutralScore, nil
	}
	return fromSigned((bidQty - askQty) / (bidQty + askQty)), nil
}

// depthPressureScore compares notional resting within a band around mid,
// weighting each level by its proximity to mid.
func depthPressureScore(data *models.MarketData) (float64, error) {
	bid, ask, ok := bestLevels(data.OrderBook)
	if !ok {
		return 0, ErrInsufficientData
	}
	mid := (bid.Price + ask.Price) / 2
	band := paramFloat(KindDepthPressure, "band") * mid

	weighted := func(levels []models.BookLevel) float64 {
		total := 0.0
		for _, l := range levels {
			dist := l.Price - mid
			if dist < 0 {
				dist = -dist
			}
			if dist > band {
				continue
			}
			total += l.Price * l.Quantity * (1 - dist/band)
		}
		return total
	}

	b, a := weighted(data.OrderBook.Bids), weighted(data.OrderBook.Asks)
	if a+b == 0 {
		return models.NeutralScore, nil
	}
	return fromSigned((b - a) / (b + a)), nil
}

// spreadQualityScore reads the microprice skew inside the spread, damped as
// the spread widens.
func spreadQualityScore(data *models.MarketData) (float64, error) {
	bid, ask, ok := bestLevels(data.OrderBook)
	if !ok || bid.Quantity+ask.Quantity == 0 {
		return 0, ErrInsufficientData
	}
	mid := (bid.Price + ask.Price) / 2
	spread := ask.Price - bid.Price
	if spread == 0 {
		return models.NeutralScore, nil
	}
	micro := (bid.Price*ask.Quantity + ask.Price*bid.Quantity) / (bid.Quantity + ask.Quantity)
	skew := (micro - mid) / (spread / 2)

	spreadBps := spread / mid * 1e4
	damp := 1 / (1 + spreadBps/paramFloat(KindSpreadQuality, "half_life_bps"))
	return fromSigned(skew * damp), nil
}

func sumQty(levels []models.BookLevel, n int) float64 {
	if n > len(levels) {
		n = len(levels)
	}
	total := 0.0
	for _, l := range levels[:n] {
		total += l.Quantity
	}
	return total
}
