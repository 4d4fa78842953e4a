package indicators

import (
	"math"
	"math/rand"
	"time"

	"Confluence/internal/domain/models"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// trendData builds n 15m bars drifting by pct per bar with a book and trades
// leaning the same way.
func trendData(n int, pct float64) *models.MarketData {
	candles := make([]models.Candle, n)
	price := 100.0
	for i := range candles {
		open := price
		price *= 1 + pct
		wiggle := 0.002 * price * math.Sin(float64(i))
		hi := math.Max(open, price) + math.Abs(wiggle)
		lo := math.Min(open, price) - math.Abs(wiggle)
		vol := 1000.0
		if i == n-1 {
			vol = 3000
		}
		// close near the extreme in the trend direction
		closeP := price
		if pct > 0 {
			hi = math.Max(hi, closeP)
		} else {
			lo = math.Min(lo, closeP)
		}
		candles[i] = models.Candle{
			Bucket: t0.Add(time.Duration(i) * 15 * time.Minute),
			Open:   open,
			High:   hi,
			Low:    lo,
			Close:  closeP,
			Volume: vol,
		}
	}

	side := pct < 0 // IsBuyerMaker means a taker sell
	trades := make([]models.Trade, 0, 60)
	for i := 0; i < 60; i++ {
		qty, maker := 1.0, side != (i%4 == 1)
		if i%10 == 0 {
			// large prints always go with the trend
			qty, maker = 20, side
		}
		trades = append(trades, models.Trade{
			Price:        price,
			Quantity:     qty,
			IsBuyerMaker: maker,
			Timestamp:    t0.Add(time.Duration(i) * time.Second),
		})
	}

	bigBid, bigAsk := 50.0, 5.0
	if pct < 0 {
		bigBid, bigAsk = 5.0, 50.0
	}
	book := &models.OrderBook{Timestamp: t0}
	for i := 0; i < 10; i++ {
		step := float64(i+1) * 0.0005 * price
		book.Bids = append(book.Bids, models.BookLevel{Price: price - step, Quantity: bigBid})
		book.Asks = append(book.Asks, models.BookLevel{Price: price + step, Quantity: bigAsk})
	}

	funding := 0.0004
	sentiment := 80.0
	change := 6.0
	if pct < 0 {
		funding, sentiment, change = -0.0004, 20, -6
	}

	return &models.MarketData{
		Symbol:      "BTCUSDT",
		Timestamp:   candles[n-1].Bucket,
		Candles:     candles,
		OrderBook:   book,
		Trades:      trades,
		Ticker:      &models.Ticker24h{LastPrice: price, Volume: 1e6, PriceChangePercent: change},
		FundingRate: &funding,
		Sentiment:   &sentiment,
	}
}

// noisyData is a random walk for range-invariant checks.
func noisyData(r *rand.Rand, n int) *models.MarketData {
	candles := make([]models.Candle, n)
	price := 50 + r.Float64()*1000
	for i := range candles {
		open := price
		price = math.Max(0.01, price*(1+(r.Float64()-0.5)*0.1))
		candles[i] = models.Candle{
			Bucket: t0.Add(time.Duration(i) * time.Minute),
			Open:   open,
			High:   math.Max(open, price) * (1 + r.Float64()*0.01),
			Low:    math.Min(open, price) * (1 - r.Float64()*0.01),
			Close:  price,
			Volume: r.Float64() * 1000,
		}
	}
	trades := make([]models.Trade, r.Intn(100))
	for i := range trades {
		trades[i] = models.Trade{Price: price, Quantity: r.Float64() * 10, IsBuyerMaker: r.Intn(2) == 0}
	}
	book := &models.OrderBook{}
	for i := 0; i < 1+r.Intn(20); i++ {
		book.Bids = append(book.Bids, models.BookLevel{Price: price * (1 - 0.001*float64(i+1)), Quantity: r.Float64() * 5})
		book.Asks = append(book.Asks, models.BookLevel{Price: price * (1 + 0.001*float64(i+1)), Quantity: r.Float64() * 5})
	}
	return &models.MarketData{Symbol: "RNDUSDT", Candles: candles, Trades: trades, OrderBook: book}
}
