package models

import "time"

// Candle represents an OHLCV bar.
type Candle struct {
	Bucket time.Time `json:"bucket"`
	Symbol string    `json:"symbol,omitempty"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

type BookLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook is a depth snapshot. Bids are sorted best (highest) first,
// asks best (lowest) first.
type OrderBook struct {
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Timestamp time.Time   `json:"timestamp"`
}

// Trade is an executed (aggregated) trade. IsBuyerMaker means the aggressor sold.
type Trade struct {
	Symbol       string    `json:"symbol,omitempty"`
	Price        float64   `json:"price"`
	Quantity     float64   `json:"quantity"`
	IsBuyerMaker bool      `json:"is_buyer_maker"`
	Timestamp    time.Time `json:"timestamp"`
}

// Notional returns price * quantity.
func (t Trade) Notional() float64 { return t.Price * t.Quantity }

type Ticker24h struct {
	LastPrice          float64 `json:"last_price"`
	Volume             float64 `json:"volume"`
	QuoteVolume        float64 `json:"quote_volume"`
	PriceChangePercent float64 `json:"price_change_percent"`
}

// MarketData is the per-symbol snapshot every indicator reads from.
// Optional parts are nil when the source could not provide them.
type MarketData struct {
	Symbol      string     `json:"symbol"`
	Timestamp   time.Time  `json:"timestamp"`
	Candles     []Candle   `json:"candles"`
	OrderBook   *OrderBook `json:"orderbook,omitempty"`
	Trades      []Trade    `json:"trades,omitempty"`
	Ticker      *Ticker24h `json:"ticker,omitempty"`
	FundingRate *float64   `json:"funding_rate,omitempty"`
	// Sentiment is an external 0..100 sentiment reading.
	Sentiment *float64 `json:"sentiment,omitempty"`
}

// Closes returns the close series, oldest first.
func (m *MarketData) Closes() []float64 {
	out := make([]float64, len(m.Candles))
	for i, c := range m.Candles {
		out[i] = c.Close
	}
	return out
}

func (m *MarketData) Volumes() []float64 {
	out := make([]float64, len(m.Candles))
	for i, c := range m.Candles {
		out[i] = c.Volume
	}
	return out
}

// LastPrice prefers the ticker, then the latest close.
func (m *MarketData) LastPrice() float64 {
	if m.Ticker != nil && m.Ticker.LastPrice > 0 {
		return m.Ticker.LastPrice
	}
	if n := len(m.Candles); n > 0 {
		return m.Candles[n-1].Close
	}
	return 0
}
