package binance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"Confluence/internal/domain/models"
	"Confluence/internal/domain/repository"
	"Confluence/pkg/logger"
)

var ErrNoData = errors.New("binance: no market data for symbol")

// Source builds MarketData snapshots from the Binance USDⓈ-M futures REST API.
type Source struct {
	client      *futures.Client
	limiter     *rate.Limiter
	interval    string
	lookback    int
	depthLimit  int
	tradesLimit int
	maxRetries  int
	backoff     time.Duration
	trades      repository.TradeBuffer
	log         *logger.Logger
	metrics     repository.Metrics
}

var _ repository.MarketDataSource = (*Source)(nil)

type Option func(*Source)

func WithKlines(interval string, lookback int) Option {
	return func(s *Source) {
		if interval != "" {
			s.interval = interval
		}
		if lookback > 0 {
			s.lookback = lookback
		}
	}
}

func WithLimits(depth, trades int) Option {
	return func(s *Source) {
		if depth > 0 {
			s.depthLimit = depth
		}
		if trades > 0 {
			s.tradesLimit = trades
		}
	}
}

// WithRateLimit caps requests per second across all endpoints.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Source) {
		if perSecond > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(s *Source) {
		if maxRetries >= 0 {
			s.maxRetries = maxRetries
		}
		if backoff > 0 {
			s.backoff = backoff
		}
	}
}

// WithTradeBuffer makes Snapshot prefer trades from a live stream.
func WithTradeBuffer(b repository.TradeBuffer) Option {
	return func(s *Source) { s.trades = b }
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) {
		if c != nil {
			s.client.HTTPClient = c
		}
	}
}

// WithBaseURL points the client at another endpoint (testnet, tests).
func WithBaseURL(url string) Option {
	return func(s *Source) {
		if url != "" {
			s.client.BaseURL = url
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(s *Source) { s.metrics = m }
}

func New(apiKey, secretKey string, timeout time.Duration, opts ...Option) *Source {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := futures.NewClient(apiKey, secretKey)
	client.HTTPClient = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	s := &Source{
		client:      client,
		limiter:     rate.NewLimiter(rate.Limit(10), 20),
		interval:    "15m",
		lookback:    200,
		depthLimit:  50,
		tradesLimit: 500,
		maxRetries:  3,
		backoff:     100 * time.Millisecond,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot fetches candles, depth, trades, ticker and funding concurrently.
// Only the candle request is required; the rest are left nil on failure.
func (s *Source) Snapshot(ctx context.Context, symbol string) (*models.MarketData, error) {
	start := time.Now()
	data := &models.MarketData{Symbol: symbol, Timestamp: start}

	var (
		wg        sync.WaitGroup
		candleErr error
	)
	wg.Add(5)
	go func() {
		defer wg.Done()
		data.Candles, candleErr = s.candles(ctx, symbol)
	}()
	go func() {
		defer wg.Done()
		book, err := s.orderBook(ctx, symbol)
		s.partial(symbol, "depth", err)
		data.OrderBook = book
	}()
	go func() {
		defer wg.Done()
		trades, err := s.aggTrades(ctx, symbol)
		s.partial(symbol, "agg_trades", err)
		data.Trades = trades
	}()
	go func() {
		defer wg.Done()
		ticker, err := s.ticker(ctx, symbol)
		s.partial(symbol, "ticker", err)
		data.Ticker = ticker
	}()
	go func() {
		defer wg.Done()
		funding, err := s.fundingRate(ctx, symbol)
		s.partial(symbol, "premium_index", err)
		data.FundingRate = funding
	}()
	wg.Wait()

	if s.trades != nil {
		if live := s.trades.Recent(symbol, s.tradesLimit); fresher(live, data.Trades) {
			data.Trades = live
		}
	}

	if s.metrics != nil {
		s.metrics.RecordLatency("binance_snapshot", time.Since(start).Seconds())
		if p := data.LastPrice(); p > 0 {
			s.metrics.RecordLastPrice(symbol, p)
		}
	}

	if candleErr != nil {
		if data.OrderBook == nil && len(data.Trades) == 0 && data.Ticker == nil {
			return nil, fmt.Errorf("snapshot %s: %w", symbol, candleErr)
		}
		s.partial(symbol, "klines", candleErr)
	}
	if len(data.Candles) == 0 && data.OrderBook == nil && len(data.Trades) == 0 {
		return nil, fmt.Errorf("snapshot %s: %w", symbol, ErrNoData)
	}
	return data, nil
}

func (s *Source) partial(symbol, part string, err error) {
	if err == nil {
		return
	}
	s.log.Warn("snapshot part unavailable",
		logger.String("symbol", symbol),
		logger.String("part", part),
		logger.Error(err))
	if s.metrics != nil {
		s.metrics.RecordError("binance_" + part)
	}
}

func (s *Source) candles(ctx context.Context, symbol string) ([]models.Candle, error) {
	var klines []*futures.Kline
	err := s.retry(ctx, func() (err error) {
		klines, err = s.client.NewKlinesService().
			Symbol(symbol).
			Interval(s.interval).
			Limit(s.lookback).
			Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("klines: %w", err)
	}

	out := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		out = append(out, models.Candle{
			Bucket: time.UnixMilli(k.OpenTime).UTC(),
			Symbol: symbol,
			Open:   parseFloat(k.Open),
			High:   parseFloat(k.High),
			Low:    parseFloat(k.Low),
			Close:  parseFloat(k.Close),
			Volume: parseFloat(k.Volume),
		})
	}
	return out, nil
}

func (s *Source) orderBook(ctx context.Context, symbol string) (*models.OrderBook, error) {
	var res *futures.DepthResponse
	err := s.retry(ctx, func() (err error) {
		res, err = s.client.NewDepthService().Symbol(symbol).Limit(s.depthLimit).Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("depth: %w", err)
	}

	book := &models.OrderBook{
		Bids:      make([]models.BookLevel, 0, len(res.Bids)),
		Asks:      make([]models.BookLevel, 0, len(res.Asks)),
		Timestamp: time.UnixMilli(res.TradeTime).UTC(),
	}
	for _, b := range res.Bids {
		book.Bids = append(book.Bids, models.BookLevel{Price: parseFloat(b.Price), Quantity: parseFloat(b.Quantity)})
	}
	for _, a := range res.Asks {
		book.Asks = append(book.Asks, models.BookLevel{Price: parseFloat(a.Price), Quantity: parseFloat(a.Quantity)})
	}
	return book, nil
}

func (s *Source) aggTrades(ctx context.Context, symbol string) ([]models.Trade, error) {
	var res []*futures.AggTrade
	err := s.retry(ctx, func() (err error) {
		res, err = s.client.NewAggTradesService().Symbol(symbol).Limit(s.tradesLimit).Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("agg trades: %w", err)
	}

	out := make([]models.Trade, 0, len(res))
	for _, t := range res {
		out = append(out, models.Trade{
			Symbol:       symbol,
			Price:        parseFloat(t.Price),
			Quantity:     parseFloat(t.Quantity),
			IsBuyerMaker: t.IsBuyerMaker,
			Timestamp:    time.UnixMilli(t.Timestamp).UTC(),
		})
	}
	return out, nil
}

func (s *Source) ticker(ctx context.Context, symbol string) (*models.Ticker24h, error) {
	var res []*futures.PriceChangeStats
	err := s.retry(ctx, func() (err error) {
		res, err = s.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ticker: %w", err)
	}
	if len(res) == 0 {
		return nil, ErrNoData
	}
	st := res[0]
	return &models.Ticker24h{
		LastPrice:          parseFloat(st.LastPrice),
		Volume:             parseFloat(st.Volume),
		QuoteVolume:        parseFloat(st.QuoteVolume),
		PriceChangePercent: parseFloat(st.PriceChangePercent),
	}, nil
}

func (s *Source) fundingRate(ctx context.Context, symbol string) (*float64, error) {
	var res []*futures.PremiumIndex
	err := s.retry(ctx, func() (err error) {
		res, err = s.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("premium index: %w", err)
	}
	if len(res) == 0 {
		return nil, ErrNoData
	}
	fr, err := strconv.ParseFloat(res[0].LastFundingRate, 64)
	if err != nil {
		return nil, fmt.Errorf("funding rate %q: %w", res[0].LastFundingRate, err)
	}
	return &fr, nil
}

// retry waits on the shared limiter before every attempt and backs off
// exponentially between failures.
func (s *Source) retry(ctx context.Context, call func() error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if werr := s.limiter.Wait(ctx); werr != nil {
			return werr
		}
		if err = call(); err == nil {
			return nil
		}
		if attempt == s.maxRetries {
			break
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * s.backoff
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}

// fresher reports whether live ends later than rest.
func fresher(live, rest []models.Trade) bool {
	if len(live) == 0 {
		return false
	}
	if len(rest) == 0 {
		return true
	}
	return live[len(live)-1].Timestamp.After(rest[len(rest)-1].Timestamp)
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
