package tradestream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"Confluence/internal/domain/models"
	drepo "Confluence/internal/domain/repository"
	"Confluence/internal/middleware"
	"Confluence/pkg/logger"
)

var ErrNotConnected = errors.New("tradestream: not connected")

// Stream subscribes to Binance futures aggTrade streams and keeps the most
// recent trades per symbol in a Buffer.
type Stream struct {
	url            string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	buf      *Buffer
	pipeline *middleware.TradePipeline
	log      *logger.Logger
	metrics  drepo.Metrics

	mu        sync.Mutex // guards conn writes and swaps
	conn      *websocket.Conn
	connected atomic.Bool
}

var _ drepo.TradeStream = (*Stream)(nil)

type Option func(*Stream)

func WithReconnect(delay, ping time.Duration) Option {
	return func(s *Stream) {
		if delay > 0 {
			s.reconnectDelay = delay
		}
		if ping > 0 {
			s.pingInterval = ping
		}
	}
}

func WithBuffer(b *Buffer) Option {
	return func(s *Stream) {
		if b != nil {
			s.buf = b
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Stream) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m drepo.Metrics) Option {
	return func(s *Stream) { s.metrics = m }
}

func New(url string, symbols []string, opts ...Option) *Stream {
	s := &Stream{
		url:            url,
		symbols:        symbols,
		reconnectDelay: 5 * time.Second,
		pingInterval:   30 * time.Second,
		buf:            NewBuffer(1000, 0),
		log:            logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pipeline = middleware.NewTradePipeline(
		middleware.ProcFunc(func(_ context.Context, t *models.Trade) error {
			s.buf.Append(*t)
			return nil
		}),
		middleware.WithMetrics(s.metrics),
	)
	return s
}

// StreamURL builds the combined-stream URL for the configured symbols.
func (s *Stream) StreamURL() string {
	names := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		names = append(names, strings.ToLower(sym)+"@aggTrade")
	}
	sep := "?"
	if strings.Contains(s.url, "?") {
		sep = "&"
	}
	return s.url + sep + "streams=" + strings.Join(names, "/")
}

// Connect dials the websocket; subscription is part of the URL.
func (s *Stream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.StreamURL(), nil)
	if err != nil {
		return fmt.Errorf("tradestream connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.connected.Store(true)
	s.log.Info("trade stream connected", logger.Strings("symbols", s.symbols))
	return nil
}

// Run reads until ctx is cancelled, reconnecting after failures.
func (s *Stream) Run(ctx context.Context) error {
	go s.pingLoop(ctx)

	for {
		if !s.IsConnected() {
			if err := s.Connect(ctx); err != nil {
				s.log.Warn("trade stream connect failed", logger.Error(err))
				if s.metrics != nil {
					s.metrics.RecordError("tradestream_connect")
				}
				if !sleep(ctx, s.reconnectDelay) {
					return ctx.Err()
				}
				continue
			}
		}

		err := s.readLoop(ctx)
		_ = s.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn("trade stream dropped, reconnecting",
			logger.Error(err),
			logger.Duration("delay", s.reconnectDelay))
		if s.metrics != nil {
			s.metrics.RecordError("tradestream_read")
		}
		if !sleep(ctx, s.reconnectDelay) {
			return ctx.Err()
		}
	}
}

type aggTradeEvent struct {
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

type combinedMessage struct {
	Stream string        `json:"stream"`
	Data   aggTradeEvent `json:"data"`
}

func (s *Stream) readLoop(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("tradestream read: %w", err)
		}
		t, ok := decodeTrade(b)
		if !ok {
			continue
		}
		if err := s.pipeline.Process(ctx, t); err != nil {
			s.log.Debug("trade rejected", logger.Error(err))
			continue
		}
		if s.metrics != nil {
			s.metrics.RecordMessageSent("tradestream", t.Symbol)
		}
	}
}

// decodeTrade accepts both combined-stream and raw aggTrade frames.
func decodeTrade(b []byte) (*models.Trade, bool) {
	var msg combinedMessage
	if err := json.Unmarshal(b, &msg); err != nil {
		return nil, false
	}
	ev := msg.Data
	if msg.Stream == "" {
		if err := json.Unmarshal(b, &ev); err != nil {
			return nil, false
		}
	}
	if ev.Symbol == "" {
		return nil, false
	}
	price, err1 := strconv.ParseFloat(ev.Price, 64)
	qty, err2 := strconv.ParseFloat(ev.Quantity, 64)
	if err1 != nil || err2 != nil {
		return nil, false
	}
	return &models.Trade{
		Symbol:       ev.Symbol,
		Price:        price,
		Quantity:     qty,
		IsBuyerMaker: ev.IsBuyerMaker,
		Timestamp:    time.UnixMilli(ev.TradeTime).UTC(),
	}, true
}

func (s *Stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.conn != nil {
				_ = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
			s.mu.Unlock()
		}
	}
}

// Recent returns buffered trades for symbol, oldest first.
func (s *Stream) Recent(symbol string, limit int) []models.Trade {
	return s.buf.Recent(symbol, limit)
}

func (s *Stream) IsConnected() bool { return s.connected.Load() }

func (s *Stream) Close() error {
	s.connected.Store(false)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
