package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"Confluence/internal/domain/models"
	domrepo "Confluence/internal/domain/repository"
)

var ErrInvalidTrade = errors.New("invalid trade")

// Proc is the minimal downstream the pipeline feeds.
type Proc interface {
	Process(ctx context.Context, t *models.Trade) error
}

// ProcFunc adapts a function to Proc.
type ProcFunc func(ctx context.Context, t *models.Trade) error

func (f ProcFunc) Process(ctx context.Context, t *models.Trade) error { return f(ctx, t) }

// TradePipeline sits between the websocket reader and the trade buffer.
// It validates trades, normalizes symbols and drops trades that arrive too
// far behind the newest one already accepted for the symbol.
type TradePipeline struct {
	next      Proc
	metrics   domrepo.Metrics
	maxLag    time.Duration
	transform func(*models.Trade) *models.Trade

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

type PipelineOption func(*TradePipeline)

// WithMaxLag sets how far behind the newest accepted trade a trade may be.
// Zero accepts everything.
func WithMaxLag(d time.Duration) PipelineOption {
	return func(p *TradePipeline) {
		if d >= 0 {
			p.maxLag = d
		}
	}
}

// WithTransform sets a hook applied after validation.
func WithTransform(fn func(*models.Trade) *models.Trade) PipelineOption {
	return func(p *TradePipeline) { p.transform = fn }
}

func WithMetrics(m domrepo.Metrics) PipelineOption {
	return func(p *TradePipeline) { p.metrics = m }
}

func NewTradePipeline(next Proc, opts ...PipelineOption) *TradePipeline {
	p := &TradePipeline{
		next:     next,
		maxLag:   5 * time.Second,
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates t and forwards it downstream.
func (p *TradePipeline) Process(ctx context.Context, t *models.Trade) error {
	start := time.Now()
	if err := validateTrade(t); err != nil {
		p.recordError("pipeline_validate")
		return err
	}
	t.Symbol = strings.ToUpper(t.Symbol)
	if p.transform != nil {
		t = p.transform(t)
		if err := validateTrade(t); err != nil {
			p.recordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.accept(t.Symbol, t.Timestamp) {
		p.recordError("pipeline_stale")
		return nil
	}

	if err := p.next.Process(ctx, t); err != nil {
		p.recordError("pipeline_process")
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	if p.metrics != nil {
		p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	}
	return nil
}

func (p *TradePipeline) accept(symbol string, ts time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	last := p.lastSeen[symbol]
	if p.maxLag > 0 && !last.IsZero() && last.Sub(ts) > p.maxLag {
		return false
	}
	if ts.After(last) {
		p.lastSeen[symbol] = ts
	}
	return true
}

func (p *TradePipeline) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}

func validateTrade(t *models.Trade) error {
	switch {
	case t == nil:
		return fmt.Errorf("%w: nil", ErrInvalidTrade)
	case t.Symbol == "":
		return fmt.Errorf("%w: empty symbol", ErrInvalidTrade)
	case t.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrInvalidTrade)
	case !(t.Price > 0) || math.IsInf(t.Price, 0):
		return fmt.Errorf("%w: price %v", ErrInvalidTrade, t.Price)
	case !(t.Quantity > 0) || math.IsInf(t.Quantity, 0):
		return fmt.Errorf("%w: quantity %v", ErrInvalidTrade, t.Quantity)
	}
	return nil
}
