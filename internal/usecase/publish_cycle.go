package usecase

import (
	"context"
	"strings"
	"time"

	"Confluence/internal/domain/models"
	domrepo "Confluence/internal/domain/repository"
	"Confluence/internal/service/publisher"
	"Confluence/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Analyzer is the part of ConfluenceAnalysis the cycle depends on.
type Analyzer interface {
	Analyze(ctx context.Context, symbol string) (*models.AnalysisResult, error)
}

// BreakdownWriter publishes a result and returns what was stored.
type BreakdownWriter interface {
	PublishBreakdown(ctx context.Context, symbol string, result *models.AnalysisResult) (*models.Breakdown, bool)
}

// PublishCycle analyzes every configured symbol on a fixed interval and
// publishes the results. A symbol always gets a breakdown: failures publish
// a neutral one.
type PublishCycle struct {
	analyzer    Analyzer
	writer      BreakdownWriter
	events      domrepo.EventPublisher
	history     domrepo.HistoryStore
	symbols     []string
	interval    time.Duration
	concurrency int
	metrics     domrepo.Metrics
	log         *logger.Logger
	now         func() time.Time
}

type CycleOption func(*PublishCycle)

func WithEvents(p domrepo.EventPublisher) CycleOption {
	return func(c *PublishCycle) { c.events = p }
}

func WithHistory(h domrepo.HistoryStore) CycleOption {
	return func(c *PublishCycle) { c.history = h }
}

func WithInterval(d time.Duration) CycleOption {
	return func(c *PublishCycle) {
		if d > 0 {
			c.interval = d
		}
	}
}

func WithConcurrency(n int) CycleOption {
	return func(c *PublishCycle) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func WithCycleMetrics(m domrepo.Metrics) CycleOption {
	return func(c *PublishCycle) { c.metrics = m }
}

func WithCycleLogger(l *logger.Logger) CycleOption {
	return func(c *PublishCycle) {
		if l != nil {
			c.log = l
		}
	}
}

func NewPublishCycle(analyzer Analyzer, writer BreakdownWriter, symbols []string, opts ...CycleOption) *PublishCycle {
	c := &PublishCycle{
		analyzer:    analyzer,
		writer:      writer,
		symbols:     normalizeSymbols(symbols),
		interval:    30 * time.Second,
		concurrency: 4,
		log:         logger.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Symbols returns the configured symbols, upper-cased and deduplicated.
func (c *PublishCycle) Symbols() []string {
	return append([]string(nil), c.symbols...)
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (c *PublishCycle) Run(ctx context.Context) error {
	c.log.Info("publish cycle started",
		logger.Strings("symbols", c.symbols),
		logger.Duration("interval", c.interval))

	c.RunOnce(ctx)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.log.Info("publish cycle stopped")
			return nil
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// CycleReport summarizes one pass over the symbols.
type CycleReport struct {
	CycleID   string
	Published int
	Neutral   int
	Failed    int
	Elapsed   time.Duration
}

// RunOnce analyzes and publishes every symbol once.
func (c *PublishCycle) RunOnce(ctx context.Context) CycleReport {
	start := c.now()
	cycleID := uuid.NewString()

	outcomes := make([]symbolOutcome, len(c.symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, sym := range c.symbols {
		g.Go(func() error {
			outcomes[i] = c.publishSymbol(gctx, cycleID, sym)
			return nil
		})
	}
	_ = g.Wait()

	report := CycleReport{CycleID: cycleID}
	records := make([]models.ScoreRecord, 0, len(outcomes))
	for _, o := range outcomes {
		switch {
		case !o.ok:
			report.Failed++
		case o.neutral:
			report.Neutral++
		default:
			report.Published++
		}
		if o.record != nil {
			records = append(records, *o.record)
		}
	}
	c.appendHistory(ctx, cycleID, records)

	report.Elapsed = c.now().Sub(start)
	if c.metrics != nil {
		c.metrics.RecordLatency("publish_cycle", report.Elapsed.Seconds())
	}
	c.log.Info("publish cycle complete",
		logger.String("cycle_id", cycleID),
		logger.Int("published", report.Published),
		logger.Int("neutral", report.Neutral),
		logger.Int("failed", report.Failed),
		logger.Duration("elapsed", report.Elapsed))
	return report
}

type symbolOutcome struct {
	ok        bool
	neutral   bool
	breakdown *models.Breakdown
	record    *models.ScoreRecord
}

// PublishSymbol analyzes and publishes one symbol outside the ticker, as
// the on-demand refresh does.
func (c *PublishCycle) PublishSymbol(ctx context.Context, symbol string) (*models.Breakdown, bool) {
	cycleID := uuid.NewString()
	o := c.publishSymbol(ctx, cycleID, strings.ToUpper(strings.TrimSpace(symbol)))
	if o.record != nil {
		c.appendHistory(ctx, cycleID, []models.ScoreRecord{*o.record})
	}
	if !o.ok {
		return nil, false
	}
	return o.breakdown, true
}

func (c *PublishCycle) publishSymbol(ctx context.Context, cycleID, symbol string) (out symbolOutcome) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("publish symbol panicked",
				logger.String("symbol", symbol),
				logger.Any("panic", r))
			out = c.publishNeutral(ctx, symbol)
		}
	}()

	res, err := c.analyzer.Analyze(ctx, symbol)
	if err != nil || res == nil {
		c.log.Warn("analysis failed, publishing neutral",
			logger.String("symbol", symbol),
			logger.String("cycle_id", cycleID),
			logger.Error(err))
		return c.publishNeutral(ctx, symbol)
	}

	b, ok := c.writer.PublishBreakdown(ctx, symbol, res)
	if !ok {
		return symbolOutcome{}
	}
	c.emit(ctx, cycleID, symbol, b)
	return symbolOutcome{ok: true, breakdown: b, record: scoreRecord(cycleID, res, b)}
}

func (c *PublishCycle) publishNeutral(ctx context.Context, symbol string) symbolOutcome {
	if c.metrics != nil {
		c.metrics.RecordError("analysis")
	}
	b, ok := c.writer.PublishBreakdown(ctx, symbol, publisher.NeutralResult(symbol, c.now()))
	return symbolOutcome{ok: ok, neutral: true, breakdown: b}
}

func (c *PublishCycle) emit(ctx context.Context, cycleID, symbol string, b *models.Breakdown) {
	if c.events == nil || b == nil {
		return
	}
	ev := &models.BreakdownEvent{
		ID:         uuid.NewString(),
		CycleID:    cycleID,
		Symbol:     symbol,
		Breakdown:  *b,
		ProducedAt: c.now().UTC(),
	}
	if err := c.events.PublishBreakdown(ctx, ev); err != nil {
		if c.metrics != nil {
			c.metrics.RecordError("event_publish")
		}
		c.log.Warn("breakdown event not published", logger.String("symbol", symbol), logger.Error(err))
		return
	}
	if c.metrics != nil {
		c.metrics.RecordMessageSent("kafka", symbol)
	}
}

func (c *PublishCycle) appendHistory(ctx context.Context, cycleID string, records []models.ScoreRecord) {
	if c.history == nil || len(records) == 0 {
		return
	}
	if err := c.history.AppendScores(ctx, records); err != nil {
		if c.metrics != nil {
			c.metrics.RecordError("history_append")
		}
		c.log.Warn("score history not stored",
			logger.String("cycle_id", cycleID),
			logger.Int("records", len(records)),
			logger.Error(err))
		return
	}
	if c.metrics != nil {
		c.metrics.RecordMessageSent("clickhouse", "*")
	}
}

func scoreRecord(cycleID string, res *models.AnalysisResult, b *models.Breakdown) *models.ScoreRecord {
	return &models.ScoreRecord{
		Symbol:       b.Symbol,
		Timestamp:    res.Timestamp.UTC(),
		CycleID:      cycleID,
		Score:        b.OverallScore,
		ScoreRaw:     res.Quality.ScoreRaw,
		Consensus:    res.Quality.Consensus,
		Confidence:   res.Quality.Confidence,
		Disagreement: res.Quality.Disagreement,
		Reliability:  b.Reliability,
		Sentiment:    b.Sentiment,
	}
}

func normalizeSymbols(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
