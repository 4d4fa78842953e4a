package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"Confluence/internal/domain/models"
	domrepo "Confluence/internal/domain/repository"
	domsvc "Confluence/internal/domain/service"
	"Confluence/pkg/logger"
)

// ConfluenceAnalysis turns one market snapshot into an AnalysisResult by
// scoring the six components concurrently and aggregating them.
type ConfluenceAnalysis struct {
	source           domrepo.MarketDataSource
	scorer           domsvc.ComponentScorer
	direct           domsvc.ComponentScorer
	agg              domsvc.Aggregator
	sentiment        domrepo.SentimentProvider
	weights          map[models.Component]float64
	componentTimeout time.Duration
	sentimentTimeout time.Duration
	metrics          domrepo.Metrics
	log              *logger.Logger
	now              func() time.Time
}

type AnalysisOption func(*ConfluenceAnalysis)

// WithDirectScorer sets the scorer used when a caller asks to bypass the
// indicator cache.
func WithDirectScorer(s domsvc.ComponentScorer) AnalysisOption {
	return func(a *ConfluenceAnalysis) { a.direct = s }
}

func WithSentiment(p domrepo.SentimentProvider, timeout time.Duration) AnalysisOption {
	return func(a *ConfluenceAnalysis) {
		a.sentiment = p
		if timeout > 0 {
			a.sentimentTimeout = timeout
		}
	}
}

// WithComponentWeights accepts config-style names; unknown names are ignored.
func WithComponentWeights(w map[string]float64) AnalysisOption {
	return func(a *ConfluenceAnalysis) { a.weights = ComponentWeights(w) }
}

func WithComponentTimeout(d time.Duration) AnalysisOption {
	return func(a *ConfluenceAnalysis) {
		if d > 0 {
			a.componentTimeout = d
		}
	}
}

func WithAnalysisMetrics(m domrepo.Metrics) AnalysisOption {
	return func(a *ConfluenceAnalysis) { a.metrics = m }
}

func WithAnalysisLogger(l *logger.Logger) AnalysisOption {
	return func(a *ConfluenceAnalysis) {
		if l != nil {
			a.log = l
		}
	}
}

func NewConfluenceAnalysis(source domrepo.MarketDataSource, scorer domsvc.ComponentScorer, agg domsvc.Aggregator, opts ...AnalysisOption) *ConfluenceAnalysis {
	a := &ConfluenceAnalysis{
		source:           source,
		scorer:           scorer,
		agg:              agg,
		componentTimeout: 5 * time.Second,
		sentimentTimeout: 3 * time.Second,
		log:              logger.Nop(),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.direct == nil {
		a.direct = scorer
	}
	return a
}

// AnalyzeParams selects the symbol and whether the indicator cache is used.
type AnalyzeParams struct {
	Symbol   string
	UseCache bool
}

// Analyze runs a cached analysis for symbol.
func (a *ConfluenceAnalysis) Analyze(ctx context.Context, symbol string) (*models.AnalysisResult, error) {
	return a.Run(ctx, AnalyzeParams{Symbol: symbol, UseCache: true})
}

// Run fetches a snapshot and scores it. A failing source does not fail the
// run: scoring proceeds on an empty snapshot and every component is neutral.
func (a *ConfluenceAnalysis) Run(ctx context.Context, p AnalyzeParams) (*models.AnalysisResult, error) {
	symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	scorer := a.scorer
	if !p.UseCache {
		scorer = a.direct
	}
	return a.analyze(ctx, scorer, symbol, a.snapshot(ctx, symbol)), nil
}

// AnalyzeSnapshot scores a snapshot delivered by the caller.
func (a *ConfluenceAnalysis) AnalyzeSnapshot(ctx context.Context, data *models.MarketData) (*models.AnalysisResult, error) {
	if data == nil {
		return nil, fmt.Errorf("nil snapshot")
	}
	symbol := strings.ToUpper(strings.TrimSpace(data.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	data.Symbol = symbol
	return a.analyze(ctx, a.scorer, symbol, data), nil
}

func (a *ConfluenceAnalysis) analyze(ctx context.Context, scorer domsvc.ComponentScorer, symbol string, data *models.MarketData) *models.AnalysisResult {
	start := a.now()
	a.enrichSentiment(ctx, symbol, data)

	scores, subs := a.scoreComponents(ctx, scorer, symbol, data)
	q := a.agg.Aggregate(scores, a.weights)

	components := make(map[string]float64, len(scores))
	for c, v := range scores {
		components[string(c)] = v
	}
	res := &models.AnalysisResult{
		Symbol:          symbol,
		ConfluenceScore: q.Score,
		Reliability:     q.Confidence * 100,
		Components:      components,
		SubComponents:   subs,
		Quality:         q,
		Timestamp:       a.now(),
	}

	if a.metrics != nil {
		a.metrics.RecordScore(symbol, q.Score, q.Confidence)
		a.metrics.RecordLatency("analyze", a.now().Sub(start).Seconds())
		if price := data.LastPrice(); price > 0 {
			a.metrics.RecordLastPrice(symbol, price)
		}
	}
	a.log.Debug("analysis complete",
		logger.String("symbol", symbol),
		logger.Float64("score", q.Score),
		logger.Float64("confidence", q.Confidence),
		logger.Bool("high_quality", q.HighQuality()))
	return res
}

func (a *ConfluenceAnalysis) snapshot(ctx context.Context, symbol string) *models.MarketData {
	empty := &models.MarketData{Symbol: symbol, Timestamp: a.now()}
	if a.source == nil {
		return empty
	}
	data, err := a.source.Snapshot(ctx, symbol)
	if err != nil || data == nil {
		if a.metrics != nil {
			a.metrics.RecordError("snapshot")
		}
		a.log.Warn("snapshot unavailable, scoring neutral",
			logger.String("symbol", symbol),
			logger.Error(err))
		return empty
	}
	if data.Symbol == "" {
		data.Symbol = symbol
	}
	return data
}

func (a *ConfluenceAnalysis) enrichSentiment(ctx context.Context, symbol string, data *models.MarketData) {
	if a.sentiment == nil || data.Sentiment != nil || len(data.Candles) == 0 {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, a.sentimentTimeout)
	defer cancel()
	v, err := a.sentiment.Score(sctx, symbol, data)
	if err != nil {
		if a.metrics != nil {
			a.metrics.RecordError("sentiment")
		}
		a.log.Warn("sentiment provider failed", logger.String("symbol", symbol), logger.Error(err))
		return
	}
	data.Sentiment = &v
}

type componentResult struct {
	component models.Component
	score     float64
	sub       map[string]float64
}

// scoreComponents fans out one goroutine per component and waits for all of
// them. A component that panics or overruns its timeout scores neutral.
func (a *ConfluenceAnalysis) scoreComponents(ctx context.Context, scorer domsvc.ComponentScorer, symbol string, data *models.MarketData) (map[models.Component]float64, map[string]map[string]float64) {
	results := make([]componentResult, len(models.Components))
	var wg sync.WaitGroup
	for i, c := range models.Components {
		wg.Add(1)
		go func(i int, c models.Component) {
			defer wg.Done()
			results[i] = a.scoreOne(ctx, scorer, c, symbol, data)
		}(i, c)
	}
	wg.Wait()

	scores := make(map[models.Component]float64, len(results))
	subs := make(map[string]map[string]float64, len(results))
	for _, r := range results {
		scores[r.component] = r.score
		if len(r.sub) > 0 {
			subs[string(r.component)] = r.sub
		}
	}
	return scores, subs
}

func (a *ConfluenceAnalysis) scoreOne(ctx context.Context, scorer domsvc.ComponentScorer, c models.Component, symbol string, data *models.MarketData) componentResult {
	neutral := componentResult{component: c, score: models.NeutralScore}
	cctx, cancel := context.WithTimeout(ctx, a.componentTimeout)
	defer cancel()

	done := make(chan componentResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				a.log.Error("component scoring panicked",
					logger.String("component", string(c)),
					logger.String("symbol", symbol),
					logger.Any("panic", r))
				done <- neutral
			}
		}()
		score, sub := scorer.ComponentScore(cctx, c, data, symbol)
		done <- componentResult{component: c, score: score, sub: sub}
	}()

	select {
	case r := <-done:
		return r
	case <-cctx.Done():
		if a.metrics != nil {
			a.metrics.RecordError("component_timeout")
		}
		a.log.Warn("component scoring timed out",
			logger.String("component", string(c)),
			logger.String("symbol", symbol),
			logger.Duration("timeout", a.componentTimeout))
		return neutral
	}
}

// ComponentWeights maps config keys onto components. Names are matched
// case-insensitively against the six component names.
func ComponentWeights(in map[string]float64) map[models.Component]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[models.Component]float64, len(in))
	for name, w := range in {
		n := strings.ToLower(strings.TrimSpace(name))
		for _, c := range models.Components {
			if n == string(c) {
				out[c] = w
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
