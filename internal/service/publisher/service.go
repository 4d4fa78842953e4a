package publisher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"Confluence/internal/domain/models"
	"Confluence/internal/domain/repository"
	"Confluence/pkg/cache"
	"Confluence/pkg/logger"
)

const (
	BreakdownKeyPrefix = "confluence:breakdown:"
	ScoreKeyPrefix     = "confluence:score:"
	DefaultTTL         = 300 * time.Second
)

var (
	ErrNotFound  = errors.New("publisher: no breakdown for symbol")
	ErrNoStore   = errors.New("publisher: no cache store")
	ErrNilResult = errors.New("publisher: nil analysis result")
)

// BreakdownKey is where the full breakdown for symbol lives.
func BreakdownKey(symbol string) string { return BreakdownKeyPrefix + symbol }

// ScoreKey is where the score summary for symbol lives.
func ScoreKey(symbol string) string { return ScoreKeyPrefix + symbol }

// Service turns analysis results into dashboard breakdowns and writes them
// to the shared cache. Every publish overwrites the previous one.
type Service struct {
	store   cache.Service
	ttl     time.Duration
	log     *logger.Logger
	metrics repository.Metrics
	now     func() time.Time
}

var _ repository.BreakdownPublisher = (*Service)(nil)

type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(store cache.Service, opts ...Option) *Service {
	s := &Service{
		store: store,
		ttl:   DefaultTTL,
		log:   logger.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish writes the breakdown and score summary for symbol. It reports
// false on any failure and never panics.
func (s *Service) Publish(ctx context.Context, symbol string, result *models.AnalysisResult) bool {
	_, ok := s.PublishBreakdown(ctx, symbol, result)
	return ok
}

// PublishBreakdown is Publish that also hands back what was written.
func (s *Service) PublishBreakdown(ctx context.Context, symbol string, result *models.AnalysisResult) (b *models.Breakdown, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("publish panicked",
				logger.String("symbol", symbol),
				logger.String("panic", fmt.Sprint(r)))
			b, ok = nil, false
		}
		if s.metrics != nil {
			s.metrics.RecordPublish(symbol, ok)
		}
	}()

	b, err := s.BuildBreakdown(symbol, result)
	if err == nil {
		err = s.write(ctx, symbol, b)
	}
	if err != nil {
		s.log.Error("publish breakdown failed",
			logger.String("symbol", symbol),
			logger.Error(err))
		return nil, false
	}

	s.log.Debug("published breakdown",
		logger.String("symbol", symbol),
		logger.Float64("score", b.OverallScore),
		logger.String("sentiment", b.Sentiment))
	return b, true
}

// BuildBreakdown converts result into the published shape without writing it.
func (s *Service) BuildBreakdown(symbol string, result *models.AnalysisResult) (*models.Breakdown, error) {
	if result == nil {
		return nil, ErrNilResult
	}
	if symbol == "" {
		symbol = result.Symbol
	}
	if symbol == "" {
		return nil, fmt.Errorf("publisher: empty symbol")
	}

	score := finiteOr(result.ConfluenceScore, models.NeutralScore)
	score = round2(clip(score, 0, 100))
	components := NormalizeComponents(result.Components)

	now := s.now()
	ts := result.Timestamp
	if ts.IsZero() {
		ts = now
	}

	quality := result.Quality
	return &models.Breakdown{
		Symbol:          symbol,
		OverallScore:    score,
		Sentiment:       SentimentFor(score),
		Reliability:     round2(clip(finiteOr(result.Reliability, 0), 0, 100)),
		Components:      components,
		SubComponents:   sanitizeSub(result.SubComponents),
		Interpretations: interpretations(result, score, components),
		Quality:         &quality,
		Timestamp:       ts.Unix(),
		CachedAt:        now.UTC().Format(time.RFC3339),
		HasBreakdown:    true,
		RealConfluence:  true,
	}, nil
}

func (s *Service) write(ctx context.Context, symbol string, b *models.Breakdown) error {
	if s.store == nil {
		return ErrNoStore
	}
	summary := models.ScoreSummary{
		Score:     b.OverallScore,
		Sentiment: b.Sentiment,
		Timestamp: b.Timestamp,
	}
	err := s.store.MSet(ctx, map[string]interface{}{
		BreakdownKey(symbol): b,
		ScoreKey(symbol):     summary,
	}, s.ttl)
	if err != nil {
		return fmt.Errorf("write breakdown: %w", err)
	}
	return nil
}

// Breakdown reads the last published breakdown for symbol.
func (s *Service) Breakdown(ctx context.Context, symbol string) (*models.Breakdown, error) {
	var b models.Breakdown
	if err := s.read(ctx, BreakdownKey(symbol), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Score reads the last published score summary for symbol.
func (s *Service) Score(ctx context.Context, symbol string) (*models.ScoreSummary, error) {
	var sum models.ScoreSummary
	if err := s.read(ctx, ScoreKey(symbol), &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

func (s *Service) read(ctx context.Context, key string, dest interface{}) error {
	if s.store == nil {
		return ErrNoStore
	}
	if err := s.store.Get(ctx, key, dest); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return ErrNotFound
		}
		return fmt.Errorf("read %s: %w", key, err)
	}
	return nil
}

// NeutralResult is published when analysis for symbol failed outright, so
// dashboards always have a data point.
func NeutralResult(symbol string, at time.Time) *models.AnalysisResult {
	components := make(map[string]float64, len(models.Components))
	for _, c := range models.Components {
		components[string(c)] = models.NeutralScore
	}
	return &models.AnalysisResult{
		Symbol:          symbol,
		ConfluenceScore: models.NeutralScore,
		Components:      components,
		Quality:         models.NeutralQuality(),
		Timestamp:       at,
	}
}

func sanitizeSub(in map[string]map[string]float64) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(in))
	for comp, subs := range in {
		m := make(map[string]float64, len(subs))
		for k, v := range subs {
			m[k] = round2(clip(finiteOr(v, models.NeutralScore), 0, 100))
		}
		out[comp] = m
	}
	return out
}

func finiteOr(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}
