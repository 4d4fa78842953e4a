package indicators

import (
	"context"
	"fmt"
	"math"
	"time"

	"Confluence/internal/domain/models"
	"Confluence/internal/domain/repository"
	"Confluence/internal/domain/service"
	"Confluence/internal/services/cachehandle"
	"Confluence/pkg/logger"
)

// Scope is the cache-key disambiguator used for full-series indicators.
const Scope = "full"

// Scorer computes indicator and component scores, going through the
// indicator cache when caching is enabled. Cache trouble of any kind falls
// back to direct computation.
type Scorer struct {
	handle         *cachehandle.Handle
	cachingEnabled bool
	readyTimeout   time.Duration
	cacheTimeout   time.Duration
	weights        map[Kind]float64
	metrics        repository.Metrics
	log            *logger.Logger
}

var _ service.ComponentScorer = (*Scorer)(nil)

type ScorerOption func(*Scorer)

func WithCaching(enabled bool) ScorerOption {
	return func(s *Scorer) { s.cachingEnabled = enabled }
}

// WithReadyTimeout bounds how long a pending cache handle is awaited per call.
func WithReadyTimeout(d time.Duration) ScorerOption {
	return func(s *Scorer) {
		if d > 0 {
			s.readyTimeout = d
		}
	}
}

// WithCacheTimeout bounds one GetIndicator call.
func WithCacheTimeout(d time.Duration) ScorerOption {
	return func(s *Scorer) {
		if d > 0 {
			s.cacheTimeout = d
		}
	}
}

// WithIndicatorWeights weights indicators inside their component. Missing
// kinds weigh 1.
func WithIndicatorWeights(w map[Kind]float64) ScorerOption {
	return func(s *Scorer) { s.weights = w }
}

func WithMetrics(m repository.Metrics) ScorerOption {
	return func(s *Scorer) { s.metrics = m }
}

func WithLogger(l *logger.Logger) ScorerOption {
	return func(s *Scorer) {
		if l != nil {
			s.log = l
		}
	}
}

// NewScorer creates a scorer. handle may be nil, which disables caching.
func NewScorer(handle *cachehandle.Handle, opts ...ScorerOption) *Scorer {
	s := &Scorer{
		handle:         handle,
		cachingEnabled: true,
		readyTimeout:   2 * time.Second,
		cacheTimeout:   time.Second,
		log:            logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CachingEnabled reports whether the cache path is active.
func (s *Scorer) CachingEnabled() bool { return s.cachingEnabled && s.handle != nil }

// WithoutCache returns a copy of s that always computes directly.
func (s *Scorer) WithoutCache() *Scorer {
	cp := *s
	cp.cachingEnabled = false
	return &cp
}

// ScoreCached returns kind's score for symbol in [0, 100].
func (s *Scorer) ScoreCached(ctx context.Context, data *models.MarketData, kind Kind, symbol string) float64 {
	if !s.CachingEnabled() {
		return Compute(kind, data)
	}

	readyCtx, cancel := context.WithTimeout(ctx, s.readyTimeout)
	cachehandle.EnsureReady(readyCtx, s.handle, true)
	cancel()

	inst, err := s.handle.Instance()
	if err != nil {
		return s.fallback(kind, data, "not_ready", err)
	}
	getter, ok := inst.(service.IndicatorGetter)
	if !ok {
		return s.fallback(kind, data, "unsupported", fmt.Errorf("cache instance %T has no GetIndicator", inst))
	}

	v, err := s.getCached(ctx, getter, kind, symbol, data)
	if err != nil {
		return s.fallback(kind, data, "error", err)
	}
	return v
}

// ComponentScore is the weighted mean of the component's indicator scores,
// with the per-indicator scores keyed by kind.
func (s *Scorer) ComponentScore(ctx context.Context, component models.Component, data *models.MarketData, symbol string) (float64, map[string]float64) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordComponentLatency(string(component), time.Since(start).Seconds())
		}
	}()

	kinds := KindsFor(component)
	sub := make(map[string]float64, len(kinds))
	if len(kinds) == 0 {
		return models.NeutralScore, sub
	}

	var sum, wsum float64
	for _, kind := range kinds {
		v := s.ScoreCached(ctx, data, kind, symbol)
		sub[string(kind)] = v
		w := 1.0
		if cw, ok := s.weights[kind]; ok && cw >= 0 && !math.IsNaN(cw) {
			w = cw
		}
		sum += w * v
		wsum += w
	}
	if wsum == 0 {
		return models.NeutralScore, sub
	}
	return Clip(sum/wsum, 0, 100), sub
}

type cachedResult struct {
	v   float64
	err error
}

// getCached runs the cache lookup on its own goroutine so a getter that
// ignores ctx still cannot hold the caller past cacheTimeout.
func (s *Scorer) getCached(ctx context.Context, getter service.IndicatorGetter, kind Kind, symbol string, data *models.MarketData) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	defer cancel()

	done := make(chan cachedResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- cachedResult{err: fmt.Errorf("indicator cache panic: %v", r)}
			}
		}()
		v, err := getter.GetIndicator(ctx, string(kind), symbol, Scope, Params(kind), func() (float64, error) {
			return Evaluate(kind, data)
		})
		done <- cachedResult{v: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return 0, res.err
		}
		if math.IsNaN(res.v) || math.IsInf(res.v, 0) {
			return 0, fmt.Errorf("cached %s value is not finite", kind)
		}
		return Clip(res.v, 0, 100), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *Scorer) fallback(kind Kind, data *models.MarketData, reason string, err error) float64 {
	if s.metrics != nil {
		s.metrics.RecordCacheResult(string(kind), "fallback")
	}
	s.log.Debug("indicator cache fallback",
		logger.String("kind", string(kind)),
		logger.String("reason", reason),
		logger.Error(err))
	return Compute(kind, data)
}
