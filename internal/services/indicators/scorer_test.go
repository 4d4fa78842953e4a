package indicators

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Confluence/internal/domain/models"
	"Confluence/internal/domain/service"
	"Confluence/internal/service/indicatorcache"
	"Confluence/internal/services/cachehandle"
	"Confluence/pkg/cache"
)

type stubGetter struct {
	calls   atomic.Int32
	err     error
	panics  bool
	block   chan struct{}
	value   *float64
	compute bool
}

func (s *stubGetter) GetIndicator(ctx context.Context, kind, symbol, scope string, params map[string]any, compute service.ComputeFunc) (float64, error) {
	s.calls.Add(1)
	switch {
	case s.panics:
		panic("cache client bug")
	case s.block != nil:
		<-s.block
		return 0, nil
	case s.err != nil:
		return 0, s.err
	case s.value != nil:
		return *s.value, nil
	}
	return compute()
}

func TestScoreCached_DisabledComputesDirectly(t *testing.T) {
	g := &stubGetter{}
	s := NewScorer(cachehandle.New(g), WithCaching(false))
	data := trendData(120, 0.003)

	assert.Equal(t, Compute(KindRSI, data), s.ScoreCached(context.Background(), data, KindRSI, "BTCUSDT"))
	assert.Equal(t, int32(0), g.calls.Load())
}

func TestScoreCached_FallbackMatchesDirect(t *testing.T) {
	data := trendData(120, 0.003)
	errGetter := &stubGetter{err: errors.New("memcache: connection refused")}
	panicGetter := &stubGetter{panics: true}

	cases := map[string]*cachehandle.Handle{
		"get error":        cachehandle.New(errGetter),
		"get panic":        cachehandle.New(panicGetter),
		"no capability":    cachehandle.New("just a string"),
		"pending failed":   cachehandle.NewPending(cachehandle.Failed(errors.New("dial"))),
		"nil instance":     cachehandle.New(nil),
		"initialize fails": cachehandle.New(&initGetter{stubGetter: stubGetter{}, initErr: errors.New("ping")}),
	}

	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			s := NewScorer(h)
			for _, kind := range allKinds() {
				assert.Equal(t, Compute(kind, data), s.ScoreCached(context.Background(), data, kind, "BTCUSDT"), kind)
			}
		})
	}
}

func TestScoreCached_SlowGetterIsBounded(t *testing.T) {
	g := &stubGetter{block: make(chan struct{})}
	defer close(g.block)
	s := NewScorer(cachehandle.New(g), WithCacheTimeout(20*time.Millisecond))
	data := trendData(120, 0.003)

	start := time.Now()
	v := s.ScoreCached(context.Background(), data, KindMACD, "BTCUSDT")
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, Compute(KindMACD, data), v)
}

func TestScoreCached_PendingHandleIsBounded(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	h := cachehandle.NewPending(cachehandle.Go(context.Background(), func(context.Context) (any, error) {
		<-release
		return &stubGetter{}, nil
	}))
	s := NewScorer(h, WithReadyTimeout(20*time.Millisecond))
	data := trendData(120, 0.003)

	start := time.Now()
	v := s.ScoreCached(context.Background(), data, KindCMF, "BTCUSDT")
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, Compute(KindCMF, data), v)
	assert.Equal(t, cachehandle.StatePending, h.State())
}

func TestScoreCached_UsesCachedValue(t *testing.T) {
	stored := 73.0
	g := &stubGetter{value: &stored}
	s := NewScorer(cachehandle.New(g))

	assert.Equal(t, 73.0, s.ScoreCached(context.Background(), trendData(120, -0.003), KindRSI, "BTCUSDT"))

	bad := 250.0
	g.value = &bad
	assert.Equal(t, 100.0, s.ScoreCached(context.Background(), trendData(120, -0.003), KindRSI, "BTCUSDT"))
}

func TestScoreCached_ResolvesPendingIndicatorCache(t *testing.T) {
	store := cache.NewMemoryCache()
	defer store.Close()
	ic := indicatorcache.New(store)

	h := cachehandle.NewPending(cachehandle.Go(context.Background(), func(context.Context) (any, error) {
		return ic, nil
	}))
	s := NewScorer(h)
	data := trendData(120, 0.003)

	first := s.ScoreCached(context.Background(), data, KindEMATrend, "BTCUSDT")
	assert.Equal(t, Compute(KindEMATrend, data), first)
	assert.Equal(t, cachehandle.StateReady, h.State())
	assert.True(t, ic.Initialized())
	assert.Equal(t, 1, store.Len())

	// cached value wins over fresh data until it expires
	second := s.ScoreCached(context.Background(), trendData(120, -0.003), KindEMATrend, "BTCUSDT")
	assert.Equal(t, first, second)
}

func TestScoreCached_InsufficientDataIsNotCached(t *testing.T) {
	store := cache.NewMemoryCache()
	defer store.Close()
	s := NewScorer(cachehandle.New(indicatorcache.New(store)))

	v := s.ScoreCached(context.Background(), &models.MarketData{}, KindRSI, "BTCUSDT")
	assert.Equal(t, models.NeutralScore, v)
	assert.Equal(t, 0, store.Len())
}

func TestComponentScore(t *testing.T) {
	s := NewScorer(nil)
	up := trendData(120, 0.004)

	score, sub := s.ComponentScore(context.Background(), models.ComponentTechnical, up, "BTCUSDT")
	require.Len(t, sub, 4)
	sum := 0.0
	for _, v := range sub {
		sum += v
	}
	assert.InDelta(t, sum/4, score, 1e-9)
	assert.Greater(t, score, 70.0)

	score, sub = s.ComponentScore(context.Background(), "unknown", up, "BTCUSDT")
	assert.Equal(t, models.NeutralScore, score)
	assert.Empty(t, sub)
}

func TestComponentScore_Weights(t *testing.T) {
	up := trendData(120, 0.004)
	s := NewScorer(nil, WithIndicatorWeights(map[Kind]float64{
		KindBookImbalance: 1,
		KindDepthPressure: 0,
		KindSpreadQuality: 0,
	}))

	score, _ := s.ComponentScore(context.Background(), models.ComponentOrderbook, up, "BTCUSDT")
	assert.InDelta(t, Compute(KindBookImbalance, up), score, 1e-9)
}

func TestWithoutCache(t *testing.T) {
	g := &stubGetter{}
	s := NewScorer(cachehandle.New(g))
	assert.True(t, s.CachingEnabled())
	assert.False(t, s.WithoutCache().CachingEnabled())
	assert.True(t, s.CachingEnabled())
}

type initGetter struct {
	stubGetter
	initErr error
}

func (g *initGetter) Initialize(context.Context) error { return g.initErr }
func (g *initGetter) Initialized() bool                { return false }
