package indicatorcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"Confluence/internal/domain/repository"
	"Confluence/internal/domain/service"
	"Confluence/pkg/cache"
	"Confluence/pkg/logger"
)

const keyPrefix = "indicator"

var (
	ErrNoBackend  = errors.New("indicatorcache: no backing store")
	ErrBadCompute = errors.New("indicatorcache: compute returned a non-finite value")
)

// Cache stores computed indicator values keyed by kind, symbol, scope and a
// hash of the indicator parameters. It satisfies service.IndicatorGetter and
// service.Initializer.
type Cache struct {
	store       cache.Service
	breaker     *gobreaker.CircuitBreaker
	group       singleflight.Group
	opTimeout   time.Duration
	defaultTTL  time.Duration
	ttls        map[string]time.Duration
	metrics     repository.Metrics
	log         *logger.Logger
	initialized atomic.Bool
}

var (
	_ service.IndicatorGetter = (*Cache)(nil)
	_ service.Initializer     = (*Cache)(nil)
)

type Option func(*config)

type config struct {
	opTimeout       time.Duration
	defaultTTL      time.Duration
	ttls            map[string]time.Duration
	breakerFailures uint32
	breakerTimeout  time.Duration
	metrics         repository.Metrics
	log             *logger.Logger
}

// WithOpTimeout bounds every backend call.
func WithOpTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.opTimeout = d
		}
	}
}

// WithTTLs sets the default TTL and per-kind overrides.
func WithTTLs(def time.Duration, perKind map[string]time.Duration) Option {
	return func(c *config) {
		if def > 0 {
			c.defaultTTL = def
		}
		c.ttls = perKind
	}
}

// WithBreaker trips after failures consecutive backend errors and stays open for timeout.
func WithBreaker(failures uint32, timeout time.Duration) Option {
	return func(c *config) {
		if failures > 0 {
			c.breakerFailures = failures
		}
		if timeout > 0 {
			c.breakerTimeout = timeout
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *config) { c.log = l }
}

// New creates an indicator cache on top of store.
func New(store cache.Service, opts ...Option) *Cache {
	cfg := &config{
		opTimeout:       750 * time.Millisecond,
		defaultTTL:      time.Minute,
		breakerFailures: 5,
		breakerTimeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.Nop()
	}

	st := gobreaker.Settings{
		Name:     "indicator-cache",
		Interval: time.Minute,
		Timeout:  cfg.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.breakerFailures
		},
		// a miss is a healthy answer
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, cache.ErrCacheMiss)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.log.Warn("circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	}

	return &Cache{
		store:      store,
		breaker:    gobreaker.NewCircuitBreaker(st),
		opTimeout:  cfg.opTimeout,
		defaultTTL: cfg.defaultTTL,
		ttls:       cfg.ttls,
		metrics:    cfg.metrics,
		log:        cfg.log,
	}
}

// Initialize checks the backend is reachable.
func (c *Cache) Initialize(ctx context.Context) error {
	if c.store == nil {
		return ErrNoBackend
	}
	_, err := c.breaker.Execute(func() (any, error) {
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
		return nil, c.store.Ping(opCtx)
	})
	if err != nil {
		return fmt.Errorf("ping indicator cache: %w", err)
	}
	c.initialized.Store(true)
	return nil
}

func (c *Cache) Initialized() bool { return c.initialized.Load() }

// BreakerState exposes the breaker position for health output.
func (c *Cache) BreakerState() string { return c.breaker.State().String() }

// GetIndicator returns the cached value for the key or runs compute, stores
// the result and returns it. Concurrent misses on one key share a single
// compute. Backend errors are returned so the caller can compute directly.
func (c *Cache) GetIndicator(ctx context.Context, kind, symbol, scope string, params map[string]any, compute service.ComputeFunc) (float64, error) {
	if c.store == nil {
		return 0, ErrNoBackend
	}
	key, err := Key(kind, symbol, scope, params)
	if err != nil {
		return 0, err
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		cached, err := c.get(ctx, key)
		switch {
		case err == nil:
			c.record(kind, "hit")
			return cached, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.record(kind, "error")
			return nil, err
		}

		c.record(kind, "miss")
		val, err := safeCompute(compute)
		if err != nil {
			return nil, err
		}
		if err := c.set(ctx, key, val, c.ttlFor(kind)); err != nil {
			c.record(kind, "error")
			c.log.Debug("indicator cache write failed",
				logger.String("key", key),
				logger.Error(err))
		}
		return val, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// Invalidate drops every cached indicator for symbol.
func (c *Cache) Invalidate(ctx context.Context, symbol string) error {
	if c.store == nil {
		return ErrNoBackend
	}
	_, err := c.breaker.Execute(func() (any, error) {
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
		return nil, c.store.DeleteByPattern(opCtx, fmt.Sprintf("%s:*:%s:*", keyPrefix, symbol))
	})
	return err
}

func (c *Cache) get(ctx context.Context, key string) (float64, error) {
	v, err := c.breaker.Execute(func() (any, error) {
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
		var val float64
		if err := c.store.Get(opCtx, key, &val); err != nil {
			return nil, err
		}
		return val, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (c *Cache) set(ctx context.Context, key string, val float64, ttl time.Duration) error {
	_, err := c.breaker.Execute(func() (any, error) {
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
		return nil, c.store.Set(opCtx, key, val, ttl)
	})
	return err
}

func (c *Cache) ttlFor(kind string) time.Duration {
	if ttl, ok := c.ttls[kind]; ok && ttl > 0 {
		return ttl
	}
	return c.defaultTTL
}

func (c *Cache) record(kind, result string) {
	if c.metrics != nil {
		c.metrics.RecordCacheResult(kind, result)
	}
}

// Key builds indicator:{kind}:{symbol}:{scope}:{md5(params)}. Params are
// hashed from their JSON form, which orders map keys.
func Key(kind, symbol, scope string, params map[string]any) (string, error) {
	if params == nil {
		params = map[string]any{}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("hash indicator params: %w", err)
	}
	return cache.GenerateKeyWithParams(keyPrefix, kind, symbol, scope, cache.HashKey(string(b))), nil
}

func safeCompute(compute service.ComputeFunc) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("indicator compute panic: %v", r)
		}
	}()
	v, err = compute()
	if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
		err = ErrBadCompute
	}
	return v, err
}
