package di

import (
	"context"
	"fmt"
	"time"

	"Confluence/internal/domain/repository"
	"Confluence/internal/handler/api"
	internalrepo "Confluence/internal/repository"
	"Confluence/internal/service/binance"
	"Confluence/internal/service/indicatorcache"
	"Confluence/internal/service/publisher"
	"Confluence/internal/service/ratelimit"
	"Confluence/internal/service/tradestream"
	"Confluence/internal/services/analytics"
	"Confluence/internal/services/cachehandle"
	"Confluence/internal/services/confluence"
	"Confluence/internal/services/indicators"
	"Confluence/internal/usecase"
	"Confluence/pkg/cache"
	pkgch "Confluence/pkg/clickhouse"
	"Confluence/pkg/config"
	xhttp "Confluence/pkg/http"
	pkgkafka "Confluence/pkg/kafka"
	"Confluence/pkg/logger"
	"Confluence/pkg/metrics"
	"Confluence/pkg/queue"
	"Confluence/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideRegistry creates a private Prometheus registry so that every
// collector, including the Kafka client metrics, is served from one place.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func ProvideMetrics(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.NewWithRegistry(reg)
}

// ProvideRedis opens the Redis client. It does not ping: readiness is
// checked by the indicator cache guard and the job queue on first use.
func ProvideRedis(cfg *config.Config) *cache.RedisCache {
	if cfg.Cache.Backend == "memory" && !cfg.Queue.Enabled {
		return nil
	}
	return cache.OpenRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/4, 0),
		cache.WithRedisTimeouts(cfg.Redis.DialTimeout, cfg.Redis.ReadTimeout, cfg.Redis.WriteTimeout),
		cache.WithRedisPrefix(cfg.Cache.Prefix),
	)
}

// ProvideCacheStore picks the key-value backend shared by the indicator
// cache and the breakdown publisher.
func ProvideCacheStore(cfg *config.Config, redis *cache.RedisCache) cache.Service {
	switch {
	case cfg.Cache.Backend == "memory" || redis == nil:
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemorySize))
	case cfg.Cache.Backend == "layered":
		return cache.NewLayeredCache(redis, cache.WithLayeredMemorySize(cfg.Cache.MemorySize))
	default:
		return redis
	}
}

// ProvideIndicatorCache builds the indicator cache on its own goroutine and
// hands back a pending handle. Scoring never waits on it for longer than
// the configured ready timeout.
func ProvideIndicatorCache(cfg *config.Config, store cache.Service, m *metrics.Recorder, log *logger.Logger) *cachehandle.Handle {
	if !cfg.Cache.IndicatorCaching {
		return nil
	}
	log = log.With(logger.String("component", "indicator_cache"))
	future := cachehandle.Go(context.Background(), func(ctx context.Context) (any, error) {
		return indicatorcache.New(store,
			indicatorcache.WithOpTimeout(cfg.Cache.OpTimeout),
			indicatorcache.WithTTLs(cfg.Cache.DefaultTTL, cfg.Cache.TTLs),
			indicatorcache.WithBreaker(cfg.Cache.BreakerFailures, cfg.Cache.BreakerTimeout),
			indicatorcache.WithMetrics(m),
			indicatorcache.WithLogger(log),
		), nil
	})
	return cachehandle.NewPending(future, cachehandle.WithLogger(log))
}

func ProvideScorer(cfg *config.Config, handle *cachehandle.Handle, m *metrics.Recorder, log *logger.Logger) *indicators.Scorer {
	return indicators.NewScorer(handle,
		indicators.WithCaching(cfg.Cache.IndicatorCaching),
		indicators.WithReadyTimeout(cfg.Cache.ReadyTimeout),
		indicators.WithCacheTimeout(cfg.Cache.OpTimeout),
		indicators.WithMetrics(m),
		indicators.WithLogger(log.With(logger.String("component", "scorer"))),
	)
}

func ProvideAggregator(cfg *config.Config) *confluence.Aggregator {
	return confluence.NewAggregator(confluence.WithDecayRate(cfg.Confluence.DecayRate))
}

// ProvideTradeStream returns nil when the live trade feed is disabled.
func ProvideTradeStream(cfg *config.Config, m *metrics.Recorder, log *logger.Logger) *tradestream.Stream {
	if !cfg.Market.Stream.Enabled {
		return nil
	}
	s := cfg.Market.Stream
	return tradestream.New(s.URL, cfg.Confluence.Symbols,
		tradestream.WithReconnect(s.ReconnectDelay, s.PingInterval),
		tradestream.WithBuffer(tradestream.NewBuffer(s.BufferSize, s.Coalesce)),
		tradestream.WithLogger(log.With(logger.String("component", "tradestream"))),
		tradestream.WithMetrics(m),
	)
}

// ProvideClickHouse returns nil when ClickHouse is disabled.
func ProvideClickHouse(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	ch := cfg.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideHistoryStore creates the score history tables. A nil client means
// history is disabled.
func ProvideHistoryStore(cfg *config.Config, ch *pkgch.Client) (repository.HistoryStore, error) {
	if ch == nil {
		return nil, nil
	}
	store := internalrepo.NewCHHistoryStore(ch, cfg.ClickHouse.HistoryTable, cfg.ClickHouse.CandleTable)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideMarketSource selects where snapshots come from. The live trade
// buffer, when present, backs the trades of either source.
func ProvideMarketSource(cfg *config.Config, ch *pkgch.Client, stream *tradestream.Stream, m *metrics.Recorder, log *logger.Logger) (repository.MarketDataSource, error) {
	var trades repository.TradeBuffer
	if stream != nil {
		trades = stream
	}

	if cfg.Market.Source == "clickhouse" {
		if ch == nil {
			return nil, fmt.Errorf("market source clickhouse: client disabled")
		}
		store := internalrepo.NewCHCandleStore(ch, cfg.ClickHouse.CandleTable, log)
		tf := repository.NormalizeTimeframe(cfg.Market.KlineInterval)
		return internalrepo.NewCHSource(store, tf, cfg.Market.Lookback, trades), nil
	}

	mk := cfg.Market
	opts := []binance.Option{
		binance.WithKlines(mk.KlineInterval, mk.Lookback),
		binance.WithLimits(mk.DepthLimit, mk.TradesLimit),
		binance.WithRateLimit(mk.RateLimit, mk.RateBurst),
		binance.WithRetry(mk.MaxRetries, 500*time.Millisecond),
		binance.WithLogger(log.With(logger.String("component", "binance"))),
		binance.WithMetrics(m),
	}
	if trades != nil {
		opts = append(opts, binance.WithTradeBuffer(trades))
	}
	return binance.New(mk.APIKey, mk.SecretKey, mk.Timeout, opts...), nil
}

// ProvideSentiment returns nil when the sentiment service is disabled.
func ProvideSentiment(cfg *config.Config, store cache.Service) repository.SentimentProvider {
	if !cfg.Sentiment.Enabled {
		return nil
	}
	p := analytics.NewHTTPSentimentProvider(
		analytics.NewHTTPServiceBase(cfg.Sentiment.ServiceURL, cfg.Sentiment.Timeout))
	return analytics.NewCachedSentimentProvider(p, store, cfg.Sentiment.CacheTTL)
}

func ProvideAnalysis(
	cfg *config.Config,
	source repository.MarketDataSource,
	scorer *indicators.Scorer,
	agg *confluence.Aggregator,
	sentiment repository.SentimentProvider,
	m *metrics.Recorder,
	log *logger.Logger,
) *usecase.ConfluenceAnalysis {
	opts := []usecase.AnalysisOption{
		usecase.WithDirectScorer(scorer.WithoutCache()),
		usecase.WithComponentWeights(cfg.Confluence.Weights),
		usecase.WithComponentTimeout(cfg.Confluence.ComponentTimeout),
		usecase.WithAnalysisMetrics(m),
		usecase.WithAnalysisLogger(log.With(logger.String("component", "analysis"))),
	}
	if sentiment != nil {
		opts = append(opts, usecase.WithSentiment(sentiment, cfg.Sentiment.Timeout))
	}
	return usecase.NewConfluenceAnalysis(source, scorer, agg, opts...)
}

func ProvidePublisher(cfg *config.Config, store cache.Service, m *metrics.Recorder, log *logger.Logger) *publisher.Service {
	return publisher.New(store,
		publisher.WithTTL(cfg.Confluence.PublishTTL),
		publisher.WithMetrics(m),
		publisher.WithLogger(log.With(logger.String("component", "publisher"))),
	)
}

// ProvideKafkaProducer returns nil when Kafka is disabled. With log
// collection on, aggregated error logs ride the same producer.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry, log *logger.Logger) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	kc := cfg.Kafka
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(kc.Brokers),
		pkgkafka.WithCompression(kc.Compression),
		pkgkafka.WithRequiredAcks(kc.RequiredAcks),
		pkgkafka.WithBatching(kc.Producer.BatchSize, kc.Producer.BatchBytes, kc.Producer.Linger),
		pkgkafka.WithTimeouts(kc.Producer.WriteTimeout, kc.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(kc.Producer.MaxAttempts),
		pkgkafka.WithAsync(kc.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(reg),
		pkgkafka.WithProducerLogger(log.With(logger.String("component", "kafka_producer"))),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	if cfg.Log.Collect {
		log.AddCollector(&logger.CollectionConfig{
			TimeInterval: cfg.Log.CollectEvery,
			Topic:        cfg.Log.CollectTopic,
			Publisher:    producer,
		})
	}
	return producer, nil
}

func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.EventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topic)
}

func ProvidePublishCycle(
	cfg *config.Config,
	analysis *usecase.ConfluenceAnalysis,
	pub *publisher.Service,
	events repository.EventPublisher,
	history repository.HistoryStore,
	m *metrics.Recorder,
	log *logger.Logger,
) *usecase.PublishCycle {
	opts := []usecase.CycleOption{
		usecase.WithInterval(cfg.Confluence.Interval),
		usecase.WithConcurrency(cfg.Confluence.Concurrency),
		usecase.WithCycleMetrics(m),
		usecase.WithCycleLogger(log.With(logger.String("component", "publish_cycle"))),
	}
	if events != nil {
		opts = append(opts, usecase.WithEvents(events))
	}
	if history != nil {
		opts = append(opts, usecase.WithHistory(history))
	}
	return usecase.NewPublishCycle(analysis, pub, cfg.Confluence.Symbols, opts...)
}

// ProvideQueue returns nil when the refresh queue is disabled.
func ProvideQueue(cfg *config.Config, redis *cache.RedisCache, cycle *usecase.PublishCycle, handle *cachehandle.Handle, log *logger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || redis == nil {
		return nil
	}
	qc := cfg.Queue
	q := queue.NewRedisQueue(redis.Client(), queue.Config{
		Workers:    qc.Workers,
		PollEvery:  qc.PollEvery,
		RetryLimit: qc.Retries,
		RetryDelay: qc.RetryWait,
		DedupeTTL:  qc.DedupeTTL,
	},
		queue.WithKeyPrefix(qc.Name+":queue"),
		queue.WithLogger(log.With(logger.String("component", "queue"))),
	)

	var inv usecase.IndicatorInvalidator
	if handle != nil {
		inv = handleInvalidator{handle}
	}
	q.RegisterJob(usecase.NewRefreshJob(cycle, inv, log))
	return q
}

// ProvideKafkaConsumer returns nil unless the snapshot consumer is enabled.
func ProvideKafkaConsumer(
	cfg *config.Config,
	reg *prometheus.Registry,
	analysis *usecase.ConfluenceAnalysis,
	pub *publisher.Service,
	m *metrics.Recorder,
	log *logger.Logger,
) (*pkgkafka.Consumer, error) {
	kc := cfg.Kafka
	if !kc.Enabled || !kc.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(kc.Brokers),
		pkgkafka.WithConsumerGroupID(kc.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(kc.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(kc.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(kc.Consumer.RetryMax, kc.Consumer.BackoffMin, kc.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(kc.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(kc.Consumer.MinBytes, kc.Consumer.MaxBytes),
		pkgkafka.WithConsumerRegisterer(reg),
		pkgkafka.WithConsumerLogger(log.With(logger.String("component", "kafka_consumer"))),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.TraceHook())
	consumer.RegisterHandler(usecase.NewMarketSnapshotHandler(kc.Consumer.Topic, analysis, pub, m))
	return consumer, nil
}

func ProvideHandler(
	cfg *config.Config,
	pub *publisher.Service,
	analysis *usecase.ConfluenceAnalysis,
	q *queue.RedisQueue,
	history repository.HistoryStore,
	redis *cache.RedisCache,
	stream *tradestream.Stream,
	log *logger.Logger,
) *api.ConfluenceHandler {
	opts := []api.HandlerOption{api.WithAnalyzer(analysis, pub)}
	if cfg.Server.RateLimit > 0 {
		opts = append(opts, api.WithRateLimiter(ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateBurst)))
	}
	if q != nil {
		opts = append(opts, api.WithQueue(q))
	}
	if history != nil {
		opts = append(opts,
			api.WithHistoryStore(history),
			api.WithHealthCheck("clickhouse", history.Health))
	}
	if redis != nil {
		opts = append(opts, api.WithHealthCheck("redis", redis.Ping))
	}
	if stream != nil {
		opts = append(opts, api.WithHealthCheck("tradestream", func(context.Context) error {
			if !stream.IsConnected() {
				return tradestream.ErrNotConnected
			}
			return nil
		}))
	}
	return api.NewConfluenceHandler(log.With(logger.String("component", "http")), pub, opts...)
}

func ProvideHTTPServer(cfg *config.Config, h *api.ConfluenceHandler, reg *prometheus.Registry, log *logger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(true, cfg.Server.AllowOrigins...),
		xhttp.WithLogger(log),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg, reg))
	}
	return xhttp.NewServer(h, opts...)
}

// ProvideApp assembles the lifecycle. Services stop in reverse start order,
// closers run last.
func ProvideApp(
	cfg *config.Config,
	srv *xhttp.Server,
	cycle *usecase.PublishCycle,
	q *queue.RedisQueue,
	consumer *pkgkafka.Consumer,
	stream *tradestream.Stream,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	redis *cache.RedisCache,
	store cache.Service,
	log *logger.Logger,
) *server.App {
	opts := []server.Option{
		server.WithLogger(log),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		server.WithHTTPServer(srv),
		server.WithTask("publish_cycle", cycle.Run),
	}
	if redis != nil {
		opts = append(opts, server.WithCloser("redis", redis.Close))
	}
	if store != cache.Service(redis) {
		opts = append(opts, server.WithCloser("cache", store.Close))
	}
	if ch != nil {
		opts = append(opts, server.WithCloser("clickhouse", ch.Close))
	}
	if producer != nil {
		opts = append(opts, server.WithCloser("kafka_producer", producer.Close))
	}
	opts = append(opts, server.WithCloser("log_collector", func() error {
		log.RemoveCollector()
		return nil
	}))
	if stream != nil {
		opts = append(opts,
			server.WithTask("tradestream", stream.Run),
			server.WithCloser("tradestream", stream.Close))
	}
	if q != nil {
		opts = append(opts, server.WithService("queue", q))
	}
	if consumer != nil {
		opts = append(opts, server.WithService("kafka_consumer", consumerService{consumer}))
	}
	return server.New(opts...)
}

// Scoring is the slice of the graph used by one-off scoring runs.
type Scoring struct {
	Analysis   *usecase.ConfluenceAnalysis
	Publisher  *publisher.Service
	Redis      *cache.RedisCache
	ClickHouse *pkgch.Client
}

// Close releases the clients opened for the run.
func (s *Scoring) Close() error {
	var firstErr error
	if s.ClickHouse != nil {
		firstErr = s.ClickHouse.Close()
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// provideNoStream leaves one-off runs on REST trades.
func provideNoStream() *tradestream.Stream { return nil }
