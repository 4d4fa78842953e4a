//go:build wireinject
// +build wireinject

package di

import (
	"Confluence/pkg/config"
	"Confluence/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedis,
		ProvideCacheStore,
		ProvideClickHouse,
		ProvideKafkaProducer,
		ProvideTradeStream,

		// Scoring
		ProvideIndicatorCache,
		ProvideScorer,
		ProvideAggregator,
		ProvideMarketSource,
		ProvideSentiment,
		ProvideAnalysis,

		// Publishing
		ProvidePublisher,
		ProvideEventPublisher,
		ProvideHistoryStore,
		ProvidePublishCycle,
		ProvideQueue,
		ProvideKafkaConsumer,

		// Application server
		ProvideHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeAnalysis wires only what a one-off scoring run needs.
func InitializeAnalysis(cfg *config.Config) (*Scoring, error) {
	wire.Build(
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,
		ProvideRedis,
		ProvideCacheStore,
		ProvideClickHouse,
		provideNoStream,
		ProvideIndicatorCache,
		ProvideScorer,
		ProvideAggregator,
		ProvideMarketSource,
		ProvideSentiment,
		ProvideAnalysis,
		ProvidePublisher,
		wire.Struct(new(Scoring), "*"),
	)
	return &Scoring{}, nil
}
