package repository

import (
	"context"

	"Confluence/internal/domain/models"
)

// MarketDataSource produces a per-symbol snapshot for scoring.
type MarketDataSource interface {
	Snapshot(ctx context.Context, symbol string) (*models.MarketData, error)
}

// TradeStream is a live trade feed that keeps a short per-symbol buffer.
type TradeStream interface {
	Connect(ctx context.Context) error
	Run(ctx context.Context) error
	IsConnected() bool
	Close() error
	TradeBuffer
}

type TradeBuffer interface {
	// Recent returns up to limit trades, oldest first.
	Recent(symbol string, limit int) []models.Trade
}

type SentimentProvider interface {
	Score(ctx context.Context, symbol string, data *models.MarketData) (float64, error)
}

// BreakdownPublisher persists analysis results for dashboards.
type BreakdownPublisher interface {
	Publish(ctx context.Context, symbol string, result *models.AnalysisResult) bool
}

type EventPublisher interface {
	PublishBreakdown(ctx context.Context, ev *models.BreakdownEvent) error
	Close() error
}

type HistoryStore interface {
	Init(ctx context.Context) error
	AppendScores(ctx context.Context, records []models.ScoreRecord) error
	History(ctx context.Context, symbol string, limit int) ([]models.ScoreRecord, error)
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordCacheResult(kind, result string)
	RecordComponentLatency(component string, seconds float64)
	RecordScore(symbol string, score, confidence float64)
	RecordPublish(symbol string, ok bool)
}
