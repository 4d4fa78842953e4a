package service

import (
	"context"

	"Confluence/internal/domain/models"
)

// Initializer is implemented by cache instances that need a warm-up step
// (connection check, schema, etc.) before first use.
type Initializer interface {
	Initialize(ctx context.Context) error
	Initialized() bool
}

// ComputeFunc produces an indicator value when the cache misses.
type ComputeFunc func() (float64, error)

// IndicatorGetter is the capability the scorer looks for on a resolved cache instance.
type IndicatorGetter interface {
	GetIndicator(ctx context.Context, kind, symbol, scope string, params map[string]any, compute ComputeFunc) (float64, error)
}

// Aggregator combines component scores into quality metrics. A nil weights
// map means equal weights.
type Aggregator interface {
	Aggregate(scores map[models.Component]float64, weights map[models.Component]float64) models.QualityMetrics
}

// ComponentScorer scores one component and returns its per-indicator sub-scores.
type ComponentScorer interface {
	ComponentScore(ctx context.Context, component models.Component, data *models.MarketData, symbol string) (float64, map[string]float64)
}
