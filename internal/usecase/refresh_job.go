package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"Confluence/internal/domain/models"
	"Confluence/pkg/logger"
	"Confluence/pkg/queue"
)

// RefreshJobType is the queue message type for on-demand refreshes.
const RefreshJobType = "confluence.refresh"

type RefreshRequest struct {
	Symbol string `json:"symbol"`
	// Invalidate drops cached indicator values before analyzing.
	Invalidate bool `json:"invalidate"`
}

// IndicatorInvalidator drops cached indicators for a symbol.
type IndicatorInvalidator interface {
	Invalidate(ctx context.Context, symbol string) error
}

// SymbolPublisher analyzes and publishes a single symbol.
type SymbolPublisher interface {
	PublishSymbol(ctx context.Context, symbol string) (*models.Breakdown, bool)
}

// RefreshJob runs analyze+publish for one symbol off the Redis queue.
type RefreshJob struct {
	cycle SymbolPublisher
	cache IndicatorInvalidator
	log   *logger.Logger
}

var _ queue.Job = (*RefreshJob)(nil)

func NewRefreshJob(cycle SymbolPublisher, cache IndicatorInvalidator, l *logger.Logger) *RefreshJob {
	if l == nil {
		l = logger.Nop()
	}
	return &RefreshJob{cycle: cycle, cache: cache, log: l}
}

func (j *RefreshJob) Name() string { return "confluence-refresh" }
func (j *RefreshJob) Type() string { return RefreshJobType }

func (j *RefreshJob) Handle(ctx context.Context, payload json.RawMessage) error {
	req, err := queue.Decode[RefreshRequest](payload)
	if err != nil {
		return err
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return fmt.Errorf("refresh: symbol required")
	}

	if req.Invalidate && j.cache != nil {
		if err := j.cache.Invalidate(ctx, symbol); err != nil {
			j.log.Warn("indicator invalidation failed", logger.String("symbol", symbol), logger.Error(err))
		}
	}
	b, ok := j.cycle.PublishSymbol(ctx, symbol)
	if !ok {
		return fmt.Errorf("refresh %s: publish failed", symbol)
	}
	j.log.Info("symbol refreshed",
		logger.String("symbol", symbol),
		logger.Float64("score", b.OverallScore),
		logger.String("sentiment", b.Sentiment))
	return nil
}
