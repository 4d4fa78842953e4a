package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"Confluence/internal/domain/models"
	domrepo "Confluence/internal/domain/repository"
	pkgkafka "Confluence/pkg/kafka"
)

// SnapshotScorer scores a snapshot that was delivered rather than fetched.
type SnapshotScorer interface {
	AnalyzeSnapshot(ctx context.Context, data *models.MarketData) (*models.AnalysisResult, error)
}

// MarketSnapshotHandler consumes MarketData JSON snapshots from Kafka,
// scores them and publishes the breakdown.
type MarketSnapshotHandler struct {
	topic   string
	scorer  SnapshotScorer
	writer  BreakdownWriter
	metrics domrepo.Metrics
}

func NewMarketSnapshotHandler(topic string, scorer SnapshotScorer, writer BreakdownWriter, metrics domrepo.Metrics) *MarketSnapshotHandler {
	return &MarketSnapshotHandler{topic: topic, scorer: scorer, writer: writer, metrics: metrics}
}

func (h *MarketSnapshotHandler) Topic() string { return h.topic }

// Handle classifies bad payloads as HookError so the consumer parks them on
// the DLQ without retrying.
func (h *MarketSnapshotHandler) Handle(ctx context.Context, b []byte) error {
	var data models.MarketData
	if err := json.Unmarshal(b, &data); err != nil {
		h.recordError("snapshot_unmarshal")
		return &pkgkafka.HookError{Code: "ERR_DECODE", Err: err}
	}
	data.Symbol = strings.ToUpper(strings.TrimSpace(data.Symbol))
	if data.Symbol == "" {
		h.recordError("snapshot_symbol")
		return &pkgkafka.HookError{Code: "ERR_VALIDATION", Err: fmt.Errorf("snapshot without symbol")}
	}
	if !data.Timestamp.IsZero() && h.metrics != nil {
		h.metrics.RecordLatency("snapshot_e2e", time.Since(data.Timestamp).Seconds())
	}

	res, err := h.scorer.AnalyzeSnapshot(ctx, &data)
	if err != nil {
		h.recordError("snapshot_analyze")
		return err
	}
	if _, ok := h.writer.PublishBreakdown(ctx, data.Symbol, res); !ok {
		return fmt.Errorf("publish %s: failed", data.Symbol)
	}
	return nil
}

func (h *MarketSnapshotHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*MarketSnapshotHandler)(nil)
