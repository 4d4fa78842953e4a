package repository

import (
	"context"
	"database/sql"
	"fmt"

	"Confluence/internal/domain/models"
	domrepo "Confluence/internal/domain/repository"
	pkgch "Confluence/pkg/clickhouse"
	pkgkafka "Confluence/pkg/kafka"
)

// CHHistoryStore appends score history rows to ClickHouse.
type CHHistoryStore struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	// candleTable is created alongside history when set.
	candleTable string
}

var _ domrepo.HistoryStore = (*CHHistoryStore)(nil)

func NewCHHistoryStore(ch *pkgch.Client, historyTable, candleTable string) *CHHistoryStore {
	s := &CHHistoryStore{ch: ch, db: ch.DB(), table: qualify(ch.Database(), historyTable)}
	if candleTable != "" {
		s.candleTable = qualify(ch.Database(), candleTable)
	}
	return s
}

func (s *CHHistoryStore) Init(ctx context.Context) error {
	stmts := []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    symbol       LowCardinality(String),
    ts           DateTime64(3),
    cycle_id     String,
    score        Float64,
    score_raw    Float64,
    consensus    Float64,
    confidence   Float64,
    disagreement Float64,
    reliability  Float64,
    sentiment    LowCardinality(String)
) ENGINE = MergeTree
ORDER BY (symbol, ts)
TTL toDateTime(ts) + INTERVAL 90 DAY`, s.table)}
	if s.candleTable != "" {
		stmts = append(stmts, CandleSchema(s.candleTable))
	}
	return s.ch.InitSchema(ctx, stmts)
}

// AppendScores inserts records as one batch.
func (s *CHHistoryStore) AppendScores(ctx context.Context, records []models.ScoreRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (symbol, ts, cycle_id, score, score_raw, consensus, confidence, disagreement, reliability, sentiment)", s.table))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.Symbol, r.Timestamp, r.CycleID, r.Score, r.ScoreRaw,
			r.Consensus, r.Confidence, r.Disagreement, r.Reliability, r.Sentiment,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append %s: %w", r.Symbol, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// History returns the newest limit records for symbol, newest first.
func (s *CHHistoryStore) History(ctx context.Context, symbol string, limit int) ([]models.ScoreRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf(`
        SELECT symbol, ts, cycle_id, score, score_raw, consensus, confidence, disagreement, reliability, sentiment
        FROM %s
        WHERE symbol = ?
        ORDER BY ts DESC
        LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []models.ScoreRecord
	for rows.Next() {
		var r models.ScoreRecord
		if err := rows.Scan(&r.Symbol, &r.Timestamp, &r.CycleID, &r.Score, &r.ScoreRaw,
			&r.Consensus, &r.Confidence, &r.Disagreement, &r.Reliability, &r.Sentiment); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *CHHistoryStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

// Close is a no-op; the pool belongs to the client.
func (s *CHHistoryStore) Close() error { return nil }

// KafkaEventPublisher emits breakdown events keyed by symbol so one
// symbol's events stay ordered on one partition.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) PublishBreakdown(ctx context.Context, ev *models.BreakdownEvent) error {
	if ev == nil {
		return nil
	}
	return p.producer.Publish(ctx, p.topic, []byte(ev.Symbol), ev)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
