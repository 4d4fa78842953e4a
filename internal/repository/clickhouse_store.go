package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"Confluence/internal/domain/models"
	domrepo "Confluence/internal/domain/repository"
	pkgch "Confluence/pkg/clickhouse"
	applogger "Confluence/pkg/logger"
)

// CHCandleStore reads candles from a ClickHouse table keyed by
// (symbol, tf, bucket).
type CHCandleStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

var _ domrepo.CandleStore = (*CHCandleStore)(nil)

func NewCHCandleStore(ch *pkgch.Client, table string, l *applogger.Logger) *CHCandleStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHCandleStore{db: ch.DB(), table: qualify(ch.Database(), table), l: l}
}

// CandleSchema is the DDL for the candle table.
func CandleSchema(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    symbol LowCardinality(String),
    tf     LowCardinality(String),
    bucket DateTime,
    open   Float64,
    high   Float64,
    low    Float64,
    close  Float64,
    volume Float64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, tf, bucket)`, table)
}

func (s *CHCandleStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	tf = domrepo.NormalizeTimeframe(string(tf))
	q := fmt.Sprintf(`
        SELECT bucket, symbol, open, high, low, close, volume
        FROM %s
        WHERE symbol = ? AND tf = ? AND bucket >= ? AND bucket <= ?
        ORDER BY bucket ASC`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), from, to)
	if err != nil {
		s.l.Error("clickhouse get_candles query error",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Error(err))
		return nil, fmt.Errorf("get candles: %w", err)
	}
	defer rows.Close()
	return scanCandles(rows, 0)
}

// GetLatestNCandles returns the newest n candles in ascending order.
func (s *CHCandleStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	tf = domrepo.NormalizeTimeframe(string(tf))
	q := fmt.Sprintf(`
        SELECT bucket, symbol, open, high, low, close, volume
        FROM %s
        WHERE symbol = ? AND tf = ?
        ORDER BY bucket DESC
        LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), n)
	if err != nil {
		s.l.Error("clickhouse latest_candles query error",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("limit", n),
			applogger.Error(err))
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	out, err := scanCandles(rows, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.l.Debug("clickhouse latest_candles ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration", time.Since(start)))
	return out, nil
}

func scanCandles(rows *sql.Rows, capHint int) ([]models.Candle, error) {
	out := make([]models.Candle, 0, capHint)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// CHSource is a MarketDataSource that only knows candles. Book, trades
// and ticker stay nil so their components score neutral, unless a live
// trade buffer is attached.
type CHSource struct {
	store    domrepo.CandleStore
	tf       domrepo.Timeframe
	lookback int
	trades   domrepo.TradeBuffer
}

var _ domrepo.MarketDataSource = (*CHSource)(nil)

func NewCHSource(store domrepo.CandleStore, tf domrepo.Timeframe, lookback int, trades domrepo.TradeBuffer) *CHSource {
	if lookback <= 0 {
		lookback = 200
	}
	return &CHSource{store: store, tf: domrepo.NormalizeTimeframe(string(tf)), lookback: lookback, trades: trades}
}

func (s *CHSource) Snapshot(ctx context.Context, symbol string) (*models.MarketData, error) {
	candles, err := s.store.GetLatestNCandles(ctx, symbol, s.lookback, s.tf)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", symbol, err)
	}
	data := &models.MarketData{Symbol: symbol, Timestamp: time.Now(), Candles: candles}
	if s.trades != nil {
		data.Trades = s.trades.Recent(symbol, 0)
	}
	return data, nil
}

func qualify(database, table string) string {
	if database == "" {
		return table
	}
	return database + "." + table
}
