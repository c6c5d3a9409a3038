package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fx-autotrader/internal/infrastructure"
	"fx-autotrader/internal/model"

	"github.com/jackc/pgx/v4"
	"go.uber.org/zap"
)

// DB is the part of *pgxpool.Pool the savers use.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// batcher buffers rows and flushes them as one pgx batch on a timer or when
// the buffer is full.
type batcher[T any] struct {
	db        DB
	logger    *zap.Logger
	table     string
	interval  time.Duration
	batchSize int
	queue     func(b *pgx.Batch, item T)

	mu    sync.Mutex
	buf   []T
	flush chan struct{}
}

func newBatcher[T any](db DB, logger *zap.Logger, table string, interval time.Duration, batchSize int, queue func(*pgx.Batch, T)) *batcher[T] {
	return &batcher[T]{
		db:        db,
		logger:    logger,
		table:     table,
		interval:  interval,
		batchSize: batchSize,
		queue:     queue,
		buf:       make([]T, 0, batchSize),
		flush:     make(chan struct{}, 1),
	}
}

func (s *batcher[T]) Add(item T) {
	s.mu.Lock()
	s.buf = append(s.buf, item)
	full := len(s.buf) >= s.batchSize
	s.mu.Unlock()
	if full {
		select {
		case s.flush <- struct{}{}:
		default:
		}
	}
}

// Run flushes until ctx is done, then flushes once more.
func (s *batcher[T]) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = s.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			_ = s.Flush(ctx)
		case <-s.flush:
			_ = s.Flush(ctx)
		}
	}
}

// Flush writes the buffered rows. Rows of a failed batch are dropped.
func (s *batcher[T]) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.buf) == 0 {
		s.mu.Unlock()
		return nil
	}
	items := s.buf
	s.buf = make([]T, 0, s.batchSize)
	s.mu.Unlock()

	batch := &pgx.Batch{}
	for _, item := range items {
		s.queue(batch, item)
	}
	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		s.logger.Error("failed to save batch", zap.String("table", s.table), zap.Int("rows", len(items)), zap.Error(err))
		return fmt.Errorf("failed to save %d rows into %s: %w", len(items), s.table, err)
	}
	infrastructure.DBInsertRate.WithLabelValues(s.table).Add(float64(len(items)))
	s.logger.Debug("saved batch", zap.String("table", s.table), zap.Int("rows", len(items)))
	return nil
}

func (s *batcher[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// TradeSaver records closed trades in trade_history. A partial close and
// the final close of the same position are separate rows.
type TradeSaver struct {
	*batcher[model.ClosedTrade]
}

func NewTradeSaver(db DB, logger *zap.Logger, interval time.Duration, batchSize int) *TradeSaver {
	return &TradeSaver{newBatcher(db, logger, "trade_history", interval, batchSize, func(b *pgx.Batch, t model.ClosedTrade) {
		b.Queue(`
			INSERT INTO trade_history (position_id, symbol, side, volume, open_price, close_price, profit, reason, open_time, close_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (position_id, close_time) DO NOTHING`,
			t.PositionID, t.Symbol, string(t.Side), t.Volume, t.OpenPrice, t.ClosePrice, t.Profit, t.Reason, t.OpenTime, t.CloseTime)
	})}
}

// Recent returns the latest closed trades, newest first.
func (s *TradeSaver) Recent(ctx context.Context, limit int) ([]model.ClosedTrade, error) {
	rows, err := s.db.Query(ctx, `
		SELECT position_id, symbol, side, volume, open_price, close_price, profit, reason, open_time, close_time
		FROM trade_history
		ORDER BY close_time DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade history: %w", err)
	}
	defer rows.Close()

	var trades []model.ClosedTrade
	for rows.Next() {
		var (
			t    model.ClosedTrade
			side string
		)
		if err := rows.Scan(&t.PositionID, &t.Symbol, &side, &t.Volume, &t.OpenPrice, &t.ClosePrice, &t.Profit, &t.Reason, &t.OpenTime, &t.CloseTime); err != nil {
			return nil, err
		}
		t.Side = model.Side(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// CandleSaver records completed candles in market_candles.
type CandleSaver struct {
	*batcher[model.Candle]
}

func NewCandleSaver(db DB, logger *zap.Logger, interval time.Duration, batchSize int) *CandleSaver {
	return &CandleSaver{newBatcher(db, logger, "market_candles", interval, batchSize, func(b *pgx.Batch, c model.Candle) {
		b.Queue(`
			INSERT INTO market_candles (time, symbol, open, high, low, close, volume)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (symbol, time) DO UPDATE
			SET high = EXCLUDED.high, low = EXCLUDED.low, close = EXCLUDED.close, volume = EXCLUDED.volume`,
			time.Unix(c.Time, 0).UTC(), c.Symbol, c.Open, c.High, c.Low, c.Close, c.Volume)
	})}
}
