package engine

import (
	"context"
	"time"

	"fx-autotrader/internal/model"

	"github.com/jackc/pgx/v4/pgxpool"
)

type DataLoader struct {
	pool *pgxpool.Pool
}

func NewDataLoader(pool *pgxpool.Pool) *DataLoader {
	return &DataLoader{pool: pool}
}

// LoadCandles returns stored candles for symbol in [start, end], oldest first.
func (l *DataLoader) LoadCandles(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT time, symbol, open, high, low, close, volume
		FROM market_candles
		WHERE symbol = $1 AND time >= $2 AND time <= $3
		ORDER BY time ASC`,
		model.NormalizeSymbol(symbol), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var (
			c  model.Candle
			ts time.Time
		)
		if err := rows.Scan(&ts, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		c.Time = ts.Unix()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// LoadRecent returns the latest limit candles for symbol, oldest first. It
// seeds the live candle windows at startup.
func (l *DataLoader) LoadRecent(ctx context.Context, symbol string, limit int) ([]model.Candle, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT time, symbol, open, high, low, close, volume
		FROM (
			SELECT * FROM market_candles WHERE symbol = $1 ORDER BY time DESC LIMIT $2
		) recent
		ORDER BY time ASC`,
		model.NormalizeSymbol(symbol), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var (
			c  model.Candle
			ts time.Time
		)
		if err := rows.Scan(&ts, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		c.Time = ts.Unix()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}
