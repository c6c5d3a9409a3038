package processor

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"fx-autotrader/internal/infrastructure"
	"fx-autotrader/internal/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// MaxCandles bounds each symbol's rolling window.
const MaxCandles = 200

// Publisher is the slice of nats.JetStreamContext the builder needs.
type Publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// CandleBuilder turns quotes into rolling per-symbol candles. With a zero
// period every new quote closes a candle of its own.
type CandleBuilder struct {
	period   time.Duration
	js       Publisher
	logger   *zap.Logger
	mu       sync.Mutex
	series   map[string][]model.Candle
	lastTick map[string]time.Time
	sinks    []func(model.Candle)
}

func NewCandleBuilder(period time.Duration, js Publisher, logger *zap.Logger) *CandleBuilder {
	return &CandleBuilder{
		period:   period,
		js:       js,
		logger:   logger.With(zap.String("component", "candle_builder")),
		series:   make(map[string][]model.Candle),
		lastTick: make(map[string]time.Time),
	}
}

// OnComplete registers a callback for every finished candle.
func (b *CandleBuilder) OnComplete(fn func(model.Candle)) {
	b.mu.Lock()
	b.sinks = append(b.sinks, fn)
	b.mu.Unlock()
}

// OnQuote folds one quote into its symbol's series. A quote whose tick time
// was already seen is ignored so a polled feed does not double count.
func (b *CandleBuilder) OnQuote(q model.Quote) {
	mid := q.Mid()
	if mid <= 0 {
		return
	}
	symbol := model.NormalizeSymbol(q.Symbol)
	ts := q.TickTime
	if ts.IsZero() {
		ts = time.Now()
	}

	b.mu.Lock()
	if last, ok := b.lastTick[symbol]; ok && !q.TickTime.IsZero() && !q.TickTime.After(last) {
		b.mu.Unlock()
		return
	}
	b.lastTick[symbol] = ts

	var completed []model.Candle
	series := b.series[symbol]
	if b.period <= 0 {
		open := mid
		if n := len(series); n > 0 {
			open = series[n-1].Close
		}
		c := model.Candle{
			Symbol: symbol,
			Time:   ts.Unix(),
			Open:   open,
			High:   max(open, mid),
			Low:    min(open, mid),
			Close:  mid,
			Volume: 1,
		}
		series = append(series, c)
		completed = append(completed, c)
	} else {
		bucket := ts.Truncate(b.period).Unix()
		n := len(series)
		if n > 0 && series[n-1].Time == bucket {
			cur := &series[n-1]
			cur.High = max(cur.High, mid)
			cur.Low = min(cur.Low, mid)
			cur.Close = mid
			cur.Volume++
		} else {
			if n > 0 {
				completed = append(completed, series[n-1])
			}
			series = append(series, model.Candle{
				Symbol: symbol,
				Time:   bucket,
				Open:   mid,
				High:   mid,
				Low:    mid,
				Close:  mid,
				Volume: 1,
			})
		}
	}
	if len(series) > MaxCandles {
		series = series[len(series)-MaxCandles:]
	}
	b.series[symbol] = series
	sinks := b.sinks
	b.mu.Unlock()

	for _, c := range completed {
		b.publish(c)
		for _, fn := range sinks {
			fn(c)
		}
	}
}

// Candles returns a copy of the symbol's window, oldest first. In bucketed
// mode the last candle is still forming.
func (b *CandleBuilder) Candles(symbol string) []model.Candle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Candle(nil), b.series[model.NormalizeSymbol(symbol)]...)
}

// Seed replaces a symbol's window, typically with history from storage.
func (b *CandleBuilder) Seed(symbol string, candles []model.Candle) {
	symbol = model.NormalizeSymbol(symbol)
	if len(candles) > MaxCandles {
		candles = candles[len(candles)-MaxCandles:]
	}
	b.mu.Lock()
	b.series[symbol] = append([]model.Candle(nil), candles...)
	b.mu.Unlock()
}

func (b *CandleBuilder) publish(c model.Candle) {
	if b.js == nil {
		return
	}
	data, err := json.Marshal(c)
	if err != nil {
		b.logger.Error("failed to marshal candle", zap.Error(err))
		return
	}
	subject := fmt.Sprintf("%s%s", infrastructure.SubjectCandle, c.Symbol)
	if _, err := b.js.Publish(subject, data); err != nil {
		b.logger.Error("failed to publish candle", zap.String("subject", subject), zap.Error(err))
	}
}
