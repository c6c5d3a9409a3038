package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"fx-autotrader/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// zigzagCandles climbs 10 pips and gives back 5 on alternate bars.
func zigzagCandles(n int) []model.Candle {
	start := time.Date(2026, 10, 12, 8, 0, 0, 0, time.UTC).Unix()
	out := make([]model.Candle, n)
	prev := 1.1000
	for i := 0; i < n; i++ {
		c := prev + 0.0010
		if i%2 == 1 {
			c = prev - 0.0005
		}
		out[i] = model.Candle{
			Symbol: "EURUSD",
			Time:   start + int64(i*60),
			Open:   prev,
			High:   math.Max(prev, c) + 0.0001,
			Low:    math.Min(prev, c) - 0.0001,
			Close:  c,
		}
		prev = c
	}
	return out
}

func backtestConfig() model.AutoTraderConfig {
	cfg := model.DefaultAutoTraderConfig()
	cfg.Strategies = model.StrategySelection{
		Items:         []model.StrategySettings{{Name: model.StrategyTrend, Enabled: true, Weight: 100, MinConfidence: 60}},
		MinConfidence: 65,
	}
	return cfg
}

func TestBacktester(t *testing.T) {
	initialBalance := decimal.NewFromInt(10000)
	tester := NewBacktester(backtestConfig(), initialBalance, zap.NewNop())

	report := tester.Run(context.Background(), "eur/usd", zigzagCandles(150))

	assert.Equal(t, "EURUSD", report.Symbol)
	assert.Equal(t, 150, report.Candles)
	require.Greater(t, report.TotalTrades, 0)
	assert.Len(t, report.TradesLog, report.TotalTrades)
	assert.LessOrEqual(t, report.Wins+report.Losses, report.TotalTrades)

	sum := decimal.Zero
	for _, tr := range report.TradesLog {
		sum = sum.Add(tr.PnL)
		assert.Equal(t, model.SideBuy, tr.Side)
		assert.False(t, tr.CloseTime.Before(tr.OpenTime))
	}
	assert.True(t, sum.Equal(report.TotalProfit), "sum %s total %s", sum, report.TotalProfit)
	assert.True(t, report.FinalBalance.Equal(initialBalance.Add(report.TotalProfit)))

	reasons := 0
	for _, n := range report.ExitReasons {
		reasons += n
	}
	assert.Equal(t, report.TotalTrades, reasons)
	assert.GreaterOrEqual(t, report.MaxDrawdown, 0.0)
	assert.Less(t, report.MaxDrawdown, 1.0)
}

func TestBacktesterNoCandles(t *testing.T) {
	initialBalance := decimal.NewFromInt(5000)
	tester := NewBacktester(backtestConfig(), initialBalance, zap.NewNop())

	report := tester.Run(context.Background(), "EURUSD", nil)

	assert.Zero(t, report.TotalTrades)
	assert.True(t, report.FinalBalance.Equal(initialBalance))
	assert.True(t, report.TotalReturn.IsZero())
	assert.Zero(t, report.MaxDrawdown)
	assert.Zero(t, report.SharpRatio)
	assert.Zero(t, report.WinRate)
}

func TestBacktesterStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tester := NewBacktester(backtestConfig(), decimal.NewFromInt(10000), zap.NewNop())

	report := tester.Run(ctx, "EURUSD", zigzagCandles(150))

	assert.Zero(t, report.TotalTrades)
	assert.Empty(t, tester.equityCurve)
}

func TestPricePath(t *testing.T) {
	up := model.Candle{Open: 1.10, High: 1.12, Low: 1.09, Close: 1.11}
	assert.Equal(t, []float64{1.10, 1.09, 1.12, 1.11}, pricePath(up))

	down := model.Candle{Open: 1.11, High: 1.12, Low: 1.09, Close: 1.10}
	assert.Equal(t, []float64{1.11, 1.12, 1.09, 1.10}, pricePath(down))
}

func TestCandleInterval(t *testing.T) {
	assert.Equal(t, time.Minute, candleInterval(nil))
	assert.Equal(t, 5*time.Minute, candleInterval([]model.Candle{{Time: 0}, {Time: 300}}))
	assert.Equal(t, time.Minute, candleInterval([]model.Candle{{Time: 300}, {Time: 300}}))
}

func TestCalculateMaxDrawdown(t *testing.T) {
	b := NewBacktester(backtestConfig(), decimal.NewFromInt(100), zap.NewNop())
	for _, v := range []int64{100, 120, 90, 110, 130, 117} {
		b.equityCurve = append(b.equityCurve, decimal.NewFromInt(v))
	}

	dd, _ := b.calculateMaxDrawdown().Float64()
	assert.InDelta(t, 0.25, dd, 1e-9)
}

func TestCalculateSharpeRatio(t *testing.T) {
	b := NewBacktester(backtestConfig(), decimal.NewFromInt(100), zap.NewNop())
	b.returns = []float64{0.01, 0.01, 0.01}
	assert.Zero(t, b.calculateSharpeRatio(), "zero variance")

	b.returns = []float64{0.02, 0}
	assert.InDelta(t, math.Sqrt(252), b.calculateSharpeRatio(), 1e-9)
}
