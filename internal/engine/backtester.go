package engine

import (
	"context"
	"math"
	"time"

	"fx-autotrader/internal/broker"
	"fx-autotrader/internal/model"
	"fx-autotrader/internal/processor"
	"fx-autotrader/internal/risk"
	"fx-autotrader/internal/strategy"
	"fx-autotrader/internal/tradelog"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Backtester replays stored candles through a fresh engine trading a paper
// account on a simulated clock.
type Backtester struct {
	cfg            model.AutoTraderConfig
	initialBalance decimal.Decimal
	logger         *zap.Logger
	equityCurve    []decimal.Decimal
	returns        []float64
}

func NewBacktester(cfg model.AutoTraderConfig, initialBalance decimal.Decimal, logger *zap.Logger) *Backtester {
	return &Backtester{
		cfg:            cfg,
		initialBalance: initialBalance,
		logger:         logger,
		equityCurve:    make([]decimal.Decimal, 0),
		returns:        make([]float64, 0),
	}
}

// Run trades symbol over candles (oldest first). Every candle becomes four
// quotes: open, the first extreme, the second extreme, close. A rising candle
// visits its low first.
func (b *Backtester) Run(ctx context.Context, symbol string, candles []model.Candle) model.BacktestReport {
	symbol = model.NormalizeSymbol(symbol)
	b.equityCurve = b.equityCurve[:0]
	b.returns = b.returns[:0]

	var simNow time.Time
	clock := func() time.Time { return simNow }

	cfg := b.cfg
	cfg.Enabled = true
	cfg.Pairs = []string{symbol}

	quiet := zap.NewNop()
	paper := broker.NewPaper(b.initialBalance, quiet)
	paper.SetClock(clock)
	riskMgr := risk.NewManager(cfg, risk.NewNewsFilter(), quiet)
	riskMgr.SetClock(clock)
	logs := tradelog.NewRing(tradelog.DefaultCapacity)
	logs.SetClock(clock)

	eng := New(cfg, Deps{
		Store:      paper,
		Account:    paper,
		Executor:   NewSyncExecutor(paper, quiet),
		Risk:       riskMgr,
		Aggregator: strategy.NewAggregator(quiet),
		Logs:       logs,
		Candles:    processor.NewCandleBuilder(candleInterval(candles), nil, quiet),
		Clock:      clock,
	}, quiet)

	prevEquity := b.initialBalance
	for _, c := range candles {
		if ctx.Err() != nil {
			break
		}
		if !c.Valid() {
			continue
		}
		for i, price := range pricePath(c) {
			simNow = time.Unix(c.Time, 0).Add(time.Duration(i) * time.Second)
			q := model.Quote{Symbol: symbol, Bid: price, Ask: price, TickTime: simNow}
			paper.UpdatePrices([]model.Quote{q})
			eng.Tick(ctx, []model.Quote{q})
		}

		// Track equity curve and returns
		equity := decimal.NewFromFloat(paper.Equity())
		b.equityCurve = append(b.equityCurve, equity)
		if prevEquity.IsPositive() {
			ret, _ := equity.Sub(prevEquity).Div(prevEquity).Float64()
			b.returns = append(b.returns, ret)
		}
		prevEquity = equity
	}

	// Final liquidation at last price
	for _, pos := range paper.OpenPositions() {
		if err := eng.ClosePosition(ctx, pos.ID, "end of backtest"); err != nil {
			b.logger.Warn("failed to liquidate backtest position", zap.String("position_id", pos.ID), zap.Error(err))
		}
	}

	return b.report(symbol, len(candles), paper)
}

func (b *Backtester) report(symbol string, candleCount int, paper *broker.Paper) model.BacktestReport {
	history := paper.History()
	final := decimal.NewFromFloat(paper.Balance())

	rep := model.BacktestReport{
		Symbol:         symbol,
		Candles:        candleCount,
		TotalTrades:    len(history),
		InitialBalance: b.initialBalance,
		FinalBalance:   final,
		TotalProfit:    decimal.Zero,
		TotalReturn:    decimal.Zero,
		TradesLog:      make([]model.SimulatedTrade, 0, len(history)),
		ExitReasons:    make(map[string]int),
	}
	for _, t := range history {
		pnl := decimal.NewFromFloat(t.Profit)
		rep.TotalProfit = rep.TotalProfit.Add(pnl)
		switch {
		case t.Profit > 0:
			rep.Wins++
		case t.Profit < 0:
			rep.Losses++
		}
		rep.ExitReasons[t.Reason]++
		rep.TradesLog = append(rep.TradesLog, model.SimulatedTrade{
			OpenTime:  t.OpenTime,
			CloseTime: t.CloseTime,
			Symbol:    t.Symbol,
			Side:      t.Side,
			Volume:    decimal.NewFromFloat(t.Volume),
			Entry:     decimal.NewFromFloat(t.OpenPrice),
			Exit:      decimal.NewFromFloat(t.ClosePrice),
			PnL:       pnl,
			Reason:    t.Reason,
		})
	}
	if rep.TotalTrades > 0 {
		rep.WinRate = float64(rep.Wins) / float64(rep.TotalTrades)
	}
	if b.initialBalance.IsPositive() {
		rep.TotalReturn = final.Sub(b.initialBalance).Div(b.initialBalance)
	}
	maxDD, _ := b.calculateMaxDrawdown().Float64()
	rep.MaxDrawdown = maxDD
	rep.SharpRatio = b.calculateSharpeRatio()
	return rep
}

// pricePath orders a candle's prices the way the bar most likely traded.
func pricePath(c model.Candle) []float64 {
	if c.Close >= c.Open {
		return []float64{c.Open, c.Low, c.High, c.Close}
	}
	return []float64{c.Open, c.High, c.Low, c.Close}
}

// candleInterval infers the bar length from the first two candles.
func candleInterval(candles []model.Candle) time.Duration {
	if len(candles) >= 2 {
		if d := candles[1].Time - candles[0].Time; d > 0 {
			return time.Duration(d) * time.Second
		}
	}
	return time.Minute
}

func (b *Backtester) calculateMaxDrawdown() decimal.Decimal {
	if len(b.equityCurve) == 0 {
		return decimal.Zero
	}
	maxEquity := b.equityCurve[0]
	maxDD := decimal.Zero
	for _, equity := range b.equityCurve {
		if equity.GreaterThan(maxEquity) {
			maxEquity = equity
		}
		if !maxEquity.IsPositive() {
			continue
		}
		dd := maxEquity.Sub(equity).Div(maxEquity)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}
	return maxDD
}

func (b *Backtester) calculateSharpeRatio() float64 {
	if len(b.returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range b.returns {
		sum += r
	}
	avgReturn := sum / float64(len(b.returns))

	var sumSqDiff float64
	for _, r := range b.returns {
		diff := r - avgReturn
		sumSqDiff += diff * diff
	}
	stdDev := math.Sqrt(sumSqDiff / float64(len(b.returns)))

	if stdDev == 0 {
		return 0
	}
	return avgReturn / stdDev * math.Sqrt(252)
}
