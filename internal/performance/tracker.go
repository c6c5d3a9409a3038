// Package performance summarises closed trades.
package performance

import (
	"sync"
	"time"

	"fx-autotrader/internal/model"

	"github.com/shopspring/decimal"
)

// MaxTrades bounds the kept history; the oldest trades are dropped first.
const MaxTrades = 10000

// Stats 交易绩效统计
type Stats struct {
	TotalTrades  int             `json:"total_trades"`
	Wins         int             `json:"winning_trades"`
	Losses       int             `json:"losing_trades"`
	WinRate      float64         `json:"win_rate"` // percent
	TotalProfit  decimal.Decimal `json:"total_profit"`
	AvgProfit    decimal.Decimal `json:"avg_profit"`
	BestTrade    decimal.Decimal `json:"best_trade"`
	WorstTrade   decimal.Decimal `json:"worst_trade"`
	ProfitFactor float64         `json:"profit_factor"`
}

type Tracker struct {
	mu     sync.RWMutex
	trades []model.ClosedTrade
	now    func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Record adds a closed trade. It matches the broker's close hook signature.
func (t *Tracker) Record(trade model.ClosedTrade) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trades = append(t.trades, trade)
	if len(t.trades) > MaxTrades {
		t.trades = append([]model.ClosedTrade(nil), t.trades[len(t.trades)-MaxTrades:]...)
	}
}

// Load replaces the history, e.g. with trades read back from Postgres.
func (t *Tracker) Load(trades []model.ClosedTrade) {
	for _, tr := range trades {
		t.Record(tr)
	}
}

// Stats covers trades closed within the last days; days <= 0 covers all.
// Every trade that is not a win counts as a loss.
func (t *Tracker) Stats(days int) Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var cutoff time.Time
	if days > 0 {
		cutoff = t.now().AddDate(0, 0, -days)
	}

	st := Stats{
		TotalProfit: decimal.Zero,
		AvgProfit:   decimal.Zero,
		BestTrade:   decimal.Zero,
		WorstTrade:  decimal.Zero,
	}
	grossProfit, grossLoss := decimal.Zero, decimal.Zero
	for _, tr := range t.trades {
		if !cutoff.IsZero() && !tr.CloseTime.After(cutoff) {
			continue
		}
		p := decimal.NewFromFloat(tr.Profit)
		if st.TotalTrades == 0 || p.GreaterThan(st.BestTrade) {
			st.BestTrade = p
		}
		if st.TotalTrades == 0 || p.LessThan(st.WorstTrade) {
			st.WorstTrade = p
		}
		st.TotalTrades++
		st.TotalProfit = st.TotalProfit.Add(p)
		if p.IsPositive() {
			st.Wins++
			grossProfit = grossProfit.Add(p)
		} else {
			grossLoss = grossLoss.Add(p.Neg())
		}
	}
	if st.TotalTrades == 0 {
		return st
	}
	st.Losses = st.TotalTrades - st.Wins
	st.WinRate = float64(st.Wins) / float64(st.TotalTrades) * 100
	st.AvgProfit = st.TotalProfit.Div(decimal.NewFromInt(int64(st.TotalTrades))).Round(2)
	if grossLoss.IsPositive() {
		st.ProfitFactor, _ = grossProfit.Div(grossLoss).Round(4).Float64()
	}
	return st
}
