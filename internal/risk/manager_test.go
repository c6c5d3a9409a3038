package risk

import (
	"testing"
	"time"

	"fx-autotrader/internal/model"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// Wednesday noon.
var midweek = time.Date(2026, 10, 14, 12, 0, 0, 0, time.Local)

func newTestManager(mutate func(*model.AutoTraderConfig)) *Manager {
	cfg := model.DefaultAutoTraderConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	m := NewManager(cfg, NewNewsFilter(), zap.NewNop())
	m.SetClock(func() time.Time { return midweek })
	return m
}

func TestCanTrade_DailyLossBoundary(t *testing.T) {
	m := newTestManager(nil)
	m.RecordTradeResult(-499.99)
	ok, _ := m.CanTrade(10_000)
	assert.True(t, ok)

	m = newTestManager(nil)
	m.RecordTradeResult(-500)
	ok, reason := m.CanTrade(10_000)
	assert.False(t, ok)
	assert.Equal(t, "daily loss limit reached", reason)
}

func TestCanTrade_Drawdown(t *testing.T) {
	m := newTestManager(func(c *model.AutoTraderConfig) { c.Risk.MaxDailyLoss = 0 })

	ok, _ := m.CanTrade(10_000)
	assert.True(t, ok)
	ok, _ = m.CanTrade(9_100)
	assert.True(t, ok)

	ok, reason := m.CanTrade(9_000)
	assert.False(t, ok)
	assert.Equal(t, "max drawdown reached", reason)
}

func TestCanTrade_Session(t *testing.T) {
	m := newTestManager(func(c *model.AutoTraderConfig) {
		c.Session = model.SessionConfig{Enabled: true, StartHour: 8, EndHour: 12, MaxTradesPerSession: 2}
	})
	ok, reason := m.CanTrade(10_000)
	assert.False(t, ok, "end hour is exclusive")
	assert.Equal(t, "outside session hours", reason)

	m.SetClock(func() time.Time { return midweek.Add(-time.Hour) })
	ok, _ = m.CanTrade(10_000)
	assert.True(t, ok)

	m.RecordTradeOpened()
	m.RecordTradeOpened()
	ok, reason = m.CanTrade(10_000)
	assert.False(t, ok)
	assert.Contains(t, reason, "outside session hours")
}

func TestInSession(t *testing.T) {
	tests := []struct {
		hour, start, end int
		want             bool
	}{
		{8, 8, 20, true},
		{19, 8, 20, true},
		{20, 8, 20, false},
		{7, 8, 20, false},
		{23, 22, 6, true},
		{3, 22, 6, true},
		{12, 22, 6, false},
		{5, 0, 0, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, inSession(tt.hour, tt.start, tt.end), "hour %d in [%d,%d)", tt.hour, tt.start, tt.end)
	}
}

func TestCanTrade_SupplementaryGates(t *testing.T) {
	m := newTestManager(func(c *model.AutoTraderConfig) {
		c.Risk.MaxConsecutiveLosses = 2
	})
	m.RecordTradeResult(-10)
	m.RecordTradeResult(-10)
	ok, reason := m.CanTrade(10_000)
	assert.False(t, ok)
	assert.Equal(t, "max consecutive losses (2) reached", reason)

	m.RecordTradeResult(30)
	ok, _ = m.CanTrade(10_000)
	assert.True(t, ok, "a win clears the losing streak")

	m = newTestManager(func(c *model.AutoTraderConfig) { c.Risk.DailyProfitTarget = 100 })
	m.RecordTradeResult(100)
	ok, reason = m.CanTrade(10_000)
	assert.False(t, ok)
	assert.Equal(t, "daily profit target reached", reason)
}

func TestCanTrade_WinningStreakBreak(t *testing.T) {
	m := newTestManager(func(c *model.AutoTraderConfig) { c.Risk.MaxConsecutiveWins = 3 })
	m.RecordTradeResult(10)
	m.RecordTradeResult(10)
	ok, _ := m.CanTrade(10_000)
	assert.True(t, ok)

	m.RecordTradeResult(10)
	ok, reason := m.CanTrade(10_000)
	assert.False(t, ok)
	assert.Equal(t, "taking a break after 3 consecutive wins", reason)

	m.SetClock(func() time.Time { return midweek.Add(24 * time.Hour) })
	ok, _ = m.CanTrade(10_000)
	assert.True(t, ok, "the break ends with the day")
	assert.Zero(t, m.State().ConsecutiveWins)

	m = newTestManager(nil)
	for i := 0; i < 10; i++ {
		m.RecordTradeResult(10)
	}
	ok, _ = m.CanTrade(10_000)
	assert.True(t, ok, "zero disables the gate")
}

func TestRiskScaling(t *testing.T) {
	m := newTestManager(nil)
	m.RecordTradeResult(10)
	assert.Equal(t, 1.0, m.RiskPercent(), "scaling off")

	m = newTestManager(func(c *model.AutoTraderConfig) { c.RiskScaling.Enabled = true })
	assert.Equal(t, 1.0, m.RiskPercent())

	m.RecordTradeResult(10)
	assert.InDelta(t, 1.2, m.RiskPercent(), 1e-9)
	m.RecordTradeResult(10)
	assert.InDelta(t, 1.44, m.RiskPercent(), 1e-9)
	for i := 0; i < 10; i++ {
		m.RecordTradeResult(10)
	}
	assert.Equal(t, 3.0, m.RiskPercent(), "capped at the maximum")

	m.RecordTradeResult(0)
	assert.Equal(t, 3.0, m.RiskPercent(), "a flat result changes nothing")

	m.RecordTradeResult(-10)
	assert.Equal(t, 1.5, m.RiskPercent())
	m.RecordTradeResult(-10)
	m.RecordTradeResult(-10)
	assert.Equal(t, 0.5, m.RiskPercent(), "floored at the minimum")
	assert.Equal(t, 0.5, m.State().RiskPercent)

	m.SetClock(func() time.Time { return midweek.Add(24 * time.Hour) })
	assert.Equal(t, 0.5, m.RiskPercent(), "scaled risk survives the day boundary")
}

func TestRecordPartialProfit(t *testing.T) {
	m := newTestManager(nil)
	ok, _ := m.CanTrade(10_000)
	assert.True(t, ok)

	m.RecordPartialProfit(40)
	st := m.State()
	assert.Equal(t, 40.0, st.Profit)
	assert.Equal(t, 10_040.0, st.CurrentEquity)
	assert.Zero(t, st.Wins)
	assert.Zero(t, st.ConsecutiveWins)
	assert.Empty(t, st.LastOutcome)
}

func TestCanTrade_NewsFilter(t *testing.T) {
	m := newTestManager(func(c *model.AutoTraderConfig) { c.News.Enabled = true })
	m.news.SetEvents([]NewsEvent{
		{Title: "FOMC", Impact: "High", Time: midweek.Add(20 * time.Minute)},
	})
	ok, reason := m.CanTrade(10_000)
	assert.False(t, ok)
	assert.Equal(t, "High impact news: FOMC", reason)

	m.news.SetEvents([]NewsEvent{
		{Title: "FOMC", Impact: "High", Time: midweek.Add(2 * time.Hour)},
		{Title: "Retail Sales", Impact: "Medium", Time: midweek},
	})
	ok, _ = m.CanTrade(10_000)
	assert.True(t, ok)
}

func TestNewsFilter_WeekendEdges(t *testing.T) {
	cfg := model.DefaultAutoTraderConfig().News
	cfg.Enabled = true
	f := NewNewsFilter()

	friday := time.Date(2026, 10, 16, 16, 30, 0, 0, time.Local)
	ok, reason := f.Check(friday, cfg)
	assert.False(t, ok)
	assert.Equal(t, "Friday evening - no trading", reason)

	monday := time.Date(2026, 10, 12, 7, 59, 0, 0, time.Local)
	ok, _ = f.Check(monday, cfg)
	assert.False(t, ok)

	ok, _ = f.Check(monday.Add(time.Minute), cfg)
	assert.True(t, ok)

	cfg.Enabled = false
	ok, _ = f.Check(friday, cfg)
	assert.True(t, ok)

	var nilFilter *NewsFilter
	ok, _ = nilFilter.Check(friday, model.NewsFilterConfig{Enabled: true, AvoidFridayEvening: true})
	assert.True(t, ok)
}

func TestRecordTradeResult_Streaks(t *testing.T) {
	m := newTestManager(func(c *model.AutoTraderConfig) { c.Martingale.Enabled = true })
	m.RecordTradeResult(-5)
	m.RecordTradeResult(-5)
	st := m.State()
	assert.Equal(t, 2, st.ConsecutiveLosses)
	assert.Equal(t, 2, st.MartingaleStep)
	assert.Equal(t, -10.0, st.Profit)

	m.RecordTradeResult(0)
	assert.Equal(t, 2, m.State().ConsecutiveLosses)

	m.RecordTradeResult(12)
	st = m.State()
	assert.Equal(t, 0, st.ConsecutiveLosses)
	assert.Equal(t, 1, st.ConsecutiveWins)
	assert.Equal(t, 0, st.MartingaleStep)
	assert.Equal(t, "win", st.LastOutcome)
	assert.Equal(t, 1, st.Wins)
	assert.Equal(t, 2, st.Losses)
}

func TestRollover(t *testing.T) {
	m := newTestManager(nil)
	m.RecordTradeOpened()
	m.RecordTradeResult(-500)
	ok, _ := m.CanTrade(10_000)
	assert.False(t, ok)

	m.SetClock(func() time.Time { return midweek.Add(24 * time.Hour) })
	ok, _ = m.CanTrade(10_000)
	assert.True(t, ok)
	st := m.State()
	assert.Zero(t, st.Profit)
	assert.Zero(t, st.TradeCount)
	assert.Equal(t, 1, st.ConsecutiveLosses, "streaks survive the day boundary")
}

func TestRestore(t *testing.T) {
	m := newTestManager(nil)
	m.Restore(model.DailyStats{Date: midweek.Format(dateLayout), Profit: -600, ConsecutiveLosses: 3})
	ok, _ := m.CanTrade(10_000)
	assert.False(t, ok)

	m.Restore(model.DailyStats{Date: "2020-01-01", Profit: -600, ConsecutiveLosses: 3})
	st := m.State()
	assert.Zero(t, st.Profit)
	assert.Equal(t, 3, st.ConsecutiveLosses)
}

func TestRequiredConfidence(t *testing.T) {
	m := newTestManager(nil)
	m.RecordTradeResult(-1)
	assert.Equal(t, 65.0, m.RequiredConfidence(65), "adaptive mode off")

	m = newTestManager(func(c *model.AutoTraderConfig) { c.Adaptive.Enabled = true })
	assert.Equal(t, 65.0, m.RequiredConfidence(65))
	m.RecordTradeResult(-1)
	m.RecordTradeResult(-1)
	assert.Equal(t, 75.0, m.RequiredConfidence(65))
	for i := 0; i < 10; i++ {
		m.RecordTradeResult(-1)
	}
	assert.Equal(t, 95.0, m.RequiredConfidence(65))
}
