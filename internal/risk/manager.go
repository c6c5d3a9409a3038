// Package risk gates new entries and sizes positions. The Manager keeps the
// per-day account statistics that the gates read and is safe for concurrent
// use: the engine mutates it during a tick while the API reads snapshots.
package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"fx-autotrader/internal/model"

	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

type Manager struct {
	mu     sync.Mutex
	cfg    model.AutoTraderConfig
	stats  model.DailyStats
	news   *NewsFilter
	now    func() time.Time
	logger *zap.Logger
}

func NewManager(cfg model.AutoTraderConfig, news *NewsFilter, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:    cfg,
		news:   news,
		now:    time.Now,
		logger: logger,
	}
	m.stats.Date = m.now().Format(dateLayout)
	return m
}

// SetClock replaces the wall clock. Session hours and the daily rollover are
// evaluated against it.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Manager) UpdateConfig(cfg model.AutoTraderConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// CanTrade runs the entry gates in order and returns the first denial.
func (m *Manager) CanTrade(equity float64) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.rollover(now)

	if equity > 0 {
		m.stats.CurrentEquity = equity
		if equity > m.stats.PeakEquity {
			m.stats.PeakEquity = equity
		}
	}

	limits := m.cfg.Risk
	if limits.MaxDailyLoss > 0 && m.stats.Profit <= -limits.MaxDailyLoss {
		return false, "daily loss limit reached"
	}

	if limits.MaxDrawdownPercent > 0 && m.stats.PeakEquity > 0 {
		drawdown := (m.stats.PeakEquity - m.stats.CurrentEquity) / m.stats.PeakEquity * 100
		if drawdown >= limits.MaxDrawdownPercent {
			return false, "max drawdown reached"
		}
	}

	session := m.cfg.Session
	if session.Enabled {
		if !inSession(now.Hour(), session.StartHour, session.EndHour) {
			// the next session starts with a fresh count
			m.stats.SessionTrades = 0
			return false, "outside session hours"
		}
		if session.MaxTradesPerSession > 0 && m.stats.SessionTrades >= session.MaxTradesPerSession {
			return false, fmt.Sprintf("outside session hours (session limit %d trades reached)", session.MaxTradesPerSession)
		}
	}

	if limits.MaxConsecutiveLosses > 0 && m.stats.ConsecutiveLosses >= limits.MaxConsecutiveLosses {
		return false, fmt.Sprintf("max consecutive losses (%d) reached", limits.MaxConsecutiveLosses)
	}

	if limits.MaxConsecutiveWins > 0 && m.stats.ConsecutiveWins >= limits.MaxConsecutiveWins {
		return false, fmt.Sprintf("taking a break after %d consecutive wins", limits.MaxConsecutiveWins)
	}

	if limits.DailyProfitTarget > 0 && m.stats.Profit >= limits.DailyProfitTarget {
		return false, "daily profit target reached"
	}

	if ok, reason := m.news.Check(now, m.cfg.News); !ok {
		return false, reason
	}

	return true, ""
}

// RecordTradeOpened counts an entry against the daily and session totals.
func (m *Manager) RecordTradeOpened() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(m.now())
	m.stats.TradeCount++
	m.stats.SessionTrades++
}

// RecordTradeResult books a closed trade. It must be called exactly once per
// closed position whatever the close reason. A flat result moves no streak.
func (m *Manager) RecordTradeResult(profit float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(m.now())

	m.addProfit(profit)

	switch {
	case profit > 0:
		m.stats.Wins++
		m.stats.ConsecutiveWins++
		m.stats.ConsecutiveLosses = 0
		m.stats.MartingaleStep = 0
		m.stats.LastOutcome = "win"
	case profit < 0:
		m.stats.Losses++
		m.stats.ConsecutiveLosses++
		m.stats.ConsecutiveWins = 0
		if m.cfg.Martingale.Enabled && m.stats.MartingaleStep < m.cfg.Martingale.MaxSteps {
			m.stats.MartingaleStep++
		}
		m.stats.LastOutcome = "loss"
	}
	m.scaleRisk(profit)

	m.logger.Debug("trade result recorded",
		zap.Float64("profit", profit),
		zap.Float64("daily_profit", m.stats.Profit),
		zap.Int("consecutive_losses", m.stats.ConsecutiveLosses),
		zap.Float64("risk_percent", m.riskPercent()),
	)
}

// RecordPartialProfit books profit realized by reducing a position that stays
// open. Streaks and risk scaling wait for the final close.
func (m *Manager) RecordPartialProfit(profit float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(m.now())
	m.addProfit(profit)
}

func (m *Manager) addProfit(profit float64) {
	m.stats.Profit += profit
	if m.stats.CurrentEquity > 0 {
		m.stats.CurrentEquity += profit
		if m.stats.CurrentEquity > m.stats.PeakEquity {
			m.stats.PeakEquity = m.stats.CurrentEquity
		}
	}
}

// scaleRisk moves the risk percent after a win or a loss when risk scaling is
// on. A flat result leaves it unchanged.
func (m *Manager) scaleRisk(profit float64) {
	rs := m.cfg.RiskScaling
	if !rs.Enabled || profit == 0 {
		return
	}
	current := m.riskPercent()
	if profit > 0 {
		current = math.Min(current*rs.WinMultiplier, rs.MaxRiskPercent)
	} else {
		current = math.Max(current*rs.LossMultiplier, rs.MinRiskPercent)
	}
	m.stats.RiskPercent = current
}

// RiskPercent is the percent of balance the next entry risks.
func (m *Manager) RiskPercent() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.riskPercent()
}

func (m *Manager) riskPercent() float64 {
	if m.cfg.RiskScaling.Enabled && m.stats.RiskPercent > 0 {
		return m.stats.RiskPercent
	}
	return m.cfg.Risk.RiskPercent
}

// RequiredConfidence raises base by one step per consecutive loss when
// adaptive mode is on, never above the configured ceiling.
func (m *Manager) RequiredConfidence(base float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.cfg.Adaptive
	if !a.Enabled || m.stats.ConsecutiveLosses == 0 {
		return base
	}
	required := base + float64(m.stats.ConsecutiveLosses)*a.ConfidenceStepPerLoss
	if a.MaxRequiredConfidence > 0 {
		required = math.Min(required, math.Max(base, a.MaxRequiredConfidence))
	}
	return required
}

// State returns a snapshot of the daily statistics.
func (m *Manager) State() model.DailyStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover(m.now())
	return m.stats
}

// Restore loads persisted statistics; a snapshot from an earlier day only
// keeps its losing streak, martingale step and scaled risk.
func (m *Manager) Restore(s model.DailyStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = s
	m.rollover(m.now())
}

func (m *Manager) rollover(now time.Time) {
	today := now.Format(dateLayout)
	if m.stats.Date == today {
		return
	}
	if m.stats.Date != "" {
		m.logger.Info("daily risk counters reset", zap.String("previous", m.stats.Date), zap.String("date", today))
	}
	m.stats.Date = today
	m.stats.TradeCount = 0
	m.stats.Wins = 0
	m.stats.Losses = 0
	m.stats.Profit = 0
	m.stats.SessionTrades = 0
	// a break after a winning streak lasts for the rest of the day
	m.stats.ConsecutiveWins = 0
	m.stats.PeakEquity = m.stats.CurrentEquity
}

// inSession reports whether hour lies in [start, end). A start after end
// wraps past midnight; equal bounds mean all day.
func inSession(hour, start, end int) bool {
	switch {
	case start < end:
		return hour >= start && hour < end
	case start > end:
		return hour >= start || hour < end
	default:
		return true
	}
}
