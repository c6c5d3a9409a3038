package risk

import (
	"math"

	"fx-autotrader/internal/model"

	"github.com/shopspring/decimal"
)

// MinLot is the smallest tradable volume.
const MinLot = 0.01

// LotSize converts the risked dollar amount into a volume:
//
//	lots = balance × risk% / (stopPips × pipValue)
//
// With volatility adjustment on and a usable atr, the stop distance becomes
// atr × ATRMultiplier. The risk percent is the scaled one when risk scaling
// is on. Martingale scales the risked amount by multiplier^step. The result is clamped to [MinLot, max] and rounded to
// two decimals.
func (m *Manager) LotSize(balance float64, symbol string, stopPips float64, atr float64) float64 {
	m.mu.Lock()
	limits := m.cfg.Risk
	mart := m.cfg.Martingale
	step := m.stats.MartingaleStep
	riskPercent := m.riskPercent()
	m.mu.Unlock()

	spec := model.SpecFor(symbol)
	maxLot := spec.MaxLot
	if limits.MaxLotSize > 0 && limits.MaxLotSize < maxLot {
		maxLot = limits.MaxLotSize
	}

	riskAmount := balance * riskPercent / 100
	if mart.Enabled && step > 0 {
		if step > mart.MaxSteps {
			step = mart.MaxSteps
		}
		riskAmount *= math.Pow(mart.Multiplier, float64(step))
	}

	if limits.VolatilityAdjust && atr > 0 && limits.ATRMultiplier > 0 {
		stopPips = model.PriceToPips(symbol, atr*limits.ATRMultiplier)
	}

	var lots float64
	if stopPips > 0 && spec.PipValue > 0 {
		lots = riskAmount / (stopPips * spec.PipValue)
	}
	if math.IsNaN(lots) || lots < MinLot {
		lots = MinLot
	}
	if lots > maxLot {
		lots = maxLot
	}
	return decimal.NewFromFloat(lots).Round(2).InexactFloat64()
}

// StopDistances returns the stop-loss and take-profit distances in pips. With
// volatility adjustment the stop follows ATR and the take-profit keeps the
// configured reward ratio.
func (m *Manager) StopDistances(symbol string, atr float64) (slPips, tpPips float64) {
	m.mu.Lock()
	limits := m.cfg.Risk
	entry := m.cfg.Entry
	m.mu.Unlock()

	slPips, tpPips = entry.StopLossPips, entry.TakeProfitPips
	if !limits.VolatilityAdjust || atr <= 0 || limits.ATRMultiplier <= 0 || entry.StopLossPips <= 0 {
		return slPips, tpPips
	}
	ratio := entry.TakeProfitPips / entry.StopLossPips
	slPips = model.PriceToPips(symbol, atr*limits.ATRMultiplier)
	return slPips, slPips * ratio
}
