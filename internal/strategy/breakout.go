package strategy

import (
	"fmt"

	"fx-autotrader/internal/indicator"
	"fx-autotrader/internal/model"
)

// BreakoutDetector looks for a close beyond the prior range, confirmed by a
// candle-over-candle move larger than a fraction of ATR so a single wick
// does not count.
type BreakoutDetector struct {
	lookback    int
	atrFraction float64
	confidence  float64
}

func NewBreakoutDetector() *BreakoutDetector {
	return &BreakoutDetector{lookback: 10, atrFraction: 0.5, confidence: 65}
}

func (d *BreakoutDetector) Name() string    { return model.StrategyBreakout }
func (d *BreakoutDetector) MinCandles() int { return 30 }

func (d *BreakoutDetector) Detect(candles []model.Candle) model.Signal {
	if len(candles) < d.MinCandles() {
		return insufficient(d, len(candles))
	}

	n := len(candles)
	last := candles[n-1]
	prev := candles[n-2]
	// the current candle is excluded from the range it must break
	prior := candles[n-1-d.lookback : n-1]
	rangeHigh := indicator.HighestHigh(prior)
	rangeLow := indicator.LowestLow(prior)

	atr := indicator.ATR(candles, indicator.ATRPeriod)
	move := last.Close - prev.Close
	threshold := d.atrFraction * atr

	if last.Close > rangeHigh && move > threshold {
		return model.Signal{
			Side:       model.SideBuy,
			Confidence: d.confidence,
			Reason:     fmt.Sprintf("Breakout above %d-bar high %.5f (move %.5f > %.5f)", d.lookback, rangeHigh, move, threshold),
		}
	}
	if last.Close < rangeLow && -move > threshold {
		return model.Signal{
			Side:       model.SideSell,
			Confidence: d.confidence,
			Reason:     fmt.Sprintf("Breakdown below %d-bar low %.5f (move %.5f > %.5f)", d.lookback, rangeLow, -move, threshold),
		}
	}
	return model.NoSignal("breakout: inside range")
}
