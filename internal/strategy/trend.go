package strategy

import (
	"fmt"

	"fx-autotrader/internal/indicator"
	"fx-autotrader/internal/model"
)

// TrendDetector 趋势跟随: price, EMA20 and EMA50 stacked in one direction
// with RSI confirming but not stretched.
type TrendDetector struct {
	fastPeriod int
	slowPeriod int
	confidence float64
}

func NewTrendDetector() *TrendDetector {
	return &TrendDetector{fastPeriod: 20, slowPeriod: 50, confidence: 75}
}

func (d *TrendDetector) Name() string    { return model.StrategyTrend }
func (d *TrendDetector) MinCandles() int { return d.slowPeriod }

func (d *TrendDetector) Detect(candles []model.Candle) model.Signal {
	if len(candles) < d.MinCandles() {
		return insufficient(d, len(candles))
	}

	price := candles[len(candles)-1].Close
	fast := indicator.EMA(candles, d.fastPeriod)
	slow := indicator.EMA(candles, d.slowPeriod)
	rsi := indicator.RSI(candles, indicator.RSIPeriod)

	if price > fast && fast > slow && rsi > 40 && rsi < 70 {
		return model.Signal{
			Side:       model.SideBuy,
			Confidence: d.confidence,
			Reason:     fmt.Sprintf("Uptrend: price > EMA%d > EMA%d, RSI %.1f", d.fastPeriod, d.slowPeriod, rsi),
		}
	}
	if price < fast && fast < slow && rsi > 30 && rsi < 60 {
		return model.Signal{
			Side:       model.SideSell,
			Confidence: d.confidence,
			Reason:     fmt.Sprintf("Downtrend: price < EMA%d < EMA%d, RSI %.1f", d.fastPeriod, d.slowPeriod, rsi),
		}
	}
	return model.NoSignal("trend: no aligned trend")
}
