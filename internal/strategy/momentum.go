package strategy

import (
	"fmt"

	"fx-autotrader/internal/indicator"
	"fx-autotrader/internal/model"
)

// MomentumDetector requires MACD, Stochastic and RSI to agree.
type MomentumDetector struct {
	confidence float64
}

func NewMomentumDetector() *MomentumDetector {
	return &MomentumDetector{confidence: 70}
}

func (d *MomentumDetector) Name() string    { return model.StrategyMomentum }
func (d *MomentumDetector) MinCandles() int { return 40 }

func (d *MomentumDetector) Detect(candles []model.Candle) model.Signal {
	if len(candles) < d.MinCandles() {
		return insufficient(d, len(candles))
	}

	macd := indicator.MACD(candles, indicator.MACDFast, indicator.MACDSlow, indicator.MACDSignal)
	stoch := indicator.Stochastic(candles, indicator.StochasticPeriod)
	rsi := indicator.RSI(candles, indicator.RSIPeriod)
	return d.evaluate(macd, stoch, rsi)
}

// evaluate applies the agreement rules to already computed readings.
func (d *MomentumDetector) evaluate(macd indicator.MACDResult, stoch indicator.StochasticResult, rsi float64) model.Signal {
	bullishMACD := macd.Histogram > 0 && macd.MACD > macd.Signal && macd.MACD > 0
	bearishMACD := macd.Histogram < 0 && macd.MACD < macd.Signal && macd.MACD < 0

	if bullishMACD && stoch.K < 80 && rsi >= 50 && rsi <= 75 {
		return model.Signal{
			Side:       model.SideBuy,
			Confidence: d.confidence,
			Reason:     fmt.Sprintf("Momentum up: MACD hist %.6f, %%K %.1f, RSI %.1f", macd.Histogram, stoch.K, rsi),
		}
	}
	if bearishMACD && stoch.K > 20 && rsi >= 25 && rsi <= 50 {
		return model.Signal{
			Side:       model.SideSell,
			Confidence: d.confidence,
			Reason:     fmt.Sprintf("Momentum down: MACD hist %.6f, %%K %.1f, RSI %.1f", macd.Histogram, stoch.K, rsi),
		}
	}
	return model.NoSignal("momentum: indicators disagree")
}
