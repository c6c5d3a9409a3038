package strategy

import (
	"fmt"

	"fx-autotrader/internal/indicator"
	"fx-autotrader/internal/model"
)

// MeanReversionDetector fades band touches confirmed by an RSI extreme.
type MeanReversionDetector struct {
	oversold   float64
	overbought float64
	confidence float64
}

func NewMeanReversionDetector() *MeanReversionDetector {
	return &MeanReversionDetector{oversold: 35, overbought: 65, confidence: 70}
}

func (d *MeanReversionDetector) Name() string    { return model.StrategyMeanReversion }
func (d *MeanReversionDetector) MinCandles() int { return 30 }

func (d *MeanReversionDetector) Detect(candles []model.Candle) model.Signal {
	if len(candles) < d.MinCandles() {
		return insufficient(d, len(candles))
	}

	price := candles[len(candles)-1].Close
	bb := indicator.Bollinger(candles, indicator.BollingerPeriod, indicator.BollingerK)
	rsi := indicator.RSI(candles, indicator.RSIPeriod)

	if price <= bb.Lower && rsi < d.oversold {
		return model.Signal{
			Side:       model.SideBuy,
			Confidence: d.confidence,
			Reason:     fmt.Sprintf("Mean reversion: price at lower band %.5f, RSI %.1f oversold", bb.Lower, rsi),
		}
	}
	if price >= bb.Upper && rsi > d.overbought {
		return model.Signal{
			Side:       model.SideSell,
			Confidence: d.confidence,
			Reason:     fmt.Sprintf("Mean reversion: price at upper band %.5f, RSI %.1f overbought", bb.Upper, rsi),
		}
	}
	return model.NoSignal("mean_reversion: price inside bands")
}
