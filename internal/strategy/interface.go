package strategy

import (
	"fmt"

	"fx-autotrader/internal/model"
)

// Detector turns a candle window into a directional signal. Implementations
// return a NONE signal with zero confidence when the window is shorter than
// MinCandles.
type Detector interface {
	Name() string
	MinCandles() int
	Detect(candles []model.Candle) model.Signal
}

func insufficient(d Detector, have int) model.Signal {
	return model.NoSignal(fmt.Sprintf("%s: insufficient data (%d/%d candles)", d.Name(), have, d.MinCandles()))
}
