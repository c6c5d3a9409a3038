package strategy

import (
	"errors"
	"fmt"

	"fx-autotrader/internal/model"
)

var ErrUnknownStrategy = errors.New("unknown strategy")

// NewDetector builds a detector with default parameters by strategy name.
func NewDetector(name string) (Detector, error) {
	switch name {
	case model.StrategyTrend:
		return NewTrendDetector(), nil
	case model.StrategyMeanReversion:
		return NewMeanReversionDetector(), nil
	case model.StrategyBreakout:
		return NewBreakoutDetector(), nil
	case model.StrategyMomentum:
		return NewMomentumDetector(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
}

// DefaultDetectors returns one detector per known strategy.
func DefaultDetectors() []Detector {
	return []Detector{
		NewTrendDetector(),
		NewMeanReversionDetector(),
		NewBreakoutDetector(),
		NewMomentumDetector(),
	}
}
