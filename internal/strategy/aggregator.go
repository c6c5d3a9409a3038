package strategy

import (
	"fmt"
	"strings"

	"fx-autotrader/internal/model"

	"go.uber.org/zap"
)

// Aggregator runs the enabled detectors and reduces their votes to one
// consensus signal by plurality. Per-strategy weights are carried in the
// configuration but do not influence the vote.
type Aggregator struct {
	detectors map[string]Detector
	logger    *zap.Logger
}

func NewAggregator(logger *zap.Logger, detectors ...Detector) *Aggregator {
	if len(detectors) == 0 {
		detectors = DefaultDetectors()
	}
	m := make(map[string]Detector, len(detectors))
	for _, d := range detectors {
		m[d.Name()] = d
	}
	return &Aggregator{detectors: m, logger: logger}
}

// Evaluate returns the consensus signal for symbol. Votes below a strategy's
// own minimum confidence are discarded; the side with strictly more votes
// wins with the mean of its confidences. Ties and empty votes yield NONE.
func (a *Aggregator) Evaluate(symbol string, candles []model.Candle, sel model.StrategySelection) model.Signal {
	var buys, sells []model.Signal

	for _, s := range sel.Items {
		if !s.Enabled {
			continue
		}
		d, ok := a.detectors[s.Name]
		if !ok {
			a.logger.Warn("strategy has no detector", zap.String("strategy", s.Name))
			continue
		}
		sig := d.Detect(candles)
		if !sig.IsActionable() || sig.Confidence < s.MinConfidence {
			continue
		}
		switch sig.Side {
		case model.SideBuy:
			buys = append(buys, sig)
		case model.SideSell:
			sells = append(sells, sig)
		}
	}

	var winners []model.Signal
	var side model.Side
	switch {
	case len(buys) > len(sells):
		winners, side = buys, model.SideBuy
	case len(sells) > len(buys):
		winners, side = sells, model.SideSell
	case len(buys) == 0:
		out := model.NoSignal("no strategy signal")
		out.Symbol = symbol
		return out
	default:
		out := model.NoSignal(fmt.Sprintf("split vote %d BUY / %d SELL", len(buys), len(sells)))
		out.Symbol = symbol
		return out
	}

	var total float64
	reasons := make([]string, 0, len(winners))
	for _, w := range winners {
		total += w.Confidence
		reasons = append(reasons, w.Reason)
	}
	return model.Signal{
		Symbol:     symbol,
		Side:       side,
		Confidence: total / float64(len(winners)),
		Reason:     strings.Join(reasons, " | "),
	}
}
