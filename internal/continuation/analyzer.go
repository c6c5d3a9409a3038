// Package continuation answers "hold or fold" for an open position: will the
// move continue in the position's favour or reverse against it.
package continuation

import (
	"fmt"

	"fx-autotrader/internal/indicator"
	"fx-autotrader/internal/model"
)

// MinCandles is the history below which the analyzer returns the default verdict.
const MinCandles = 50

// decisionMargin is the lead in percentage points a direction needs to win.
const decisionMargin = 20.0

const (
	weightRSI          = 20
	weightMACD         = 25
	weightStochastic   = 15
	weightTrend        = 25
	weightBandOutside  = 15
	weightBandInside   = 10
	defaultConfidence  = 50
	neutralDescription = "neutral"
)

type bias int

const (
	neutral bias = iota
	bullish
	bearish
)

// Verdict is the analyzer's answer for one position.
type Verdict struct {
	WillContinue bool     `json:"will_continue"`
	Confidence   float64  `json:"confidence"`
	BullishPct   float64  `json:"bullish_pct"`
	BearishPct   float64  `json:"bearish_pct"`
	Reasons      []string `json:"reasons"`
}

// DefaultVerdict is returned when no direction has a clear lead.
func DefaultVerdict(reason string) Verdict {
	return Verdict{WillContinue: true, Confidence: defaultConfidence, Reasons: []string{reason}}
}

type Analyzer struct{}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

type opinion struct {
	name   string
	bias   bias
	weight float64
	detail string
}

// Analyze scores five indicator opinions and maps them onto side. The
// reference is the level the caller is defending (a stop or a profit peak)
// and is reported alongside the opinions.
func (a *Analyzer) Analyze(candles []model.Candle, side model.Side, reference float64) Verdict {
	if len(candles) < MinCandles {
		return DefaultVerdict(fmt.Sprintf("insufficient data (%d/%d candles)", len(candles), MinCandles))
	}
	if side != model.SideBuy && side != model.SideSell {
		return DefaultVerdict("no position side")
	}

	price := candles[len(candles)-1].Close
	opinions := []opinion{
		rsiOpinion(indicator.RSI(candles, indicator.RSIPeriod)),
		macdOpinion(indicator.MACD(candles, indicator.MACDFast, indicator.MACDSlow, indicator.MACDSignal)),
		stochasticOpinion(indicator.Stochastic(candles, indicator.StochasticPeriod)),
		trendOpinion(indicator.EMA(candles, 20), indicator.EMA(candles, 50)),
		bandOpinion(price, indicator.Bollinger(candles, indicator.BollingerPeriod, indicator.BollingerK)),
	}

	var bull, bear float64
	reasons := make([]string, 0, len(opinions)+1)
	for _, op := range opinions {
		switch op.bias {
		case bullish:
			bull += op.weight
		case bearish:
			bear += op.weight
		}
		reasons = append(reasons, fmt.Sprintf("%s %s (%s)", op.name, op.bias, op.detail))
	}
	reasons = append(reasons, fmt.Sprintf("price %.5f vs reference %.5f", price, reference))

	cast := bull + bear
	if cast == 0 {
		v := DefaultVerdict("no directional opinion")
		v.Reasons = append(v.Reasons, reasons...)
		return v
	}

	v := Verdict{
		BullishPct: bull / cast * 100,
		BearishPct: bear / cast * 100,
		Reasons:    reasons,
	}
	favour, against := v.BullishPct, v.BearishPct
	if side == model.SideSell {
		favour, against = against, favour
	}

	switch {
	case favour-against > decisionMargin:
		v.WillContinue, v.Confidence = true, favour
	case against-favour > decisionMargin:
		v.WillContinue, v.Confidence = false, against
	default:
		v.WillContinue, v.Confidence = true, defaultConfidence
	}
	return v
}

func (b bias) String() string {
	switch b {
	case bullish:
		return "bullish"
	case bearish:
		return "bearish"
	default:
		return neutralDescription
	}
}

// rsiOpinion reads extremes as exhaustion and the 55..70 / 30..45 bands as
// momentum.
func rsiOpinion(rsi float64) opinion {
	op := opinion{name: "RSI", weight: weightRSI, detail: fmt.Sprintf("%.1f", rsi)}
	switch {
	case rsi < 30:
		op.bias = bullish
	case rsi > 70:
		op.bias = bearish
	case rsi >= 55:
		op.bias = bullish
	case rsi <= 45:
		op.bias = bearish
	}
	return op
}

func macdOpinion(m indicator.MACDResult) opinion {
	op := opinion{name: "MACD", weight: weightMACD, detail: fmt.Sprintf("hist %.6f", m.Histogram)}
	switch {
	case m.Histogram > 0 && m.MACD > m.Signal:
		op.bias = bullish
	case m.Histogram < 0 && m.MACD < m.Signal:
		op.bias = bearish
	}
	return op
}

func stochasticOpinion(s indicator.StochasticResult) opinion {
	op := opinion{name: "Stochastic", weight: weightStochastic, detail: fmt.Sprintf("%%K %.1f %%D %.1f", s.K, s.D)}
	switch {
	case s.K < 20:
		op.bias = bullish
	case s.K > 80:
		op.bias = bearish
	case s.K > s.D:
		op.bias = bullish
	case s.K < s.D:
		op.bias = bearish
	}
	return op
}

func trendOpinion(fast, slow float64) opinion {
	op := opinion{name: "EMA trend", weight: weightTrend, detail: fmt.Sprintf("EMA20 %.5f EMA50 %.5f", fast, slow)}
	switch {
	case fast > slow:
		op.bias = bullish
	case fast < slow:
		op.bias = bearish
	}
	return op
}

// bandOpinion counts a close outside the bands as a stronger reversion cue
// than a close on either side of the middle line.
func bandOpinion(price float64, bb indicator.BollingerResult) opinion {
	op := opinion{name: "Bollinger", weight: weightBandInside, detail: fmt.Sprintf("mid %.5f", bb.Middle)}
	switch {
	case price <= bb.Lower && bb.Lower < bb.Upper:
		op.bias, op.weight = bullish, weightBandOutside
	case price >= bb.Upper && bb.Lower < bb.Upper:
		op.bias, op.weight = bearish, weightBandOutside
	case price > bb.Middle:
		op.bias = bullish
	case price < bb.Middle:
		op.bias = bearish
	}
	return op
}
