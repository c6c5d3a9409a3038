// Package indicator holds the stateless technical indicators used by the
// strategy detectors and the continuation analyzer. Every function takes
// candles ordered oldest first and degrades to a neutral default when the
// series is shorter than its lookback; callers treat those defaults as
// "no opinion".
package indicator

import (
	"math"

	"fx-autotrader/internal/model"
)

// Default periods.
const (
	RSIPeriod        = 14
	ATRPeriod        = 14
	StochasticPeriod = 14
	StochasticSmooth = 3
	BollingerPeriod  = 20
	BollingerK       = 2.0
	MACDFast         = 12
	MACDSlow         = 26
	MACDSignal       = 9
)

// Closes extracts close prices.
func Closes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// SMA is the arithmetic mean of the last period closes. With fewer closes it
// averages what exists; an empty series yields 0.
func SMA(candles []model.Candle, period int) float64 {
	return smaOf(Closes(candles), period)
}

// EMA seeds with the simple average of the first period closes (or the
// earliest close when the series is shorter) and smooths forward with 2/(period+1).
func EMA(candles []model.Candle, period int) float64 {
	return emaOf(Closes(candles), period)
}

// RSI over the trailing period close-to-close changes. Returns 50 when there
// are not enough closes and 100 when the average loss is zero.
func RSI(candles []model.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 50
	}
	var gains, losses float64
	for i := len(candles) - period; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDResult holds MACD indicator values.
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// MACD computes the fast-minus-slow EMA line and an EMA signal line over the
// MACD series. Fewer than slow+signal candles yields zeros.
func MACD(candles []model.Candle, fast, slow, signal int) MACDResult {
	if fast <= 0 || slow <= fast || signal <= 0 || len(candles) < slow+signal {
		return MACDResult{}
	}
	closes := Closes(candles)
	fastSeries := emaSeries(closes, fast)
	slowSeries := emaSeries(closes, slow)

	// The MACD series is defined once the slow EMA has its seed.
	line := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		line = append(line, fastSeries[i]-slowSeries[i])
	}
	macd := line[len(line)-1]
	sig := emaOf(line, signal)
	return MACDResult{MACD: macd, Signal: sig, Histogram: macd - sig}
}

// BollingerResult holds Bollinger band values.
type BollingerResult struct {
	Upper     float64 `json:"upper"`
	Middle    float64 `json:"middle"`
	Lower     float64 `json:"lower"`
	Bandwidth float64 `json:"bandwidth"`
}

// Bollinger is SMA(period) ± k·stddev of the same window. With too little
// data the band collapses onto the last close.
func Bollinger(candles []model.Candle, period int, k float64) BollingerResult {
	if len(candles) == 0 {
		return BollingerResult{}
	}
	if period <= 0 || len(candles) < period {
		last := candles[len(candles)-1].Close
		return BollingerResult{Upper: last, Middle: last, Lower: last}
	}
	window := Closes(candles[len(candles)-period:])
	mean := smaOf(window, period)
	var variance float64
	for _, v := range window {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / float64(period))
	res := BollingerResult{
		Upper:  mean + k*std,
		Middle: mean,
		Lower:  mean - k*std,
	}
	if mean != 0 {
		res.Bandwidth = (res.Upper - res.Lower) / mean * 100
	}
	return res
}

// ATR is the mean true range of the trailing period bars. Each bar is
// compared with its predecessor, so period+1 candles are required; else 0.
func ATR(candles []model.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}
	var sum float64
	for i := len(candles) - period; i < len(candles); i++ {
		sum += TrueRange(candles[i], candles[i-1].Close)
	}
	return sum / float64(period)
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(c model.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}

// StochasticResult holds %K and %D.
type StochasticResult struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

// Stochastic computes %K over kPeriod bars and %D as the SMA(3) of the last
// three %K values. Returns {50,50} without enough data; %D falls back to %K
// when fewer than three %K values can be formed.
func Stochastic(candles []model.Candle, kPeriod int) StochasticResult {
	if kPeriod <= 0 || len(candles) < kPeriod {
		return StochasticResult{K: 50, D: 50}
	}
	k := percentK(candles, kPeriod)
	if len(candles) < kPeriod+StochasticSmooth-1 {
		return StochasticResult{K: k, D: k}
	}
	var sum float64
	for i := 0; i < StochasticSmooth; i++ {
		sum += percentK(candles[:len(candles)-i], kPeriod)
	}
	return StochasticResult{K: k, D: sum / StochasticSmooth}
}

func percentK(candles []model.Candle, period int) float64 {
	window := candles[len(candles)-period:]
	highest, lowest := window[0].High, window[0].Low
	for _, c := range window[1:] {
		highest = math.Max(highest, c.High)
		lowest = math.Min(lowest, c.Low)
	}
	if highest == lowest {
		return 50
	}
	k := (window[len(window)-1].Close - lowest) / (highest - lowest) * 100
	return math.Max(0, math.Min(100, k))
}

// HighestHigh and LowestLow scan a candle window.
func HighestHigh(candles []model.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	h := candles[0].High
	for _, c := range candles[1:] {
		h = math.Max(h, c.High)
	}
	return h
}

func LowestLow(candles []model.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	l := candles[0].Low
	for _, c := range candles[1:] {
		l = math.Min(l, c.Low)
	}
	return l
}

func smaOf(values []float64, period int) float64 {
	if len(values) == 0 || period <= 0 {
		return 0
	}
	if len(values) < period {
		period = len(values)
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

func emaOf(values []float64, period int) float64 {
	series := emaSeries(values, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// emaSeries returns EMA values aligned to values. Entries before the seed
// index hold the running seed so callers can index safely.
func emaSeries(values []float64, period int) []float64 {
	if len(values) == 0 || period <= 0 {
		return nil
	}
	out := make([]float64, len(values))
	if len(values) < period {
		ema := values[0]
		multiplier := 2.0 / float64(period+1)
		out[0] = ema
		for i := 1; i < len(values); i++ {
			ema = values[i]*multiplier + ema*(1-multiplier)
			out[i] = ema
		}
		return out
	}
	var seed float64
	for i := 0; i < period; i++ {
		seed += values[i]
		out[i] = seed / float64(i+1)
	}
	ema := seed / float64(period)
	out[period-1] = ema
	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = values[i]*multiplier + ema*(1-multiplier)
		out[i] = ema
	}
	return out
}
