package model

import (
	"strings"
	"time"
)

// Quote is one pair's snapshot from the price feed. The engine only reads it.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Bid           float64   `json:"bid"`
	Ask           float64   `json:"ask"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	TickVolume    int64     `json:"tick_volume"`
	TickTime      time.Time `json:"tick_time"`
}

// Mid returns the midpoint between bid and ask.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// Spread returns ask minus bid.
func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

// Candle 代表一根K线. Time is epoch seconds of the bucket start.
type Candle struct {
	Symbol string  `json:"symbol,omitempty" db:"symbol"`
	Time   int64   `json:"t" db:"time"`
	Open   float64 `json:"o" db:"open"`
	High   float64 `json:"h" db:"high"`
	Low    float64 `json:"l" db:"low"`
	Close  float64 `json:"c" db:"close"`
	Volume int64   `json:"v" db:"volume"`
}

// Valid reports whether the candle respects low <= open,close <= high.
func (c Candle) Valid() bool {
	if c.Low > c.High {
		return false
	}
	return c.Open >= c.Low && c.Open <= c.High && c.Close >= c.Low && c.Close <= c.High
}

// NormalizeSymbol unifies broker symbol formats into a standard one (e.g. EURUSD).
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}
