package model

import "strings"

// SymbolSpec carries the per-symbol constants used for pip math and sizing.
type SymbolSpec struct {
	Symbol   string  `json:"symbol"`
	PipSize  float64 `json:"pip_size"`  // price units per pip
	PipValue float64 `json:"pip_value"` // USD per pip per 1.0 lot
	MaxLot   float64 `json:"max_lot"`
}

var symbolSpecs = map[string]SymbolSpec{
	"XAUUSD": {Symbol: "XAUUSD", PipSize: 1.0, PipValue: 100, MaxLot: 5},
	"XAGUSD": {Symbol: "XAGUSD", PipSize: 0.01, PipValue: 50, MaxLot: 5},
}

// DefaultPairs is the pair universe scanned when none is configured.
var DefaultPairs = []string{
	"EURUSD", "GBPUSD", "USDJPY", "AUDUSD", "USDCAD", "USDCHF", "NZDUSD", "EURJPY", "GBPJPY", "XAUUSD",
}

// SpecFor returns the pip constants for a symbol. JPY crosses use 0.01 pips,
// gold uses 1.0, everything else 0.0001 with $10 per pip per lot.
func SpecFor(symbol string) SymbolSpec {
	symbol = NormalizeSymbol(symbol)
	if spec, ok := symbolSpecs[symbol]; ok {
		return spec
	}
	if strings.Contains(symbol, "JPY") {
		return SymbolSpec{Symbol: symbol, PipSize: 0.01, PipValue: 10, MaxLot: 50}
	}
	return SymbolSpec{Symbol: symbol, PipSize: 0.0001, PipValue: 10, MaxLot: 50}
}

// PipsToPrice converts a pip distance into price units for the symbol.
func PipsToPrice(symbol string, pips float64) float64 {
	return pips * SpecFor(symbol).PipSize
}

// PriceToPips converts a price distance into pips for the symbol.
func PriceToPips(symbol string, distance float64) float64 {
	spec := SpecFor(symbol)
	if spec.PipSize == 0 {
		return 0
	}
	return distance / spec.PipSize
}
