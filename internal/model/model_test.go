package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"EUR-USD", "EURUSD"},
		{"eurusd", "EURUSD"},
		{"EUR/USD", "EURUSD"},
		{"usd_jpy", "USDJPY"},
		{" XAU/USD ", "XAUUSD"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeSymbol(tt.input))
		})
	}
}

func TestSpecFor(t *testing.T) {
	assert.Equal(t, 0.0001, SpecFor("EURUSD").PipSize)
	assert.Equal(t, 0.01, SpecFor("gbp/jpy").PipSize)
	assert.Equal(t, 1.0, SpecFor("XAUUSD").PipSize)
	assert.Equal(t, 100.0, SpecFor("XAUUSD").PipValue)

	assert.InDelta(t, 0.0015, PipsToPrice("EURUSD", 15), 1e-12)
	assert.InDelta(t, 20.0, PriceToPips("USDJPY", 0.20), 1e-9)
}

func TestCandleValid(t *testing.T) {
	assert.True(t, Candle{Open: 1.1, High: 1.2, Low: 1.0, Close: 1.15}.Valid())
	assert.False(t, Candle{Open: 1.1, High: 1.0, Low: 1.2, Close: 1.1}.Valid())
	assert.False(t, Candle{Open: 1.3, High: 1.2, Low: 1.0, Close: 1.1}.Valid())
}

func TestSideHelpers(t *testing.T) {
	assert.Equal(t, SideSell, SideBuy.Opposite())
	assert.Equal(t, SideBuy, SideSell.Opposite())
	assert.Equal(t, 1.0, SideBuy.Direction())
	assert.Equal(t, -1.0, SideSell.Direction())
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultAutoTraderConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Pairs[0] = "CHANGED"
	assert.Equal(t, "EURUSD", DefaultPairs[0], "defaults must not share the pair slice")
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*AutoTraderConfig){
		"zero risk":           func(c *AutoTraderConfig) { c.Risk.RiskPercent = 0 },
		"zero max trades":     func(c *AutoTraderConfig) { c.Risk.MaxOpenTrades = 0 },
		"negative loss":       func(c *AutoTraderConfig) { c.Risk.MaxDailyLoss = -1 },
		"negative stop":       func(c *AutoTraderConfig) { c.Entry.StopLossPips = -5 },
		"trailing distance":   func(c *AutoTraderConfig) { c.Trailing.Enabled = true; c.Trailing.DistancePips = 0 },
		"martingale":          func(c *AutoTraderConfig) { c.Martingale.Enabled = true; c.Martingale.Multiplier = 0.5 },
		"start hour":          func(c *AutoTraderConfig) { c.Session.StartHour = 24 },
		"strategy threshold":  func(c *AutoTraderConfig) { c.Strategies.Items[0].MinConfidence = 101 },
		"negative win streak": func(c *AutoTraderConfig) { c.Risk.MaxConsecutiveWins = -1 },
		"negative spread":     func(c *AutoTraderConfig) { c.Entry.MaxSpreadPips = -1 },
		"risk scaling bounds": func(c *AutoTraderConfig) { c.RiskScaling.Enabled = true; c.RiskScaling.MinRiskPercent = 5 },
		"risk scaling factor": func(c *AutoTraderConfig) { c.RiskScaling.Enabled = true; c.RiskScaling.LossMultiplier = 1.5 },
		"partial close share": func(c *AutoTraderConfig) { c.PartialClose.Enabled = true; c.PartialClose.Percent = 100 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultAutoTraderConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
