package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"EURUSD", "GBP/USD"}, splitList(" eurusd, gbp/usd ,,", true))
	assert.Equal(t, []string{"https://a.example"}, splitList("https://a.example", false))
	assert.Nil(t, splitList("", true))
}

func TestPairsAndOrigins(t *testing.T) {
	c := Config{PairsRaw: "eurusd,usdjpy", CORSOrigins: "http://localhost:3000, https://dash.example"}

	assert.Equal(t, []string{"EURUSD", "USDJPY"}, c.Pairs())
	assert.Equal(t, []string{"http://localhost:3000", "https://dash.example"}, c.AllowedOrigins())
}

func TestDurations(t *testing.T) {
	c := Config{TickIntervalMs: 250, CandlePeriodSec: 60, PersistIntervalS: 5}
	assert.Equal(t, 250*time.Millisecond, c.TickInterval())
	assert.Equal(t, time.Minute, c.CandlePeriod())
	assert.Equal(t, 5*time.Second, c.PersistInterval())

	var zero Config
	assert.Equal(t, time.Second, zero.TickInterval())
	assert.Equal(t, time.Duration(0), zero.CandlePeriod())
	assert.Equal(t, 10*time.Second, zero.PersistInterval())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PAIRS", "EURUSD,XAUUSD")
	t.Setenv("ENABLE_NATS", "true")

	cfg, err := LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"EURUSD", "XAUUSD"}, cfg.Pairs())
	assert.True(t, cfg.EnableNATS)
	assert.Equal(t, FeedSim, cfg.FeedSource)
}
