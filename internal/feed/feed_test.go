package feed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"fx-autotrader/internal/model"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func quoteMsg(t *testing.T, q model.Quote) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(q)
	require.NoError(t, err)
	return &nats.Msg{Subject: "market.tick." + q.Symbol, Data: data}
}

func TestNATSFeedKeepsNewestQuote(t *testing.T) {
	f := NewNATSFeed(nil, zap.NewNop())
	t0 := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	f.handle(quoteMsg(t, model.Quote{Symbol: "eur/usd", Bid: 1.1000, Ask: 1.1001, TickTime: t0.Add(time.Second)}))
	f.handle(quoteMsg(t, model.Quote{Symbol: "EURUSD", Bid: 1.0990, Ask: 1.0991, TickTime: t0}))
	f.handle(quoteMsg(t, model.Quote{Symbol: "GBPUSD", Bid: 1.2500, Ask: 1.2502, TickTime: t0}))
	f.handle(quoteMsg(t, model.Quote{Symbol: "USDJPY", Bid: 0, Ask: 150.1, TickTime: t0}))
	f.handle(&nats.Msg{Data: []byte("{broken")})

	quotes, err := f.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "EURUSD", quotes[0].Symbol)
	assert.Equal(t, 1.1000, quotes[0].Bid, "an older tick does not replace a newer one")
	assert.Equal(t, "GBPUSD", quotes[1].Symbol)
}

func TestSimulatorWalksEveryPair(t *testing.T) {
	s := NewSimulator([]string{"EURUSD", "usd/jpy", "XAUUSD"}, 7, 2)
	fixed := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	first, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, []string{"EURUSD", "USDJPY", "XAUUSD"}, []string{first[0].Symbol, first[1].Symbol, first[2].Symbol})

	for _, q := range first {
		pip := model.SpecFor(q.Symbol).PipSize
		assert.Greater(t, q.Ask, q.Bid, q.Symbol)
		assert.InDelta(t, spreadPips(q.Symbol)*pip, q.Ask-q.Bid, pip/10+1e-9, q.Symbol)
		assert.Equal(t, fixed, q.TickTime)
		assert.InDelta(t, basePrices[q.Symbol], q.Mid(), 20*pip, "one step stays near the reference")
	}

	for i := 0; i < 50; i++ {
		_, _ = s.Snapshot(context.Background())
	}
	last, _ := s.Snapshot(context.Background())
	assert.Equal(t, int64(52), last[0].TickVolume)
	assert.GreaterOrEqual(t, last[0].High, last[0].Low)
}

func TestSimulatorIsDeterministicPerSeed(t *testing.T) {
	a := NewSimulator([]string{"EURUSD"}, 42, 1)
	b := NewSimulator([]string{"EURUSD"}, 42, 1)

	qa, _ := a.Snapshot(context.Background())
	qb, _ := b.Snapshot(context.Background())
	assert.Equal(t, qa[0].Bid, qb[0].Bid)
}

func TestSimulatorUnknownPairStartsAtOne(t *testing.T) {
	s := NewSimulator([]string{"ABCDEF"}, 1, 0)
	quotes, _ := s.Snapshot(context.Background())
	assert.InDelta(t, 1.0, quotes[0].Mid(), 1e-4)
}
