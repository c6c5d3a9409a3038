package broker

import (
	"context"
	"errors"
	"testing"

	"fx-autotrader/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProfit(t *testing.T) {
	// 20 pips × $10 × 0.5 lots
	assert.True(t, Profit("EURUSD", model.SideBuy, 0.5, 1.1000, 1.1020).Equal(decimal.NewFromInt(100)))
	assert.True(t, Profit("EURUSD", model.SideSell, 0.5, 1.1000, 1.1020).Equal(decimal.NewFromInt(-100)))
	// 50 JPY pips × $10 × 1 lot
	assert.True(t, Profit("USDJPY", model.SideSell, 1, 150.50, 150.00).Equal(decimal.NewFromInt(500)))
	// gold: 2 points × $100 × 0.1
	assert.True(t, Profit("XAUUSD", model.SideBuy, 0.1, 2400, 2402).Equal(decimal.NewFromInt(20)))
}

func TestPaper_Lifecycle(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(decimal.NewFromInt(10_000), zap.NewNop())
	var closed []model.ClosedTrade
	p.OnClose(func(tr model.ClosedTrade) { closed = append(closed, tr) })

	p.UpdatePrices([]model.Quote{{Symbol: "EURUSD", Bid: 1.1000, Ask: 1.1002}})

	pos, err := p.PlaceOrder(ctx, model.Position{ID: "p1", Symbol: "eurusd", Side: model.SideBuy, Volume: 1})
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", pos.Symbol)
	assert.Equal(t, 1.1002, pos.OpenPrice)
	assert.InDelta(t, -20.0, pos.Profit, 1e-9, "spread cost")

	p.UpdatePrices([]model.Quote{{Symbol: "EURUSD", Bid: 1.1032, Ask: 1.1034}})
	open := p.OpenPositions()
	require.Len(t, open, 1)
	assert.InDelta(t, 300.0, open[0].Profit, 1e-9)
	assert.InDelta(t, 10_300.0, p.Equity(), 1e-9)
	assert.InDelta(t, 10_000.0, p.Balance(), 1e-9)

	trade, err := p.ClosePosition(ctx, "p1", "TP_HIT")
	require.NoError(t, err)
	assert.InDelta(t, 300.0, trade.Profit, 1e-9)
	assert.InDelta(t, 10_300.0, p.Balance(), 1e-9)
	assert.Empty(t, p.OpenPositions())
	assert.Len(t, p.History(), 1)
	assert.Len(t, closed, 1)

	_, err = p.ClosePosition(ctx, "p1", "again")
	assert.True(t, errors.Is(err, ErrPositionNotFound))
}

func TestPaper_ReducePosition(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(decimal.NewFromInt(10_000), zap.NewNop())
	var closed []model.ClosedTrade
	p.OnClose(func(tr model.ClosedTrade) { closed = append(closed, tr) })

	p.UpdatePrices([]model.Quote{{Symbol: "EURUSD", Bid: 1.1000, Ask: 1.1000}})
	_, err := p.PlaceOrder(ctx, model.Position{ID: "p1", Symbol: "EURUSD", Side: model.SideBuy, Volume: 1})
	require.NoError(t, err)

	_, err = p.ReducePosition(ctx, "p1", 1, "PARTIAL_CLOSE")
	assert.Error(t, err, "reducing the whole volume is a close")
	_, err = p.ReducePosition(ctx, "missing", 0.5, "PARTIAL_CLOSE")
	assert.True(t, errors.Is(err, ErrPositionNotFound))

	p.UpdatePrices([]model.Quote{{Symbol: "EURUSD", Bid: 1.1010, Ask: 1.1010}})
	trade, err := p.ReducePosition(ctx, "p1", 0.5, "PARTIAL_CLOSE")
	require.NoError(t, err)
	assert.Equal(t, 0.5, trade.Volume)
	assert.InDelta(t, 50.0, trade.Profit, 1e-9)
	assert.InDelta(t, 10_050.0, p.Balance(), 1e-9)
	require.Len(t, closed, 1)

	open := p.OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, 0.5, open[0].Volume)
	assert.InDelta(t, 50.0, open[0].Profit, 1e-9)
	assert.InDelta(t, 10_100.0, p.Equity(), 1e-9)

	final, err := p.ClosePosition(ctx, "p1", "TP_HIT")
	require.NoError(t, err)
	assert.Equal(t, 0.5, final.Volume)
	assert.Len(t, p.History(), 2)
	assert.Equal(t, "p1", p.History()[0].PositionID)
}

func TestPaper_PlaceOrderValidation(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(decimal.NewFromInt(1_000), zap.NewNop())

	_, err := p.PlaceOrder(ctx, model.Position{Symbol: "GBPUSD", Side: model.SideBuy, Volume: 1})
	assert.True(t, errors.Is(err, ErrNoPrice))

	_, err = p.PlaceOrder(ctx, model.Position{Symbol: "GBPUSD", Side: model.SideNone, Volume: 1, OpenPrice: 1.25})
	assert.Error(t, err)

	pos, err := p.PlaceOrder(ctx, model.Position{Symbol: "GBPUSD", Side: model.SideSell, Volume: 0.1, OpenPrice: 1.25})
	require.NoError(t, err)
	assert.NotEmpty(t, pos.ID)

	broke := NewPaper(decimal.Zero, zap.NewNop())
	_, err = broke.PlaceOrder(ctx, model.Position{Symbol: "GBPUSD", Side: model.SideSell, Volume: 0.1, OpenPrice: 1.25})
	assert.True(t, errors.Is(err, ErrInsufficientMargin))
}
