// Package broker provides the paper trading account the engine trades
// against: it holds positions, marks them to market from quotes and books
// realized profit into the balance.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"fx-autotrader/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrPositionNotFound   = errors.New("position not found")
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrNoPrice            = errors.New("no price for symbol")
)

type Paper struct {
	mu        sync.RWMutex
	balance   decimal.Decimal
	positions map[string]*model.Position
	prices    map[string]model.Quote
	history   []model.ClosedTrade
	onClose   []func(model.ClosedTrade)
	now       func() time.Time
	logger    *zap.Logger
}

func NewPaper(initialBalance decimal.Decimal, logger *zap.Logger) *Paper {
	return &Paper{
		balance:   initialBalance,
		positions: make(map[string]*model.Position),
		prices:    make(map[string]model.Quote),
		now:       time.Now,
		logger:    logger,
	}
}

func (p *Paper) SetClock(now func() time.Time) {
	p.mu.Lock()
	p.now = now
	p.mu.Unlock()
}

// OnClose registers a hook called after each realized trade.
func (p *Paper) OnClose(fn func(model.ClosedTrade)) {
	p.mu.Lock()
	p.onClose = append(p.onClose, fn)
	p.mu.Unlock()
}

// UpdatePrices records the latest quotes and marks open positions.
func (p *Paper) UpdatePrices(quotes []model.Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, q := range quotes {
		p.prices[model.NormalizeSymbol(q.Symbol)] = q
	}
	for _, pos := range p.positions {
		q, ok := p.prices[pos.Symbol]
		if !ok {
			continue
		}
		pos.CurrentPrice = exitPrice(pos.Side, q)
		pos.Profit = Profit(pos.Symbol, pos.Side, pos.Volume, pos.OpenPrice, pos.CurrentPrice).InexactFloat64()
	}
}

// PlaceOrder opens pos at the current quote (ask for BUY, bid for SELL). The
// caller may supply the id; otherwise one is generated.
func (p *Paper) PlaceOrder(ctx context.Context, pos model.Position) (model.Position, error) {
	if err := ctx.Err(); err != nil {
		return model.Position{}, err
	}
	if pos.Volume <= 0 {
		return model.Position{}, fmt.Errorf("invalid volume %v", pos.Volume)
	}
	if pos.Side != model.SideBuy && pos.Side != model.SideSell {
		return model.Position{}, fmt.Errorf("invalid side %q", pos.Side)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.balance.IsPositive() {
		return model.Position{}, ErrInsufficientMargin
	}
	pos.Symbol = model.NormalizeSymbol(pos.Symbol)
	if q, ok := p.prices[pos.Symbol]; ok {
		pos.OpenPrice = entryPrice(pos.Side, q)
		pos.CurrentPrice = exitPrice(pos.Side, q)
	} else if pos.OpenPrice <= 0 {
		return model.Position{}, fmt.Errorf("%w: %s", ErrNoPrice, pos.Symbol)
	} else {
		pos.CurrentPrice = pos.OpenPrice
	}
	if pos.ID == "" {
		pos.ID = uuid.NewString()
	}
	if _, exists := p.positions[pos.ID]; exists {
		return model.Position{}, fmt.Errorf("position %s already open", pos.ID)
	}
	if pos.OpenTime.IsZero() {
		pos.OpenTime = p.now()
	}
	pos.Profit = Profit(pos.Symbol, pos.Side, pos.Volume, pos.OpenPrice, pos.CurrentPrice).InexactFloat64()

	stored := pos
	p.positions[pos.ID] = &stored
	p.logger.Info("paper order filled",
		zap.String("position_id", pos.ID),
		zap.String("symbol", pos.Symbol),
		zap.String("side", string(pos.Side)),
		zap.Float64("volume", pos.Volume),
		zap.Float64("price", pos.OpenPrice),
	)
	return pos, nil
}

// ClosePosition realizes the position at the current exit price.
func (p *Paper) ClosePosition(ctx context.Context, id string, reason string) (model.ClosedTrade, error) {
	if err := ctx.Err(); err != nil {
		return model.ClosedTrade{}, err
	}

	p.mu.Lock()
	pos, ok := p.positions[id]
	if !ok {
		p.mu.Unlock()
		return model.ClosedTrade{}, fmt.Errorf("%w: %s", ErrPositionNotFound, id)
	}
	trade := p.realizeLocked(pos, pos.Volume, reason)
	delete(p.positions, id)
	hooks := p.onClose
	p.mu.Unlock()

	p.logger.Info("paper position closed",
		zap.String("position_id", id),
		zap.String("symbol", trade.Symbol),
		zap.Float64("price", trade.ClosePrice),
		zap.Float64("profit", trade.Profit),
		zap.String("reason", reason),
	)
	for _, fn := range hooks {
		fn(trade)
	}
	return trade, nil
}

// ReducePosition realizes volume lots of an open position at the current exit
// price. The rest stays open with its original entry.
func (p *Paper) ReducePosition(ctx context.Context, id string, volume float64, reason string) (model.ClosedTrade, error) {
	if err := ctx.Err(); err != nil {
		return model.ClosedTrade{}, err
	}

	p.mu.Lock()
	pos, ok := p.positions[id]
	if !ok {
		p.mu.Unlock()
		return model.ClosedTrade{}, fmt.Errorf("%w: %s", ErrPositionNotFound, id)
	}
	if volume <= 0 || volume >= pos.Volume {
		p.mu.Unlock()
		return model.ClosedTrade{}, fmt.Errorf("invalid partial volume %v of %v", volume, pos.Volume)
	}
	trade := p.realizeLocked(pos, volume, reason)
	pos.Volume = decimal.NewFromFloat(pos.Volume).Sub(decimal.NewFromFloat(volume)).Round(2).InexactFloat64()
	pos.Profit = Profit(pos.Symbol, pos.Side, pos.Volume, pos.OpenPrice, pos.CurrentPrice).InexactFloat64()
	remaining := pos.Volume
	hooks := p.onClose
	p.mu.Unlock()

	p.logger.Info("paper position reduced",
		zap.String("position_id", id),
		zap.String("symbol", trade.Symbol),
		zap.Float64("closed_volume", volume),
		zap.Float64("remaining_volume", remaining),
		zap.Float64("profit", trade.Profit),
	)
	for _, fn := range hooks {
		fn(trade)
	}
	return trade, nil
}

// realizeLocked books volume lots of pos into the balance and history.
func (p *Paper) realizeLocked(pos *model.Position, volume float64, reason string) model.ClosedTrade {
	closePrice := pos.CurrentPrice
	if q, ok := p.prices[pos.Symbol]; ok {
		closePrice = exitPrice(pos.Side, q)
		pos.CurrentPrice = closePrice
	}
	profit := Profit(pos.Symbol, pos.Side, volume, pos.OpenPrice, closePrice)
	p.balance = p.balance.Add(profit)

	trade := model.ClosedTrade{
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Volume:     volume,
		OpenPrice:  pos.OpenPrice,
		ClosePrice: closePrice,
		Profit:     profit.InexactFloat64(),
		Reason:     reason,
		OpenTime:   pos.OpenTime,
		CloseTime:  p.now(),
	}
	p.history = append(p.history, trade)
	return trade
}

// OpenPositions returns the open positions ordered by open time.
func (p *Paper) OpenPositions() []model.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenTime.Equal(out[j].OpenTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenTime.Before(out[j].OpenTime)
	})
	return out
}

func (p *Paper) Balance() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balance.InexactFloat64()
}

// Equity is the balance plus unrealized profit.
func (p *Paper) Equity() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	eq := p.balance
	for _, pos := range p.positions {
		eq = eq.Add(decimal.NewFromFloat(pos.Profit))
	}
	return eq.InexactFloat64()
}

func (p *Paper) History() []model.ClosedTrade {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]model.ClosedTrade(nil), p.history...)
}

// Profit is the account-currency result of moving from open to price:
// pips × pip value × volume.
func Profit(symbol string, side model.Side, volume, open, price float64) decimal.Decimal {
	spec := model.SpecFor(symbol)
	if spec.PipSize == 0 {
		return decimal.Zero
	}
	delta := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(open))
	if side == model.SideSell {
		delta = delta.Neg()
	}
	pips := delta.Div(decimal.NewFromFloat(spec.PipSize))
	return pips.Mul(decimal.NewFromFloat(spec.PipValue)).Mul(decimal.NewFromFloat(volume)).Round(2)
}

func entryPrice(side model.Side, q model.Quote) float64 {
	if side == model.SideBuy {
		return q.Ask
	}
	return q.Bid
}

func exitPrice(side model.Side, q model.Quote) float64 {
	if side == model.SideBuy {
		return q.Bid
	}
	return q.Ask
}
