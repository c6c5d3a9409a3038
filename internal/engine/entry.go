package engine

import (
	"context"
	"fmt"
	"time"

	"fx-autotrader/internal/indicator"
	"fx-autotrader/internal/infrastructure"
	"fx-autotrader/internal/model"
	"fx-autotrader/internal/tracker"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// tryOpenTrade scans the pair universe in order and opens the first symbol
// with an actionable consensus signal. It opens at most one position.
func (e *Engine) tryOpenTrade(ctx context.Context, now time.Time, quick bool) bool {
	cooldown := e.cfg.Entry.NormalCooldown()
	action := model.ActionOpen
	if quick {
		cooldown = e.cfg.ReEntry.Cooldown()
		action = model.ActionQuickReentry
	}
	if !e.lastTradeAt.IsZero() && now.Sub(e.lastTradeAt) < cooldown {
		return false
	}

	required := e.risk.RequiredConfidence(e.cfg.Strategies.MinConfidence)
	for _, raw := range e.cfg.Pairs {
		symbol := model.NormalizeSymbol(raw)
		if e.symbolHeld(symbol) {
			continue
		}
		if _, parked := e.pendingSignals[symbol]; parked {
			continue
		}
		q, ok := e.quotes[symbol]
		if !ok || q.Mid() <= 0 {
			continue
		}
		if e.spreadTooWide(q) {
			e.logger.Debug("spread too wide", zap.String("symbol", symbol), zap.Float64("spread_pips", model.PriceToPips(symbol, q.Spread())))
			continue
		}

		candles := e.candles.Candles(symbol)
		sig := e.agg.Evaluate(symbol, candles, e.cfg.Strategies)
		if !sig.IsActionable() || sig.Confidence < required {
			e.logger.Debug("no entry", zap.String("symbol", symbol), zap.String("reason", sig.Reason))
			continue
		}

		if below := e.cfg.Entry.ManualConfirmBelow; below > 0 && sig.Confidence < below {
			e.park(ctx, sig, q, now)
			continue
		}

		e.open(ctx, sig, q, now, action)
		return true
	}
	return false
}

// park holds a signal for operator confirmation instead of trading it.
func (e *Engine) park(ctx context.Context, sig model.Signal, q model.Quote, now time.Time) {
	price := entryPrice(sig.Side, q)
	e.pendingSignals[sig.Symbol] = PendingSignal{
		Signal:    sig,
		Price:     price,
		CreatedAt: now,
		ExpiresAt: now.Add(e.cfg.Entry.PendingSignalTTL()),
	}
	e.journal(ctx, model.LogEntry{
		Action: model.ActionSignal,
		Symbol: sig.Symbol,
		Side:   sig.Side,
		Price:  price,
		Reason: fmt.Sprintf("awaiting confirmation (%.0f%%): %s", sig.Confidence, sig.Reason),
	})
}

// open builds the position, registers its tracker and submits the open
// intent. Local state is final as soon as this returns.
func (e *Engine) open(ctx context.Context, sig model.Signal, q model.Quote, now time.Time, action model.LogAction) model.Position {
	symbol := sig.Symbol
	candles := e.candles.Candles(symbol)
	atr := indicator.ATR(candles, indicator.ATRPeriod)

	slPips, tpPips := e.risk.StopDistances(symbol, atr)
	volume := e.risk.LotSize(e.account.Balance(), symbol, slPips, atr)

	price := entryPrice(sig.Side, q)
	dir := sig.Side.Direction()
	pos := model.Position{
		ID:           uuid.NewString(),
		Symbol:       symbol,
		Side:         sig.Side,
		Volume:       volume,
		OpenPrice:    price,
		CurrentPrice: price,
		OpenTime:     now,
		StopLoss:     price - dir*model.PipsToPrice(symbol, slPips),
		TakeProfit:   price + dir*model.PipsToPrice(symbol, tpPips),
	}

	e.trackers.Ensure(pos, tracker.Levels{})
	e.pendingOpens[pos.ID] = now
	e.risk.RecordTradeOpened()
	e.lastTradeAt = now
	if action == model.ActionQuickReentry {
		e.lastWinAt = time.Time{}
	}
	e.exec.Submit(Intent{Kind: IntentOpen, Position: pos, PositionID: pos.ID, Reason: sig.Reason, CreatedAt: now})

	e.journal(ctx, model.LogEntry{
		Action: action,
		Symbol: symbol,
		Side:   sig.Side,
		Price:  price,
		Reason: fmt.Sprintf("%s (%.0f%%) lots %.2f SL %.5f TP %.5f", sig.Reason, sig.Confidence, volume, pos.StopLoss, pos.TakeProfit),
	})
	infrastructure.TradesOpened.WithLabelValues(symbol, string(sig.Side)).Inc()
	e.logger.Info("position opened",
		zap.String("position_id", pos.ID),
		zap.String("symbol", symbol),
		zap.String("side", string(sig.Side)),
		zap.Float64("volume", volume),
		zap.Float64("price", price),
		zap.Float64("confidence", sig.Confidence),
	)
	return pos
}

// symbolHeld reports whether symbol has a live, pending or tracked position.
func (e *Engine) symbolHeld(symbol string) bool {
	if e.trackers.HasSymbol(symbol) {
		return true
	}
	for _, p := range e.store.OpenPositions() {
		if _, closing := e.pendingCloses[p.ID]; closing {
			continue
		}
		if model.NormalizeSymbol(p.Symbol) == symbol {
			return true
		}
	}
	return false
}

// spreadTooWide reports whether q's spread exceeds the configured maximum.
func (e *Engine) spreadTooWide(q model.Quote) bool {
	limit := e.cfg.Entry.MaxSpreadPips
	return limit > 0 && model.PriceToPips(q.Symbol, q.Spread()) > limit
}

func entryPrice(side model.Side, q model.Quote) float64 {
	price := q.Ask
	if side == model.SideSell {
		price = q.Bid
	}
	if price <= 0 {
		price = q.Mid()
	}
	return price
}
