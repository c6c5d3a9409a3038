package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"fx-autotrader/internal/infrastructure"
	"fx-autotrader/internal/model"
	"fx-autotrader/internal/risk"
	"fx-autotrader/internal/tracker"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const partialCloseReason = "PARTIAL_CLOSE"

// evaluatePosition runs the exit checks for one position in order: take
// profit, stop loss (with smart recovery), signal flip, trailing stop, partial
// close, smart cash-out. A close or a reduction ends the evaluation for this
// tick.
func (e *Engine) evaluatePosition(ctx context.Context, pos model.Position, now time.Time) {
	price := e.priceOf(pos)
	if price <= 0 || (pos.Side != model.SideBuy && pos.Side != model.SideSell) {
		e.logger.Debug("skipping position without price or side", zap.String("position_id", pos.ID))
		return
	}
	tr := e.trackers.Ensure(pos, e.fallbackLevels(pos.Symbol))

	if reached(pos.Side, price, tr.TakeProfit) {
		e.closePosition(ctx, pos, tr, price, model.ActionTPHit,
			fmt.Sprintf("take profit %.5f reached", tr.TakeProfit), now)
		return
	}

	if tr.RecoveryFloor != 0 && !adverse(pos.Side, price, tr.StopLoss) {
		// traded back through the entry: the breakeven stop is now a normal stop
		tr.RecoveryFloor = 0
		e.trackers.Put(tr)
	}
	if adverse(pos.Side, price, tr.StopLoss) {
		if tr.RecoveryFloor != 0 && !adverse(pos.Side, price, tr.RecoveryFloor) {
			return
		}
		if e.trySmartRecovery(ctx, pos, &tr, price) {
			return
		}
		e.closePosition(ctx, pos, tr, price, model.ActionSLHit,
			fmt.Sprintf("stop loss %.5f hit", tr.StopLoss), now)
		return
	}

	if e.checkSignalFlip(ctx, pos, tr, price, now) {
		return
	}

	e.trail(ctx, pos, &tr, price)

	if e.checkPartialClose(ctx, pos, &tr, price, now) {
		return
	}

	e.checkSmartCashOut(ctx, pos, &tr, price, now)
}

// trySmartRecovery keeps a position whose stop was hit when the loss is
// within the configured share of the planned loss and the analyzer expects
// the move to turn. The stop moves to the entry price. Used once per position.
func (e *Engine) trySmartRecovery(ctx context.Context, pos model.Position, tr *tracker.Entry, price float64) bool {
	cfg := e.cfg.SmartLossRecovery
	if !cfg.Enabled || tr.RecoveryUsed {
		return false
	}
	dir := pos.Side.Direction()
	planned := math.Abs(tr.EntryPrice - tr.InitialStop)
	loss := (tr.EntryPrice - price) * dir
	if planned == 0 || loss <= 0 {
		return false
	}
	lossPct := loss / planned * 100
	if lossPct > cfg.MaxLossPercent {
		return false
	}

	verdict := e.analyzer.Analyze(e.candles.Candles(pos.Symbol), pos.Side, tr.StopLoss)
	if !verdict.WillContinue || verdict.Confidence < cfg.Confidence {
		e.logger.Debug("smart recovery declined",
			zap.String("position_id", pos.ID),
			zap.Bool("will_continue", verdict.WillContinue),
			zap.Float64("confidence", verdict.Confidence),
		)
		return false
	}

	oldStop := tr.StopLoss
	tr.StopLoss = tr.EntryPrice
	tr.RecoveryUsed = true
	tr.RecoveryFloor = tr.EntryPrice - dir*planned*cfg.MaxLossPercent/100
	e.trackers.Put(*tr)

	e.journal(ctx, model.LogEntry{
		Action: model.ActionTrailing,
		Symbol: pos.Symbol,
		Side:   pos.Side,
		Price:  price,
		Reason: fmt.Sprintf("smart loss recovery: stop %.5f moved to breakeven %.5f (loss %.0f%% of plan, continuation %.0f%%)",
			oldStop, tr.StopLoss, lossPct, verdict.Confidence),
	})
	e.logger.Info("smart loss recovery",
		zap.String("position_id", pos.ID),
		zap.String("symbol", pos.Symbol),
		zap.Float64("stop", tr.StopLoss),
		zap.Float64("floor", tr.RecoveryFloor),
	)
	return true
}

// checkSignalFlip closes a profitable position when the strategies now agree
// on the opposite side.
func (e *Engine) checkSignalFlip(ctx context.Context, pos model.Position, tr tracker.Entry, price float64, now time.Time) bool {
	if pos.Profit <= 0 {
		return false
	}
	sig := e.agg.Evaluate(pos.Symbol, e.candles.Candles(pos.Symbol), e.cfg.Strategies)
	if sig.Side != pos.Side.Opposite() || sig.Confidence < e.cfg.Strategies.MinConfidence {
		return false
	}
	e.closePosition(ctx, pos, tr, price, model.ActionClose,
		fmt.Sprintf("signal flip to %s (%.0f%%): %s", sig.Side, sig.Confidence, sig.Reason), now)
	return true
}

// trail follows the best price seen once the position is StartPips in profit.
// The stop only ever moves in the position's favour.
func (e *Engine) trail(ctx context.Context, pos model.Position, tr *tracker.Entry, price float64) {
	cfg := e.cfg.Trailing
	if !cfg.Enabled {
		return
	}
	dir := pos.Side.Direction()
	gain := (price - tr.EntryPrice) * dir
	if gain <= 0 || model.PriceToPips(pos.Symbol, gain) < cfg.StartPips {
		return
	}

	peak, seen := e.trackers.Peak(pos.ID)
	if seen && !better(pos.Side, price, peak) {
		return
	}
	e.trackers.SetPeak(pos.ID, price)

	candidate := price - dir*model.PipsToPrice(pos.Symbol, cfg.DistancePips)
	if !better(pos.Side, candidate, tr.StopLoss) {
		return
	}
	first := !tr.Trailing
	old := tr.StopLoss
	tr.StopLoss = candidate
	tr.Trailing = true
	e.trackers.Put(*tr)

	e.logger.Debug("trailing stop moved",
		zap.String("position_id", pos.ID),
		zap.Float64("from", old),
		zap.Float64("to", candidate),
	)
	if first {
		e.journal(ctx, model.LogEntry{
			Action: model.ActionTrailing,
			Symbol: pos.Symbol,
			Side:   pos.Side,
			Price:  price,
			Reason: fmt.Sprintf("trailing stop engaged at %.5f (%.1f pips behind %.5f)", candidate, cfg.DistancePips, price),
		})
	}
}

// checkPartialClose takes the configured share off a position once it is
// AtProfitPips in profit. The realized share is booked with the risk manager
// now; streaks wait for the final close.
func (e *Engine) checkPartialClose(ctx context.Context, pos model.Position, tr *tracker.Entry, price float64, now time.Time) bool {
	cfg := e.cfg.PartialClose
	if !cfg.Enabled || tr.PartialClosed || pos.Volume <= 0 {
		return false
	}
	gain := (price - tr.EntryPrice) * pos.Side.Direction()
	pips := model.PriceToPips(pos.Symbol, gain)
	if gain <= 0 || pips < cfg.AtProfitPips {
		return false
	}

	tr.PartialClosed = true
	total := decimal.NewFromFloat(pos.Volume)
	volume := total.Mul(decimal.NewFromFloat(cfg.Percent)).Div(decimal.NewFromInt(100)).Round(2)
	remaining := total.Sub(volume)
	if volume.InexactFloat64() < risk.MinLot || remaining.InexactFloat64() < risk.MinLot {
		e.trackers.Put(*tr)
		e.logger.Debug("position too small to reduce",
			zap.String("position_id", pos.ID),
			zap.Float64("volume", pos.Volume),
		)
		return false
	}

	share := volume.Div(total)
	profit := decimal.NewFromFloat(pos.Profit).Mul(share).Round(2).InexactFloat64()
	tr.Volume = remaining.InexactFloat64()
	tr.PeakProfit = decimal.NewFromFloat(tr.PeakProfit).Mul(decimal.NewFromInt(1).Sub(share)).InexactFloat64()
	e.trackers.Put(*tr)
	e.risk.RecordPartialProfit(profit)
	e.exec.Submit(Intent{
		Kind:       IntentPartialClose,
		PositionID: pos.ID,
		Volume:     volume.InexactFloat64(),
		Reason:     partialCloseReason,
		CreatedAt:  now,
	})

	e.journal(ctx, model.LogEntry{
		Action: model.ActionClose,
		Symbol: pos.Symbol,
		Side:   pos.Side,
		Price:  price,
		Profit: &profit,
		Reason: fmt.Sprintf("partial close %.0f%%: %s of %.2f lots at %.1f pips", cfg.Percent, volume.StringFixed(2), pos.Volume, pips),
	})
	infrastructure.TradesClosed.WithLabelValues(partialCloseReason).Inc()
	e.logger.Info("position reduced",
		zap.String("position_id", pos.ID),
		zap.String("symbol", pos.Symbol),
		zap.Float64("closed_volume", volume.InexactFloat64()),
		zap.Float64("remaining_volume", tr.Volume),
		zap.Float64("profit", profit),
	)
	return true
}

// checkSmartCashOut banks profit after a retrace from its peak when the
// analyzer expects the reversal to continue.
func (e *Engine) checkSmartCashOut(ctx context.Context, pos model.Position, tr *tracker.Entry, price float64, now time.Time) {
	cfg := e.cfg.SmartCashOut
	if !cfg.Enabled {
		return
	}
	profit := pos.Profit
	if profit > cfg.MinProfit && profit > tr.PeakProfit {
		tr.PeakProfit = profit
		tr.PeakProfitPrice = price
		e.trackers.Put(*tr)
		return
	}
	if tr.PeakProfit <= 0 || profit <= 0 {
		return
	}
	retrace := (tr.PeakProfit - profit) / tr.PeakProfit * 100
	if retrace < cfg.RetracePercent {
		return
	}

	verdict := e.analyzer.Analyze(e.candles.Candles(pos.Symbol), pos.Side, tr.PeakProfitPrice)
	if verdict.WillContinue || verdict.Confidence < cfg.Confidence {
		return
	}
	e.closePosition(ctx, pos, *tr, price, model.ActionClose,
		fmt.Sprintf("smart cash-out: banked %.2f of %.2f peak (retrace %.0f%%, reversal %.0f%%)",
			profit, tr.PeakProfit, retrace, verdict.Confidence), now)
}

// closePosition is the single terminal transition: it books the result with
// the risk manager, drops the tracker, issues the close intent and writes
// exactly one journal entry.
func (e *Engine) closePosition(ctx context.Context, pos model.Position, tr tracker.Entry, price float64, action model.LogAction, reason string, now time.Time) {
	profit := pos.Profit
	e.risk.RecordTradeResult(profit)
	e.trackers.Delete(pos.ID)

	intent := Intent{Kind: IntentClose, PositionID: pos.ID, Reason: string(action), CreatedAt: now}
	e.pendingCloses[pos.ID] = pendingClose{intent: intent, at: now}
	e.exec.Submit(intent)

	if profit > 0 {
		e.lastWinAt = now
	}

	e.journal(ctx, model.LogEntry{
		Action: action,
		Symbol: pos.Symbol,
		Side:   pos.Side,
		Price:  price,
		Profit: &profit,
		Reason: reason,
	})
	infrastructure.TradesClosed.WithLabelValues(string(action)).Inc()
	e.logger.Info("position closed",
		zap.String("position_id", pos.ID),
		zap.String("symbol", pos.Symbol),
		zap.String("side", string(pos.Side)),
		zap.Float64("price", price),
		zap.Float64("profit", profit),
		zap.Float64("stop", tr.StopLoss),
		zap.String("reason", reason),
	)
}

// priceOf prefers the store's mark and falls back to the latest quote.
func (e *Engine) priceOf(pos model.Position) float64 {
	if pos.CurrentPrice > 0 {
		return pos.CurrentPrice
	}
	if q, ok := e.quotes[model.NormalizeSymbol(pos.Symbol)]; ok {
		if pos.Side == model.SideBuy {
			return q.Bid
		}
		return q.Ask
	}
	return 0
}

func (e *Engine) fallbackLevels(symbol string) tracker.Levels {
	return tracker.Levels{
		StopDistance:   model.PipsToPrice(symbol, e.cfg.Entry.StopLossPips),
		TargetDistance: model.PipsToPrice(symbol, e.cfg.Entry.TakeProfitPips),
	}
}

// reached reports whether price is at or beyond target in side's favour.
func reached(side model.Side, price, target float64) bool {
	if target == 0 {
		return false
	}
	if side == model.SideBuy {
		return price >= target
	}
	return price <= target
}

// adverse reports whether price is at or beyond level against side.
func adverse(side model.Side, price, level float64) bool {
	if level == 0 {
		return false
	}
	if side == model.SideBuy {
		return price <= level
	}
	return price >= level
}

// better reports whether a is strictly more favourable than b for side.
func better(side model.Side, a, b float64) bool {
	if side == model.SideBuy {
		return a > b
	}
	return a < b
}
