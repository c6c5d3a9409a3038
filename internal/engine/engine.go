// Package engine is the tick-driven autotrader. Each Tick manages the open
// positions, consults the risk manager and scans the pair universe for one
// new entry. Orders and closes leave the engine as intents; the engine's own
// state is updated before the broker confirms anything.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"fx-autotrader/internal/continuation"
	"fx-autotrader/internal/infrastructure"
	"fx-autotrader/internal/model"
	"fx-autotrader/internal/processor"
	"fx-autotrader/internal/risk"
	"fx-autotrader/internal/strategy"
	"fx-autotrader/internal/tracker"
	"fx-autotrader/internal/tradelog"

	"go.uber.org/zap"
)

var (
	ErrNoPendingSignal   = errors.New("no pending signal")
	ErrPositionNotFound  = errors.New("position not found")
	ErrCloseInProgress   = errors.New("close already requested")
	ErrRiskBlocked       = errors.New("blocked by risk manager")
	ErrCapacityReached   = errors.New("max open trades reached")
	ErrEngineDisabled    = errors.New("autotrader disabled")
	ErrSymbolAlreadyOpen = errors.New("symbol already has a position")
	ErrNoQuote           = errors.New("no quote for symbol")
	ErrSpreadTooWide     = errors.New("spread too wide")
)

const (
	riskBlockLogEvery = 20
	entryScanEvery    = 3
	confirmTimeout    = 30 * time.Second
)

// PositionStore is the authoritative list of open positions with live prices.
type PositionStore interface {
	OpenPositions() []model.Position
}

type Account interface {
	Balance() float64
	Equity() float64
}

// Analyzer predicts whether a move continues in side's favour.
type Analyzer interface {
	Analyze(candles []model.Candle, side model.Side, reference float64) continuation.Verdict
}

// Notifier receives significant journal entries. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, entry model.LogEntry)
}

// PendingSignal is an entry signal parked for operator confirmation.
type PendingSignal struct {
	Signal    model.Signal `json:"signal"`
	Price     float64      `json:"price"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

type Deps struct {
	Store      PositionStore
	Account    Account
	Executor   Executor
	Notifier   Notifier
	Analyzer   Analyzer
	Risk       *risk.Manager
	Aggregator *strategy.Aggregator
	Trackers   *tracker.Store
	Logs       *tradelog.Ring
	Candles    *processor.CandleBuilder
	Clock      func() time.Time
}

type pendingClose struct {
	intent Intent
	at     time.Time
}

type Engine struct {
	mu sync.Mutex

	cfg      model.AutoTraderConfig
	store    PositionStore
	account  Account
	exec     Executor
	notifier Notifier
	analyzer Analyzer
	risk     *risk.Manager
	agg      *strategy.Aggregator
	trackers *tracker.Store
	logs     *tradelog.Ring
	candles  *processor.CandleBuilder
	now      func() time.Time
	logger   *zap.Logger

	tick           int64
	riskBlockTicks int
	lastTradeAt    time.Time
	lastWinAt      time.Time
	quotes         map[string]model.Quote
	pendingOpens   map[string]time.Time
	pendingCloses  map[string]pendingClose
	pendingSignals map[string]PendingSignal
}

// New wires an engine. Store, Account and Executor are required; the other
// collaborators default to fresh in-memory instances.
func New(cfg model.AutoTraderConfig, deps Deps, logger *zap.Logger) *Engine {
	logger = logger.With(zap.String("component", "engine"))
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Analyzer == nil {
		deps.Analyzer = continuation.NewAnalyzer()
	}
	if deps.Risk == nil {
		deps.Risk = risk.NewManager(cfg, risk.NewNewsFilter(), logger)
	}
	if deps.Aggregator == nil {
		deps.Aggregator = strategy.NewAggregator(logger)
	}
	if deps.Trackers == nil {
		deps.Trackers = tracker.NewStore()
	}
	if deps.Logs == nil {
		deps.Logs = tradelog.NewRing(tradelog.DefaultCapacity)
	}
	if deps.Candles == nil {
		deps.Candles = processor.NewCandleBuilder(0, nil, logger)
	}
	return &Engine{
		cfg:            cfg,
		store:          deps.Store,
		account:        deps.Account,
		exec:           deps.Executor,
		notifier:       deps.Notifier,
		analyzer:       deps.Analyzer,
		risk:           deps.Risk,
		agg:            deps.Aggregator,
		trackers:       deps.Trackers,
		logs:           deps.Logs,
		candles:        deps.Candles,
		now:            deps.Clock,
		logger:         logger,
		quotes:         make(map[string]model.Quote),
		pendingOpens:   make(map[string]time.Time),
		pendingCloses:  make(map[string]pendingClose),
		pendingSignals: make(map[string]PendingSignal),
	}
}

// Tick processes one price snapshot. Ticks are serialized; a slow broker never
// blocks here because all external calls go through the executor.
func (e *Engine) Tick(ctx context.Context, quotes []model.Quote) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	defer func() {
		infrastructure.TickCount.Inc()
		infrastructure.TickDuration.Observe(time.Since(start).Seconds())
	}()

	e.tick++
	for _, q := range quotes {
		sym := model.NormalizeSymbol(q.Symbol)
		q.Symbol = sym
		e.quotes[sym] = q
		e.candles.OnQuote(q)
	}

	if !e.cfg.Enabled {
		return
	}

	now := e.now()
	e.expireSignals(now)

	positions := e.store.OpenPositions()
	e.reconcile(positions, now)
	for _, pos := range positions {
		if _, closing := e.pendingCloses[pos.ID]; closing {
			continue
		}
		e.evaluatePosition(ctx, pos, now)
	}
	infrastructure.OpenPositions.Set(float64(e.trackers.Len()))

	equity := e.account.Equity()
	infrastructure.Equity.Set(equity)
	if ok, reason := e.risk.CanTrade(equity); !ok {
		if e.riskBlockTicks%riskBlockLogEvery == 0 {
			e.journal(ctx, model.LogEntry{Action: model.ActionRiskBlock, Reason: reason})
			infrastructure.RiskBlocks.WithLabelValues(reason).Inc()
			e.logger.Warn("entries blocked by risk manager", zap.String("reason", reason))
		}
		e.riskBlockTicks++
		return
	}
	e.riskBlockTicks = 0

	if e.openCount() >= e.cfg.Risk.MaxOpenTrades {
		return
	}

	re := e.cfg.ReEntry
	if re.Enabled && !e.lastWinAt.IsZero() && now.Sub(e.lastWinAt) <= re.Window() {
		e.tryOpenTrade(ctx, now, true)
		return
	}
	if (e.tick-1)%entryScanEvery == 0 {
		e.tryOpenTrade(ctx, now, false)
	}
}

// reconcile confirms outstanding intents against the store. A close the store
// has not applied in time is resubmitted; an open that never appears loses its
// tracker. Both are logged as discrepancies.
func (e *Engine) reconcile(positions []model.Position, now time.Time) {
	live := make(map[string]bool, len(positions))
	for _, p := range positions {
		live[p.ID] = true
	}

	for id, pc := range e.pendingCloses {
		if !live[id] {
			delete(e.pendingCloses, id)
			continue
		}
		if now.Sub(pc.at) > confirmTimeout {
			e.logger.Warn("close not confirmed, resubmitting", zap.String("position_id", id))
			pc.at = now
			e.pendingCloses[id] = pc
			e.exec.Submit(pc.intent)
		}
	}

	for id, at := range e.pendingOpens {
		if live[id] {
			delete(e.pendingOpens, id)
			continue
		}
		if now.Sub(at) > confirmTimeout {
			e.logger.Warn("open not confirmed, dropping tracker", zap.String("position_id", id))
			delete(e.pendingOpens, id)
			e.trackers.Delete(id)
		}
	}
}

func (e *Engine) openCount() int {
	n := 0
	live := make(map[string]bool)
	for _, p := range e.store.OpenPositions() {
		live[p.ID] = true
		if _, closing := e.pendingCloses[p.ID]; !closing {
			n++
		}
	}
	for id := range e.pendingOpens {
		if !live[id] {
			n++
		}
	}
	return n
}

func (e *Engine) expireSignals(now time.Time) {
	for sym, ps := range e.pendingSignals {
		if now.After(ps.ExpiresAt) {
			delete(e.pendingSignals, sym)
		}
	}
}

// journal appends one log entry and forwards it to the notifier.
func (e *Engine) journal(ctx context.Context, entry model.LogEntry) model.LogEntry {
	entry.Timestamp = e.now()
	entry = e.logs.Append(entry)
	e.notifier.Notify(ctx, entry)
	return entry
}

// Config returns the active configuration.
func (e *Engine) Config() model.AutoTraderConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// UpdateConfig validates and swaps the configuration between ticks.
func (e *Engine) UpdateConfig(cfg model.AutoTraderConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	pairs := make([]string, len(cfg.Pairs))
	for i, p := range cfg.Pairs {
		pairs[i] = model.NormalizeSymbol(p)
	}
	cfg.Pairs = pairs
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.risk.UpdateConfig(cfg)
	e.logger.Info("config updated", zap.Bool("enabled", cfg.Enabled), zap.Strings("pairs", cfg.Pairs))
	return nil
}

func (e *Engine) Logs() []model.LogEntry {
	return e.logs.Entries()
}

func (e *Engine) RiskState() model.DailyStats {
	return e.risk.State()
}

// Trackers returns the working state of every tracked position.
func (e *Engine) Trackers() []tracker.Entry {
	return e.trackers.Snapshot()
}

func (e *Engine) Candles(symbol string) []model.Candle {
	return e.candles.Candles(symbol)
}

// PendingSignals lists signals awaiting confirmation, by symbol.
func (e *Engine) PendingSignals() []PendingSignal {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PendingSignal, 0, len(e.pendingSignals))
	for _, ps := range e.pendingSignals {
		out = append(out, ps)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Signal.Symbol < out[j].Signal.Symbol })
	return out
}

// ConfirmSignal opens the parked signal for symbol, subject to the same risk
// and capacity gates as an automatic entry.
func (e *Engine) ConfirmSignal(ctx context.Context, symbol string) (model.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	symbol = model.NormalizeSymbol(symbol)
	now := e.now()
	e.expireSignals(now)
	ps, ok := e.pendingSignals[symbol]
	if !ok {
		return model.Position{}, fmt.Errorf("%w: %s", ErrNoPendingSignal, symbol)
	}
	if !e.cfg.Enabled {
		return model.Position{}, ErrEngineDisabled
	}
	if ok, reason := e.risk.CanTrade(e.account.Equity()); !ok {
		return model.Position{}, fmt.Errorf("%w: %s", ErrRiskBlocked, reason)
	}
	if e.openCount() >= e.cfg.Risk.MaxOpenTrades {
		return model.Position{}, ErrCapacityReached
	}
	if e.symbolHeld(symbol) {
		return model.Position{}, fmt.Errorf("%w: %s", ErrSymbolAlreadyOpen, symbol)
	}
	q, ok := e.quotes[symbol]
	if !ok {
		return model.Position{}, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}
	if e.spreadTooWide(q) {
		return model.Position{}, fmt.Errorf("%w: %s %.1f pips", ErrSpreadTooWide, symbol, model.PriceToPips(symbol, q.Spread()))
	}

	delete(e.pendingSignals, symbol)
	sig := ps.Signal
	sig.Reason = "confirmed: " + sig.Reason
	return e.open(ctx, sig, q, now, model.ActionOpen), nil
}

// ClosePosition closes a position on operator request.
func (e *Engine) ClosePosition(ctx context.Context, id string, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, closing := e.pendingCloses[id]; closing {
		return fmt.Errorf("%w: %s", ErrCloseInProgress, id)
	}
	for _, pos := range e.store.OpenPositions() {
		if pos.ID != id {
			continue
		}
		tr := e.trackers.Ensure(pos, e.fallbackLevels(pos.Symbol))
		if reason == "" {
			reason = "closed manually"
		}
		e.closePosition(ctx, pos, tr, e.priceOf(pos), model.ActionManualClose, reason, e.now())
		return nil
	}
	return fmt.Errorf("%w: %s", ErrPositionNotFound, id)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.LogEntry) {}
