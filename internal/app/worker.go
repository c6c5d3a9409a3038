package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fx-autotrader/internal/feed"
	"fx-autotrader/internal/infrastructure"
	"fx-autotrader/internal/model"

	"go.uber.org/zap"
)

// runTickLoop drives the engine from the price feed until ctx is done.
func (a *App) runTickLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.Logger.Info("tick loop started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tickOnce(ctx)
		}
	}
}

// tickOnce pulls one snapshot, marks the paper book and runs the engine.
func (a *App) tickOnce(ctx context.Context) {
	quotes, err := a.Feed.Snapshot(ctx)
	if err != nil {
		a.Logger.Error("failed to read price snapshot", zap.Error(err))
		return
	}
	if len(quotes) == 0 {
		a.Logger.Debug("empty price snapshot")
		return
	}

	// Simulated quotes are not on the bus yet; stream quotes already are.
	if _, sim := a.Feed.(*feed.Simulator); sim && a.JS != nil {
		a.publishQuotes(quotes)
	}

	a.Paper.UpdatePrices(quotes)
	a.Engine.Tick(ctx, quotes)
}

func (a *App) publishQuotes(quotes []model.Quote) {
	for _, q := range quotes {
		data, err := json.Marshal(q)
		if err != nil {
			a.Logger.Error("failed to marshal quote", zap.Error(err))
			continue
		}
		if _, err := a.JS.PublishAsync(infrastructure.SubjectTick+q.Symbol, data); err != nil {
			a.Logger.Error("failed to publish to NATS", zap.String("symbol", q.Symbol), zap.Error(err))
			continue
		}
		infrastructure.QuoteIngestRate.WithLabelValues(q.Symbol).Inc()
	}
}

// startPersistenceService runs the batch savers and snapshots engine state to
// the store on a fixed interval.
func (a *App) startPersistenceService(ctx context.Context) {
	if a.TradeSaver != nil {
		a.goRun(func() { a.TradeSaver.Run(ctx) })
	}
	if a.CandleSaver != nil {
		a.goRun(func() { a.CandleSaver.Run(ctx) })
	}

	a.goRun(func() {
		ticker := time.NewTicker(a.Config.PersistInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := a.persist(ctx); err != nil {
					a.Logger.Error("failed to persist engine state", zap.Error(err))
				}
			}
		}
	})
}

// persist writes config, trade log and risk state to the store.
func (a *App) persist(ctx context.Context) error {
	var errs []error
	if err := a.Store.SaveConfig(ctx, a.Engine.Config()); err != nil {
		errs = append(errs, fmt.Errorf("failed to save config: %w", err))
	}
	if err := a.Store.SaveLogs(ctx, a.Engine.Logs()); err != nil {
		errs = append(errs, fmt.Errorf("failed to save logs: %w", err))
	}
	if err := a.Store.SaveRiskState(ctx, a.Engine.RiskState()); err != nil {
		errs = append(errs, fmt.Errorf("failed to save risk state: %w", err))
	}
	return errors.Join(errs...)
}
