// Package feed supplies the per-tick quote snapshot the engine consumes.
package feed

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"fx-autotrader/internal/infrastructure"
	"fx-autotrader/internal/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Feed returns the latest quote of every known symbol.
type Feed interface {
	Snapshot(ctx context.Context) ([]model.Quote, error)
}

// Subscriber is the slice of nats.JetStreamContext NATSFeed needs.
type Subscriber interface {
	Subscribe(subj string, cb nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error)
}

// NATSFeed keeps the newest quote per symbol seen on market.tick.*.
type NATSFeed struct {
	js     Subscriber
	logger *zap.Logger
	mu     sync.RWMutex
	latest map[string]model.Quote
	sub    *nats.Subscription
}

func NewNATSFeed(js Subscriber, logger *zap.Logger) *NATSFeed {
	return &NATSFeed{
		js:     js,
		logger: logger,
		latest: make(map[string]model.Quote),
	}
}

// Start subscribes to the tick stream, delivering only new messages.
func (f *NATSFeed) Start() error {
	sub, err := f.js.Subscribe(infrastructure.SubjectTick+"*", f.handle, nats.DeliverNew(), nats.AckNone())
	if err != nil {
		return err
	}
	f.sub = sub
	f.logger.Info("subscribed to quote ticks", zap.String("subject", infrastructure.SubjectTick+"*"))
	return nil
}

func (f *NATSFeed) Stop() {
	if f.sub != nil {
		_ = f.sub.Unsubscribe()
	}
}

func (f *NATSFeed) handle(m *nats.Msg) {
	var q model.Quote
	if err := json.Unmarshal(m.Data, &q); err != nil {
		f.logger.Error("failed to unmarshal quote", zap.Error(err))
		return
	}
	q.Symbol = model.NormalizeSymbol(q.Symbol)
	if q.Symbol == "" || q.Bid <= 0 || q.Ask <= 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if prev, ok := f.latest[q.Symbol]; ok && q.TickTime.Before(prev.TickTime) {
		return
	}
	f.latest[q.Symbol] = q
}

func (f *NATSFeed) Snapshot(context.Context) ([]model.Quote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]model.Quote, 0, len(f.latest))
	for _, q := range f.latest {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}
