// Package notify forwards autotrade journal entries to subscribers.
package notify

import (
	"context"
	"encoding/json"
	"strings"

	"fx-autotrader/internal/infrastructure"
	"fx-autotrader/internal/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// AsyncPublisher is the slice of nats.JetStreamContext the notifier needs.
type AsyncPublisher interface {
	PublishAsync(subj string, data []byte, opts ...nats.PubOpt) (nats.PubAckFuture, error)
}

// NATSNotifier publishes each entry to autotrade.event.<action> without
// waiting for the stream to acknowledge it.
type NATSNotifier struct {
	js     AsyncPublisher
	logger *zap.Logger
}

func NewNATSNotifier(js AsyncPublisher, logger *zap.Logger) *NATSNotifier {
	return &NATSNotifier{js: js, logger: logger}
}

func Subject(action model.LogAction) string {
	return infrastructure.SubjectEvent + strings.ToLower(string(action))
}

func (n *NATSNotifier) Notify(_ context.Context, entry model.LogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		n.logger.Error("failed to marshal log entry", zap.Error(err))
		return
	}
	if _, err := n.js.PublishAsync(Subject(entry.Action), data); err != nil {
		n.logger.Warn("failed to publish autotrade event", zap.String("action", string(entry.Action)), zap.Error(err))
	}
}

// Nop drops every entry.
type Nop struct{}

func (Nop) Notify(context.Context, model.LogEntry) {}
