package engine

import (
	"context"
	"time"

	"fx-autotrader/internal/infrastructure"
	"fx-autotrader/internal/model"

	"go.uber.org/zap"
)

type IntentKind string

const (
	IntentOpen         IntentKind = "open"
	IntentClose        IntentKind = "close"
	IntentPartialClose IntentKind = "partial_close"
)

// Intent is an order or close request the engine has already applied to its
// own state. Executing it against the broker happens outside the tick.
type Intent struct {
	Kind       IntentKind     `json:"kind"`
	Position   model.Position `json:"position"`
	PositionID string         `json:"position_id"`
	Volume     float64        `json:"volume,omitempty"` // lots to take off for a partial close
	Reason     string         `json:"reason"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Executor accepts intents without blocking the caller.
type Executor interface {
	Submit(intent Intent)
}

// Broker is the execution venue intents are applied to.
type Broker interface {
	PlaceOrder(ctx context.Context, pos model.Position) (model.Position, error)
	ClosePosition(ctx context.Context, id string, reason string) (model.ClosedTrade, error)
	ReducePosition(ctx context.Context, id string, volume float64, reason string) (model.ClosedTrade, error)
}

// execute applies one intent. Failures are logged and counted; the engine's
// local state is never rolled back.
func execute(ctx context.Context, broker Broker, intent Intent, logger *zap.Logger) error {
	var err error
	switch intent.Kind {
	case IntentOpen:
		_, err = broker.PlaceOrder(ctx, intent.Position)
		if err != nil {
			logger.Error("failed to place order",
				zap.String("position_id", intent.Position.ID),
				zap.String("symbol", intent.Position.Symbol),
				zap.Error(err),
			)
		}
	case IntentClose:
		_, err = broker.ClosePosition(ctx, intent.PositionID, intent.Reason)
		if err != nil {
			logger.Error("failed to close position",
				zap.String("position_id", intent.PositionID),
				zap.String("reason", intent.Reason),
				zap.Error(err),
			)
		}
	case IntentPartialClose:
		_, err = broker.ReducePosition(ctx, intent.PositionID, intent.Volume, intent.Reason)
		if err != nil {
			logger.Error("failed to reduce position",
				zap.String("position_id", intent.PositionID),
				zap.Float64("volume", intent.Volume),
				zap.Error(err),
			)
		}
	default:
		logger.Warn("unknown intent kind", zap.String("kind", string(intent.Kind)))
		return nil
	}
	if err != nil {
		infrastructure.IntentFailures.WithLabelValues(string(intent.Kind)).Inc()
	}
	return err
}

// SyncExecutor applies intents inline. The backtester and tests use it so a
// tick's intents are visible to the next tick.
type SyncExecutor struct {
	broker Broker
	logger *zap.Logger
}

func NewSyncExecutor(broker Broker, logger *zap.Logger) *SyncExecutor {
	return &SyncExecutor{broker: broker, logger: logger}
}

func (s *SyncExecutor) Submit(intent Intent) {
	_ = execute(context.Background(), s.broker, intent, s.logger)
}
