package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// WorkerPool executes intents against the broker off the tick goroutine.
type WorkerPool struct {
	jobQueue    chan Intent
	workerCount int
	broker      Broker
	timeout     time.Duration
	logger      *zap.Logger
}

func NewWorkerPool(workerCount int, bufferSize int, broker Broker, logger *zap.Logger) *WorkerPool {
	return &WorkerPool{
		jobQueue:    make(chan Intent, bufferSize),
		workerCount: workerCount,
		broker:      broker,
		timeout:     10 * time.Second,
		logger:      logger,
	}
}

func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(ctx, i)
	}
	p.logger.Info("started worker pool", zap.Int("workers", p.workerCount))
}

// Submit queues the intent; a full queue drops it with a warning rather than
// blocking the tick.
func (p *WorkerPool) Submit(intent Intent) {
	select {
	case p.jobQueue <- intent:
	default:
		p.logger.Warn("worker pool job queue full, dropping intent",
			zap.String("kind", string(intent.Kind)),
			zap.String("position_id", intent.PositionID),
		)
	}
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case intent, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.process(ctx, id, intent)
		}
	}
}

func (p *WorkerPool) process(ctx context.Context, workerID int, intent Intent) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := execute(callCtx, p.broker, intent, p.logger); err == nil {
		p.logger.Debug("intent executed",
			zap.Int("worker_id", workerID),
			zap.String("kind", string(intent.Kind)),
			zap.String("position_id", intent.PositionID),
		)
	}
}
