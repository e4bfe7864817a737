package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mohammedemad618/amir-sub000/pkg/logger"
	"github.com/mohammedemad618/amir-sub000/pkg/metrics"
)

const publishTimeout = 5 * time.Second

// Emitter publishes best-effort: failures are logged and counted, never returned
type Emitter struct {
	publisher Publisher
	logger    *zap.Logger
}

// NewEmitter wraps p; a nil p drops events
func NewEmitter(p Publisher, log *zap.Logger) *Emitter {
	if p == nil {
		p = NopPublisher{}
	}
	return &Emitter{publisher: p, logger: logger.OrNop(log)}
}

// Emit publishes payload under key, detached from the caller's cancellation
func (e *Emitter) Emit(ctx context.Context, key string, payload any) {
	if e == nil {
		return
	}
	if _, ok := e.publisher.(NopPublisher); ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := e.publisher.Publish(ctx, key, payload); err != nil {
		metrics.RecordEvent(key, "error")
		e.logger.Warn("Failed to publish event", zap.String("key", key), zap.Error(err))
		return
	}
	metrics.RecordEvent(key, "ok")
}
