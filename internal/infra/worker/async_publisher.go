package worker

import (
	"context"
	"time"

	"coupon-payments/internal/domain/ports/adapter"
)

var _ adapter.EventPublisher = (*AsyncPublisher)(nil)

const publishTimeout = 10 * time.Second

// AsyncPublisher hands events to the pool so the terminal transition never waits on the broker.
type AsyncPublisher struct {
	pool *Pool
	next adapter.EventPublisher
}

func NewAsyncPublisher(pool *Pool, next adapter.EventPublisher) *AsyncPublisher {
	return &AsyncPublisher{pool: pool, next: next}
}

// PublishIntentEvent only reports queueing errors; delivery errors are logged by the pool.
func (a *AsyncPublisher) PublishIntentEvent(ctx context.Context, ev adapter.IntentEvent) error {
	base := context.WithoutCancel(ctx)
	return a.pool.Submit(func(context.Context) error {
		ctx, cancel := context.WithTimeout(base, publishTimeout)
		defer cancel()
		return a.next.PublishIntentEvent(ctx, ev)
	})
}
