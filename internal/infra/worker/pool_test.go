//go:build !integration

package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"coupon-payments/internal/domain/model"
	"coupon-payments/internal/domain/ports/adapter"
)

func newLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func TestPool(t *testing.T) {
	t.Run("should run every queued task before Stop returns", func(t *testing.T) {
		p := NewPool(2, 16, newLogger())
		p.Start(context.Background())
		var ran int32
		for i := 0; i < 10; i++ {
			if err := p.Submit(func(context.Context) error {
				atomic.AddInt32(&ran, 1)
				return nil
			}); err != nil {
				t.Fatalf("submit: %v", err)
			}
		}
		p.Stop()
		if ran != 10 {
			t.Fatalf("ran %d tasks", ran)
		}
		if err := p.Submit(func(context.Context) error { return nil }); !errors.Is(err, ErrStopped) {
			t.Errorf("expected ErrStopped, got %v", err)
		}
		p.Stop()
	})

	t.Run("should drop tasks when saturated", func(t *testing.T) {
		p := NewPool(1, 1, newLogger())
		block := make(chan struct{})
		started := make(chan struct{})
		p.Start(context.Background())
		_ = p.Submit(func(context.Context) error {
			close(started)
			<-block
			return nil
		})
		<-started
		if err := p.Submit(func(context.Context) error { return nil }); err != nil {
			t.Fatalf("queue slot should be free: %v", err)
		}
		if err := p.Submit(func(context.Context) error { return nil }); !errors.Is(err, ErrQueueFull) {
			t.Errorf("expected ErrQueueFull, got %v", err)
		}
		close(block)
		p.Stop()
	})
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []adapter.IntentEvent
}

func (r *recordingPublisher) PublishIntentEvent(ctx context.Context, ev adapter.IntentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func TestAsyncPublisher_OutlivesRequestContext(t *testing.T) {
	p := NewPool(1, 4, newLogger())
	p.Start(context.Background())
	rec := &recordingPublisher{}
	pub := NewAsyncPublisher(p, rec)

	ctx, cancel := context.WithCancel(context.Background())
	if err := pub.PublishIntentEvent(ctx, adapter.IntentEvent{IntentID: "1", Status: model.StatusSuccess}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	cancel()
	p.Stop()

	if len(rec.events) != 1 || rec.events[0].IntentID != "1" {
		t.Fatalf("events = %+v", rec.events)
	}
}
