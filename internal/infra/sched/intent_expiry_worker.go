package sched

import (
	"context"
	"time"

	"coupon-payments/internal/infra/metrics"

	"github.com/rs/zerolog"
)

type IntentExpirer interface {
	ExpireAbandoned(ctx context.Context, now time.Time) (int, error)
}

// IntentExpiryWorker fails open intents whose TTL passed with EXPIRED.
type IntentExpiryWorker struct {
	interval time.Duration
	uc       IntentExpirer
	now      func() time.Time
	log      *zerolog.Logger
}

func NewIntentExpiryWorker(interval time.Duration, uc IntentExpirer, logger *zerolog.Logger) *IntentExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "IntentExpiryWorker").Logger()
	return &IntentExpiryWorker{interval: interval, uc: uc, now: time.Now, log: &l}
}

func (w *IntentExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting intent expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping intent expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *IntentExpiryWorker) tick(ctx context.Context) {
	n, err := w.uc.ExpireAbandoned(ctx, w.now())
	if err != nil {
		w.log.Error().Err(err).Msg("intent expiry sweep failed")
	}
	if n > 0 {
		metrics.AddSwept("expired", n)
		w.log.Info().Int("count", n).Msg("abandoned intents expired")
	}
}
