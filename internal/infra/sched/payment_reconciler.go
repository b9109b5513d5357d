package sched

import (
	"context"
	"time"

	"coupon-payments/internal/infra/metrics"

	"github.com/rs/zerolog"
)

type Reconciler interface {
	RetryPendingCommits(ctx context.Context) (int, error)
	ResumeWatches(ctx context.Context) (int, error)
}

// PaymentReconciler covers the cases where the process crashed or the backend
// was down mid-flow: SUCCESS intents without a commit get it retried, and open
// QR intents get a watcher again. The first pass runs right at start.
type PaymentReconciler struct {
	uc       Reconciler
	interval time.Duration
	log      *zerolog.Logger
}

func NewPaymentReconciler(uc Reconciler, interval time.Duration, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{uc: uc, interval: interval, log: &l}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting payment reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	n, err := w.uc.RetryPendingCommits(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("commit retry failed")
	}
	if n > 0 {
		metrics.AddSwept("commit_retried", n)
		w.log.Info().Int("count", n).Msg("pending commits retried")
	}

	n, err = w.uc.ResumeWatches(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("resume watches failed")
	}
	if n > 0 {
		metrics.AddSwept("watch_resumed", n)
		w.log.Info().Int("count", n).Msg("watches resumed")
	}
}
