package usecase

import (
	"context"
	"sync"
	"time"

	"coupon-payments/internal/domain"
	"coupon-payments/internal/domain/model"
	"coupon-payments/internal/domain/ports/adapter"
	"coupon-payments/internal/infra/metrics"

	"github.com/rs/zerolog"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollDeadline = 10 * time.Minute
)

type pollerState int

const (
	pollerIdle pollerState = iota
	pollerRunning
	pollerStopped
)

type PollOptions struct {
	Interval    time.Duration
	MaxDuration time.Duration
	// OnUpdate receives every non-terminal status. It must not call Cancel.
	OnUpdate func(model.TransactionStatus)
	// OnTerminal fires exactly once with SUCCESS or FAILED. It must not call Cancel either.
	OnTerminal func(adapter.StatusResult)
	Clock      Clock
	Logger     *zerolog.Logger
	Provider   model.ProviderKind // metrics label only
}

// Poller checks one provider transaction on an interval until it is terminal,
// cancelled, or the deadline passes. Checks never overlap: the next timer is
// armed only after the previous check returned.
type Poller struct {
	checker adapter.StatusChecker
	txID    string
	opts    PollOptions
	log     *zerolog.Logger

	mu       sync.Mutex
	state    pollerState
	timer    Timer
	deadline time.Time
	cancel   context.CancelFunc

	// deliverMu is held while a check result is delivered; Cancel takes it to
	// wait out an in-flight delivery.
	deliverMu sync.Mutex
}

func NewPoller(checker adapter.StatusChecker, providerTxID string, opts PollOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultPollDeadline
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	l := opts.Logger.With().Str("component", "poller").Str("provider_tx", providerTxID).Logger()
	return &Poller{checker: checker, txID: providerTxID, opts: opts, log: &l}
}

// Start schedules the first check immediately. Calling it twice is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != pollerIdle {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.state = pollerRunning
	p.deadline = p.opts.Clock.Now().Add(p.opts.MaxDuration)
	p.timer = p.opts.Clock.AfterFunc(0, func() { p.tick(ctx) })
}

// Cancel stops the poller. When it returns no callback is running and none will fire.
// It is idempotent and must not be called from OnUpdate.
func (p *Poller) Cancel() {
	p.mu.Lock()
	p.stopLocked()
	p.mu.Unlock()

	// wait for an in-flight delivery to finish
	p.deliverMu.Lock()
	p.deliverMu.Unlock() //nolint:staticcheck

}

// Running reports whether the poller is still active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == pollerRunning
}

func (p *Poller) stopLocked() {
	if p.state == pollerStopped {
		return
	}
	p.state = pollerStopped
	if p.timer != nil {
		p.timer.Stop()
	}
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Poller) tick(ctx context.Context) {
	p.mu.Lock()
	if p.state != pollerRunning {
		p.mu.Unlock()
		return
	}
	expired := !p.opts.Clock.Now().Before(p.deadline)
	p.mu.Unlock()

	var res adapter.StatusResult
	if expired {
		res = adapter.StatusResult{Status: model.StatusFailed, Code: domain.CodeTimeout, ResultDescription: "payment was not completed in time"}
	} else {
		res = p.checker.CheckStatus(ctx, p.txID)
	}

	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.Lock()
	if p.state != pollerRunning {
		p.mu.Unlock()
		return
	}
	switch {
	case res.Err != nil || !res.Status.Valid():
		metrics.IncPollCheck(string(p.opts.Provider), "error")
		p.log.Debug().Err(res.Err).Msg("status check failed; retrying")
		p.timer = p.opts.Clock.AfterFunc(p.opts.Interval, func() { p.tick(ctx) })
		p.mu.Unlock()
	case res.Status.IsTerminal():
		metrics.IncPollCheck(string(p.opts.Provider), "terminal")
		p.stopLocked()
		p.mu.Unlock()
		if p.opts.OnTerminal != nil {
			p.opts.OnTerminal(res)
		}
	default:
		metrics.IncPollCheck(string(p.opts.Provider), "open")
		p.timer = p.opts.Clock.AfterFunc(p.opts.Interval, func() { p.tick(ctx) })
		p.mu.Unlock()
		if p.opts.OnUpdate != nil {
			p.opts.OnUpdate(res.Status)
		}
	}
}
