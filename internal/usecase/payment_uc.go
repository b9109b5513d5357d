package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"coupon-payments/internal/domain"
	"coupon-payments/internal/domain/model"
	"coupon-payments/internal/domain/ports/adapter"
	"coupon-payments/internal/domain/ports/repository"
	"coupon-payments/internal/infra/logging"
	"coupon-payments/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ PaymentUseCase = (*PaymentUC)(nil)

type PaymentUseCase interface {
	// Initiate validates the intent, asks the provider to start it and remembers
	// it in the session for the return leg.
	Initiate(ctx context.Context, req InitiateRequest, sess repository.SessionStore) (*InitiateResult, error)
	// Resume continues an intent when the provider sends the browser back.
	Resume(ctx context.Context, p ReturnParams, sess repository.SessionStore) (*Outcome, error)
	// CheckStatus is one client-driven poll tick.
	CheckStatus(ctx context.Context, intentID, userID string) (*model.PurchaseIntent, error)
	// Watch polls the provider server-side until the intent is terminal.
	Watch(ctx context.Context, intentID string) (func(), error)
	HandleCardWebhook(ctx context.Context, p model.CardWebhookPayload) error
	ExpireAbandoned(ctx context.Context, now time.Time) (int, error)
	RetryPendingCommits(ctx context.Context) (int, error)
	ResumeWatches(ctx context.Context) (int, error)
}

// ProviderRegistry is the closed set of configured providers.
type ProviderRegistry interface {
	Get(kind model.ProviderKind) (adapter.ProviderAdapter, bool)
	Checker(kind model.ProviderKind) (adapter.StatusChecker, bool)
}

type InitiateRequest struct {
	IntentID  string // optional; generated when empty
	UserID    string
	PlanID    string // empty => payment-method registration only
	Provider  model.ProviderKind
	Amount    model.Money
	UserAgent string
}

type InitiateResult struct {
	IntentID       string                  `json:"intentId"`
	Status         model.TransactionStatus `json:"status"`
	Amount         model.Money             `json:"amount"`
	RedirectTarget string                  `json:"redirectTarget,omitempty"`
	Method         string                  `json:"method,omitempty"`
	HTMLFragment   string                  `json:"htmlFragment,omitempty"`
	QRTarget       string                  `json:"qrTarget,omitempty"`
	Code           string                  `json:"code,omitempty"`
	Message        string                  `json:"message,omitempty"`
}

// ReturnParams is what a provider appends to the return URL.
type ReturnParams struct {
	Outcome  string // success | failure | cancel
	IntentID string
	Status   string
	Code     string
}

// Outcome is the user-facing result of a resumed intent.
type Outcome struct {
	IntentID string
	PlanID   string
	Provider model.ProviderKind
	Status   model.TransactionStatus
	Code     string
	Message  string
	// Alternatives are the other providers a failed purchase can be retried with.
	Alternatives []model.ProviderKind
}

// SessionIntent is the paymentIntent session field, the only state carried
// across the provider redirect.
type SessionIntent struct {
	IntentID              string             `json:"intentId"`
	UserID                string             `json:"userId"`
	PlanID                string             `json:"planId,omitempty"`
	Provider              model.ProviderKind `json:"providerKind"`
	Amount                model.Money        `json:"amount"`
	ProviderTransactionID string             `json:"providerTransactionId,omitempty"`
	CreatedAt             time.Time          `json:"createdAt"`
}

type PaymentOptions struct {
	PublicOrigin      string
	ReturnPath        string
	IntentTTL         time.Duration
	InitiationTimeout time.Duration
	PollInterval      time.Duration
	PollDeadline      time.Duration
	CommitDelay       time.Duration
	ReplayTTL         time.Duration
	BatchSize         int
}

func (o *PaymentOptions) defaults() {
	if o.ReturnPath == "" {
		o.ReturnPath = "/api/v1/payments/return"
	}
	if o.IntentTTL <= 0 {
		o.IntentTTL = 30 * time.Minute
	}
	if o.InitiationTimeout <= 0 {
		o.InitiationTimeout = 20 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.PollDeadline <= 0 {
		o.PollDeadline = DefaultPollDeadline
	}
	if o.CommitDelay < 0 {
		o.CommitDelay = 0
	}
	if o.ReplayTTL <= 0 {
		o.ReplayTTL = 24 * time.Hour
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
}

// PaymentDeps are the collaborators of the orchestrator. Discounts, Events,
// Replay, WatchLock and Tx are optional.
type PaymentDeps struct {
	Intents   repository.IntentRepository
	Tx        repository.TransactionManager
	Providers ProviderRegistry
	Committer adapter.Committer
	Discounts adapter.DiscountPolicy
	Events    adapter.EventPublisher
	Replay    repository.ReplayGuard
	WatchLock repository.WatchLock
	Clock     Clock
}

// PaymentUC orchestrates one purchase across the redirect, the poller and the webhook.
type PaymentUC struct {
	PaymentDeps
	opts PaymentOptions
	log  *zerolog.Logger

	mu       sync.Mutex
	watchers map[string]*watch
}

type watch struct {
	poller *Poller
	token  string
}

func NewPaymentUseCase(deps PaymentDeps, opts PaymentOptions, logger *zerolog.Logger) *PaymentUC {
	opts.defaults()
	if deps.Clock == nil {
		deps.Clock = RealClock{}
	}
	if deps.Tx == nil {
		deps.Tx = noTxManager{}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "payment_uc").Logger()
	return &PaymentUC{PaymentDeps: deps, opts: opts, log: &l, watchers: make(map[string]*watch)}
}

// noTxManager runs fn without a transaction.
type noTxManager struct{}

func (noTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

func (u *PaymentUC) Initiate(ctx context.Context, req InitiateRequest, sess repository.SessionStore) (*InitiateResult, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Initiate")()

	if req.IntentID == "" {
		req.IntentID = NewIntentID(u.Clock.Now())
	}
	intent, err := model.NewPurchaseIntent(req.IntentID, req.UserID, req.PlanID, req.Provider, req.Amount, u.opts.PublicOrigin, u.opts.IntentTTL)
	if err != nil {
		return nil, err
	}
	provider, ok := u.Providers.Get(intent.Provider)
	if !ok {
		return nil, domain.NewValidationError(domain.CodeInvalidProvider, "provider is not available")
	}
	log := logging.With(logging.WithProvider(logging.WithIntentID(ctx, intent.ID), string(intent.Provider)), u.log)

	if intent.HasPlan() && u.Discounts != nil {
		price, err := u.Discounts.LinkedAccountPrice(ctx, intent.UserID, intent.PlanID, intent.ListAmount)
		if err != nil {
			return nil, domain.NewTransientError("could not determine the price", err)
		}
		if price != nil {
			if err := intent.ApplyDiscount(*price); err != nil {
				return nil, err
			}
			log.Debug().Int64("list", intent.ListAmount.Value).Int64("discounted", price.Value).Msg("linked account discount applied")
		}
	}

	urls, err := BuildCallbackURLs(u.opts.ReturnPath, intent)
	if err != nil {
		return nil, err
	}
	if err := u.Intents.Save(ctx, repository.NoTX, intent); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, domain.NewValidationError(domain.CodeInvalidIntent, "intent id is already in use")
		}
		return nil, err
	}
	metrics.IncIntentInitiated(string(intent.Provider))

	callCtx, cancel := context.WithTimeout(adapter.WithUserAgent(ctx, req.UserAgent), u.opts.InitiationTimeout)
	res := provider.Initiate(callCtx, intent, urls)
	cancel()

	out := &InitiateResult{
		IntentID:       intent.ID,
		Status:         res.Status,
		Amount:         intent.Amount,
		RedirectTarget: res.RedirectTarget,
		Method:         res.Method,
		HTMLFragment:   res.HTMLFragment,
		QRTarget:       res.QRTarget,
		Code:           res.Code,
		Message:        res.Message,
	}

	switch {
	case res.Status == model.StatusFailed || !res.Status.Valid():
		code, msg := res.Code, res.Message
		if code == "" {
			code = domain.CodeProviderError
		}
		intent.ProviderTransactionID = res.ProviderTransactionID
		if _, err := u.finish(ctx, intent, model.StatusFailed, code, msg, 0); err != nil {
			return nil, err
		}
		out.Status, out.Code = model.StatusFailed, code
		log.Info().Str("code", code).Msg("initiation failed")
		if res.Err != nil {
			return out, res.Err
		}
		return out, domain.NewDeclineError(code, msg)

	case res.Status == model.StatusSuccess:
		intent.ProviderTransactionID = res.ProviderTransactionID
		if err := u.Intents.UpdateProgress(ctx, repository.NoTX, intent.ID, model.StatusPending, res.ProviderTransactionID, res.ProviderCustomerID); err != nil {
			return nil, err
		}
		if _, err := u.finish(ctx, intent, model.StatusSuccess, "", "", 0); err != nil {
			return nil, err
		}
		log.Info().Msg("provider completed the payment immediately")
		return out, nil
	}

	if err := u.Intents.UpdateProgress(ctx, repository.NoTX, intent.ID, res.Status, res.ProviderTransactionID, res.ProviderCustomerID); err != nil {
		return nil, err
	}
	if err := sess.Set(repository.SessionPaymentIntent, SessionIntent{
		IntentID:              intent.ID,
		UserID:                intent.UserID,
		PlanID:                intent.PlanID,
		Provider:              intent.Provider,
		Amount:                intent.Amount,
		ProviderTransactionID: res.ProviderTransactionID,
		CreatedAt:             intent.CreatedAt,
	}); err != nil {
		return nil, err
	}
	if intent.Provider == model.ProviderWalletQR {
		if _, err := u.Watch(ctx, intent.ID); err != nil {
			log.Warn().Err(err).Msg("could not start watcher; client polling still works")
		}
	}
	log.Info().Str("status", string(res.Status)).Msg("intent initiated")
	return out, nil
}

func (u *PaymentUC) Resume(ctx context.Context, p ReturnParams, sess repository.SessionStore) (*Outcome, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Resume")()

	var si SessionIntent
	if !sess.Get(repository.SessionPaymentIntent, &si) || si.IntentID == "" {
		return nil, domain.NewCorrelationError(domain.CodeSessionExpired, "payment session expired")
	}
	if p.IntentID != "" && p.IntentID != si.IntentID {
		return nil, domain.NewCorrelationError(domain.CodeIntentNotFound, "return does not match the pending payment")
	}
	intent, err := u.Intents.FindByID(ctx, repository.NoTX, si.IntentID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && intent.UserID != si.UserID) {
		_ = sess.Remove(repository.SessionPaymentIntent)
		return nil, domain.NewCorrelationError(domain.CodeIntentNotFound, "payment not found")
	}
	if err != nil {
		return nil, err
	}
	log := logging.With(logging.WithIntentID(ctx, intent.ID), u.log)

	if !intent.IsTerminal() {
		if err := u.resolveReturn(ctx, intent, p); err != nil {
			return nil, err
		}
	}
	if intent.IsTerminal() {
		if err := sess.Remove(repository.SessionPaymentIntent); err != nil {
			log.Warn().Err(err).Msg("could not clear payment session")
		}
	}
	log.Info().Str("outcome", p.Outcome).Str("status", string(intent.Status)).Msg("payment resumed")
	return u.outcome(intent), nil
}

// resolveReturn advances intent from the return leg. Providers with a status
// lookup are asked. A success return from a webhook-confirmed provider only
// marks progress; its signed webhook finalizes the intent.
func (u *PaymentUC) resolveReturn(ctx context.Context, intent *model.PurchaseIntent, p ReturnParams) error {
	provider, _ := u.Providers.Get(intent.Provider)

	if checker, ok := u.Providers.Checker(intent.Provider); ok && intent.ProviderTransactionID != "" {
		res := checker.CheckStatus(ctx, intent.ProviderTransactionID)
		switch {
		case res.Err != nil || !res.Status.Valid():
			// keep the intent open; the status page keeps polling
			return nil
		case res.Status.IsTerminal():
			_, err := u.finish(ctx, intent, res.Status, res.Code, res.ResultDescription, 0)
			return err
		case p.Outcome == OutcomeCancel:
			_, err := u.finish(ctx, intent, model.StatusFailed, domain.CodeCancelled, "payment cancelled", 0)
			return err
		default:
			return u.progress(ctx, intent, res.Status)
		}
	}

	switch p.Outcome {
	case OutcomeSuccess:
		if _, ok := provider.(adapter.WebhookVerifier); ok {
			return u.progress(ctx, intent, model.StatusProcessing)
		}
		_, err := u.finish(ctx, intent, model.StatusSuccess, "", "", 0)
		return err
	case OutcomeCancel:
		_, err := u.finish(ctx, intent, model.StatusFailed, domain.CodeCancelled, "payment cancelled", 0)
		return err
	default:
		code := domain.CodeDeclined
		if t, ok := provider.(adapter.ReturnCodeTranslator); ok && p.Code != "" {
			code = t.TranslateReturnCode(p.Code)
		}
		_, err := u.finish(ctx, intent, model.StatusFailed, code, "", 0)
		return err
	}
}

func (u *PaymentUC) outcome(intent *model.PurchaseIntent) *Outcome {
	o := &Outcome{
		IntentID: intent.ID,
		PlanID:   intent.PlanID,
		Provider: intent.Provider,
		Status:   intent.Status,
		Code:     intent.FailureCode,
		Message:  intent.FailureMessage,
	}
	if intent.Status == model.StatusFailed {
		for _, k := range []model.ProviderKind{model.ProviderCardRedirect, model.ProviderWalletRedirect, model.ProviderWalletQR} {
			if _, ok := u.Providers.Get(k); ok && k != intent.Provider {
				o.Alternatives = append(o.Alternatives, k)
			}
		}
	}
	return o
}

func (u *PaymentUC) CheckStatus(ctx context.Context, intentID, userID string) (*model.PurchaseIntent, error) {
	intent, err := u.Intents.FindByID(ctx, repository.NoTX, intentID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && intent.UserID != userID) {
		return nil, domain.NewCorrelationError(domain.CodeIntentNotFound, "payment not found")
	}
	if err != nil {
		return nil, err
	}
	if intent.IsTerminal() || intent.ProviderTransactionID == "" {
		return intent, nil
	}
	checker, ok := u.Providers.Checker(intent.Provider)
	if !ok {
		return intent, nil
	}
	res := checker.CheckStatus(ctx, intent.ProviderTransactionID)
	switch {
	case res.Err != nil || !res.Status.Valid():
		metrics.IncPollCheck(string(intent.Provider), "error")
	case res.Status.IsTerminal():
		metrics.IncPollCheck(string(intent.Provider), "terminal")
		if _, err := u.finish(ctx, intent, res.Status, res.Code, res.ResultDescription, 0); err != nil {
			return nil, err
		}
	default:
		metrics.IncPollCheck(string(intent.Provider), "open")
		if err := u.progress(ctx, intent, res.Status); err != nil {
			return nil, err
		}
	}
	return intent, nil
}

func (u *PaymentUC) Watch(ctx context.Context, intentID string) (func(), error) {
	intent, err := u.Intents.FindByID(ctx, repository.NoTX, intentID)
	if err != nil {
		return nil, err
	}
	if intent.IsTerminal() {
		return func() {}, nil
	}
	checker, ok := u.Providers.Checker(intent.Provider)
	if !ok || intent.ProviderTransactionID == "" {
		return nil, domain.NewValidationError(domain.CodeInvalidProvider, "provider has no status lookup")
	}

	u.mu.Lock()
	if w, ok := u.watchers[intentID]; ok {
		u.mu.Unlock()
		return u.stopper(context.WithoutCancel(ctx), intentID, w), nil
	}
	u.mu.Unlock()

	var token string
	if u.WatchLock != nil {
		tok, ok, err := u.WatchLock.TryLock(ctx, "watch:"+intentID, u.opts.PollDeadline+time.Minute)
		if err != nil {
			return nil, err
		}
		if !ok {
			// another replica is polling this transaction
			return func() {}, nil
		}
		token = tok
	}

	log := logging.With(logging.WithIntentID(ctx, intentID), u.log)
	base := context.WithoutCancel(ctx)
	w := &watch{token: token}
	w.poller = NewPoller(checker, intent.ProviderTransactionID, PollOptions{
		Interval:    u.opts.PollInterval,
		MaxDuration: u.opts.PollDeadline,
		Clock:       u.Clock,
		Logger:      log,
		Provider:    intent.Provider,
		OnUpdate: func(s model.TransactionStatus) {
			if err := u.progress(base, intent, s); err != nil {
				log.Warn().Err(err).Msg("could not record progress")
			}
		},
		OnTerminal: func(res adapter.StatusResult) {
			u.release(base, intentID, w)
			if _, err := u.finish(base, intent, res.Status, res.Code, res.ResultDescription, u.opts.CommitDelay); err != nil {
				log.Error().Err(err).Msg("could not finalize watched intent")
			}
		},
	})

	u.mu.Lock()
	if existing, ok := u.watchers[intentID]; ok {
		u.mu.Unlock()
		u.unlock(base, intentID, token)
		return u.stopper(base, intentID, existing), nil
	}
	u.watchers[intentID] = w
	u.mu.Unlock()

	w.poller.Start(base)
	return u.stopper(base, intentID, w), nil
}

func (u *PaymentUC) stopper(ctx context.Context, intentID string, w *watch) func() {
	return func() {
		w.poller.Cancel()
		u.release(ctx, intentID, w)
	}
}

// release forgets w and frees its lock. Safe to call more than once.
func (u *PaymentUC) release(ctx context.Context, intentID string, w *watch) {
	u.mu.Lock()
	cur, ok := u.watchers[intentID]
	if !ok || cur != w {
		u.mu.Unlock()
		return
	}
	delete(u.watchers, intentID)
	u.mu.Unlock()
	u.unlock(ctx, intentID, w.token)
}

func (u *PaymentUC) unlock(ctx context.Context, intentID, token string) {
	u.unlockKey(ctx, "watch:"+intentID, token)
}

func (u *PaymentUC) unlockKey(ctx context.Context, key, token string) {
	if u.WatchLock == nil || token == "" {
		return
	}
	if err := u.WatchLock.Unlock(ctx, key, token); err != nil {
		u.log.Warn().Err(err).Str("key", key).Msg("unlock failed")
	}
}

// Watching reports whether a local poller is attached to intentID.
func (u *PaymentUC) Watching(intentID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.watchers[intentID]
	return ok
}

// StopWatches cancels every local poller, for shutdown.
func (u *PaymentUC) StopWatches(ctx context.Context) {
	u.mu.Lock()
	ws := make(map[string]*watch, len(u.watchers))
	for id, w := range u.watchers {
		ws[id] = w
	}
	u.mu.Unlock()
	for id, w := range ws {
		u.stopper(ctx, id, w)()
	}
}

func (u *PaymentUC) HandleCardWebhook(ctx context.Context, p model.CardWebhookPayload) (err error) {
	provider, ok := u.Providers.Get(model.ProviderCardRedirect)
	verifier, canVerify := provider.(adapter.WebhookVerifier)
	if !ok || !canVerify || !verifier.VerifyCardWebhook(p) {
		metrics.IncWebhook("rejected")
		return domain.NewIntegrityError("webhook integrity hash mismatch")
	}
	log := u.log.With().Str("customer_id", logging.Redact(p.CustomerID, false)).Str("operation", p.OperationType).Logger()

	if u.Replay != nil {
		sum := sha256.Sum256([]byte(p.DeliveryKey()))
		key := "webhook:card:" + hex.EncodeToString(sum[:])
		first, gerr := u.Replay.First(ctx, key, u.opts.ReplayTTL)
		switch {
		case gerr != nil:
			// the ledger still guards the commit
			log.Warn().Err(gerr).Msg("replay guard unavailable")
		case !first:
			metrics.IncWebhook("duplicate")
			log.Info().Msg("duplicate webhook delivery ignored")
			return nil
		default:
			// an acknowledged delivery stays remembered; a failed one must be retried
			defer func() {
				if err == nil || domain.KindOf(err) == domain.KindCorrelation {
					return
				}
				if ferr := u.Replay.Forget(context.WithoutCancel(ctx), key); ferr != nil {
					log.Warn().Err(ferr).Msg("could not release replay key")
				}
			}()
		}
	}

	intent, err := u.Intents.FindOpenByCustomerID(ctx, repository.NoTX, p.CustomerID)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncWebhook("uncorrelated")
		log.Info().Msg("webhook does not match an open intent")
		return domain.NewCorrelationError(domain.CodeIntentNotFound, "no open intent for customer")
	}
	if err != nil {
		return err
	}

	switch p.OperationType {
	case model.CardOperationRegister:
		var won bool
		err := u.Tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if err := u.Intents.SetCardID(ctx, tx, intent.ID, p.CustomerCardID); err != nil {
				return err
			}
			var err error
			won, err = u.Intents.TransitionIfOpen(ctx, tx, intent.ID, model.StatusSuccess, "", "")
			return err
		})
		if err != nil {
			return err
		}
		intent.CardID = p.CustomerCardID
		if won {
			u.afterTerminal(ctx, intent, model.StatusSuccess, "", "", 0)
		}
	case model.CardOperationRegisterFailed:
		if _, err := u.finish(ctx, intent, model.StatusFailed, domain.CodeCardRejected, "card registration failed", 0); err != nil {
			return err
		}
	default:
		log.Debug().Msg("operation acknowledged")
	}
	metrics.IncWebhook("ok")
	return nil
}

func (u *PaymentUC) ExpireAbandoned(ctx context.Context, now time.Time) (int, error) {
	list, err := u.Intents.ListOpenExpired(ctx, repository.NoTX, now, u.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, intent := range list {
		u.mu.Lock()
		w := u.watchers[intent.ID]
		u.mu.Unlock()
		if w != nil {
			u.stopper(ctx, intent.ID, w)()
		}
		won, err := u.finish(ctx, intent, model.StatusFailed, domain.CodeExpired, "payment was abandoned", 0)
		if err != nil {
			return n, err
		}
		if won {
			n++
		}
	}
	return n, nil
}

func (u *PaymentUC) RetryPendingCommits(ctx context.Context) (int, error) {
	list, err := u.Intents.ListUncommitted(ctx, repository.NoTX, u.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, intent := range list {
		key := "commit:" + intent.ID
		token, ok := u.lease(ctx, key, commitLeaseTTL)
		if !ok {
			continue
		}
		err := u.commit(ctx, intent)
		u.unlockKey(ctx, key, token)
		if err == nil {
			n++
		}
	}
	return n, nil
}

// commitLeaseTTL outlives one backend commit call.
const commitLeaseTTL = 2 * time.Minute

// lease takes key through WatchLock. Without a lock, or when the lock store
// fails, the caller proceeds and the backend's idempotency key guards the commit.
func (u *PaymentUC) lease(ctx context.Context, key string, ttl time.Duration) (string, bool) {
	if u.WatchLock == nil {
		return "", true
	}
	token, ok, err := u.WatchLock.TryLock(ctx, key, ttl)
	if err != nil {
		u.log.Warn().Err(err).Str("key", key).Msg("lease unavailable; proceeding")
		return "", true
	}
	return token, ok
}

// ResumeWatches re-attaches pollers to open WalletQR intents after a restart.
func (u *PaymentUC) ResumeWatches(ctx context.Context) (int, error) {
	list, err := u.Intents.ListOpenByProvider(ctx, repository.NoTX, model.ProviderWalletQR, u.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, intent := range list {
		if intent.ProviderTransactionID == "" || u.Watching(intent.ID) {
			continue
		}
		if _, err := u.Watch(ctx, intent.ID); err != nil {
			u.log.Warn().Err(err).Str("intent_id", intent.ID).Msg("could not resume watch")
			continue
		}
		// a lock held by another replica yields no local poller
		if u.Watching(intent.ID) {
			n++
		}
	}
	return n, nil
}

func (u *PaymentUC) progress(ctx context.Context, intent *model.PurchaseIntent, s model.TransactionStatus) error {
	if err := u.Intents.UpdateProgress(ctx, repository.NoTX, intent.ID, s, "", ""); err != nil {
		return err
	}
	_ = intent.Transition(s)
	return nil
}

// finish moves intent to a terminal status once. Only the caller that wins the
// ledger transition publishes the event and commits; everyone else observes.
func (u *PaymentUC) finish(ctx context.Context, intent *model.PurchaseIntent, status model.TransactionStatus, code, msg string, commitDelay time.Duration) (bool, error) {
	if status == model.StatusFailed && code == "" {
		code = domain.CodeDeclined
	}
	won, err := u.Intents.TransitionIfOpen(ctx, repository.NoTX, intent.ID, status, code, msg)
	if err != nil {
		return false, err
	}
	if !won {
		if fresh, err := u.Intents.FindByID(ctx, repository.NoTX, intent.ID); err == nil {
			*intent = *fresh
		}
		return false, nil
	}
	u.afterTerminal(ctx, intent, status, code, msg, commitDelay)
	return true, nil
}

func (u *PaymentUC) afterTerminal(ctx context.Context, intent *model.PurchaseIntent, status model.TransactionStatus, code, msg string, commitDelay time.Duration) {
	intent.Status = status
	intent.FailureCode, intent.FailureMessage = code, msg
	intent.UpdatedAt = u.Clock.Now()
	metrics.IncIntentTerminal(string(intent.Provider), string(status), code)

	log := logging.With(logging.WithIntentID(ctx, intent.ID), u.log)
	log.Info().Str("status", string(status)).Str("code", code).Msg("intent finished")

	if u.Events != nil {
		if err := u.Events.PublishIntentEvent(ctx, adapter.IntentEvent{
			IntentID: intent.ID,
			UserID:   intent.UserID,
			PlanID:   intent.PlanID,
			Provider: intent.Provider,
			Status:   status,
			Code:     code,
			Amount:   intent.Amount,
		}); err != nil {
			log.Warn().Err(err).Msg("could not publish intent event")
		}
	}

	if status != model.StatusSuccess || !intent.HasPlan() {
		return
	}
	if commitDelay <= 0 {
		_ = u.commit(ctx, intent)
		return
	}
	snapshot := *intent
	base := context.WithoutCancel(ctx)
	u.Clock.AfterFunc(commitDelay, func() { _ = u.commit(base, &snapshot) })
}

// commit runs the backend commit; a failure is left for RetryPendingCommits.
func (u *PaymentUC) commit(ctx context.Context, intent *model.PurchaseIntent) error {
	log := logging.With(logging.WithIntentID(ctx, intent.ID), u.log)
	if err := u.Committer.CommitPurchase(ctx, intent); err != nil {
		metrics.IncCommit("error")
		log.Error().Err(err).Msg("commit failed; will retry")
		return err
	}
	now := u.Clock.Now()
	if err := u.Intents.MarkCommitted(ctx, repository.NoTX, intent.ID, now); err != nil {
		metrics.IncCommit("unmarked")
		log.Error().Err(err).Msg("commit succeeded but could not be recorded")
		return err
	}
	intent.CommittedAt = &now
	metrics.IncCommit("ok")
	return nil
}
