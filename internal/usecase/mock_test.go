//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"coupon-payments/internal/domain"
	"coupon-payments/internal/domain/model"
	"coupon-payments/internal/domain/ports/adapter"
	"coupon-payments/internal/domain/ports/repository"
	"coupon-payments/internal/usecase"

	"github.com/jackc/pgx/v4"
)

// -----------------------------
// Virtual clock
// -----------------------------

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	due     time.Time
	f       func()
	done    bool
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) usecase.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, due: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.done || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward by d, firing due timers synchronously in order.
// Timers scheduled by a firing callback run too when they fall inside the window.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.done || t.stopped || t.due.After(target) {
				continue
			}
			if next == nil || t.due.Before(next.due) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.done = true
		if next.due.After(c.now) {
			c.now = next.due
		}
		c.mu.Unlock()
		next.f()
	}
}

// -----------------------------
// Repositories
// -----------------------------

type MockIntentRepo struct {
	mu      sync.Mutex
	intents map[string]model.PurchaseIntent

	SaveFunc             func(ctx context.Context, p *model.PurchaseIntent) error
	TransitionIfOpenFunc func(ctx context.Context, id string, status model.TransactionStatus) (bool, error)
}

var _ repository.IntentRepository = (*MockIntentRepo)(nil)

func NewMockIntentRepo() *MockIntentRepo {
	return &MockIntentRepo{intents: make(map[string]model.PurchaseIntent)}
}

func (m *MockIntentRepo) Save(ctx context.Context, tx repository.Tx, p *model.PurchaseIntent) error {
	if m.SaveFunc != nil {
		if err := m.SaveFunc(ctx, p); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.intents[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.intents[p.ID] = *p
	return nil
}

func (m *MockIntentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PurchaseIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.intents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (m *MockIntentRepo) FindOpenByCustomerID(ctx context.Context, tx repository.Tx, customerID string) (*model.PurchaseIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.intents {
		if p.ProviderCustomerID == customerID && !p.IsTerminal() {
			cp := p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockIntentRepo) UpdateProgress(ctx context.Context, tx repository.Tx, id string, status model.TransactionStatus, providerTxID, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.intents[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.IsTerminal() {
		return nil
	}
	p.Status = status
	if providerTxID != "" {
		p.ProviderTransactionID = providerTxID
	}
	if customerID != "" {
		p.ProviderCustomerID = customerID
	}
	m.intents[id] = p
	return nil
}

func (m *MockIntentRepo) TransitionIfOpen(ctx context.Context, tx repository.Tx, id string, status model.TransactionStatus, code, message string) (bool, error) {
	if m.TransitionIfOpenFunc != nil {
		return m.TransitionIfOpenFunc(ctx, id, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.intents[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.IsTerminal() {
		return false, nil
	}
	p.Status, p.FailureCode, p.FailureMessage = status, code, message
	m.intents[id] = p
	return true, nil
}

func (m *MockIntentRepo) SetCardID(ctx context.Context, tx repository.Tx, id, cardID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.intents[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.CardID = cardID
	m.intents[id] = p
	return nil
}

func (m *MockIntentRepo) MarkCommitted(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.intents[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.CommittedAt = &at
	m.intents[id] = p
	return nil
}

func (m *MockIntentRepo) list(keep func(p model.PurchaseIntent) bool, limit int) []*model.PurchaseIntent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PurchaseIntent
	for _, p := range m.intents {
		if keep(p) {
			cp := p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MockIntentRepo) ListOpenExpired(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.PurchaseIntent, error) {
	return m.list(func(p model.PurchaseIntent) bool { return !p.IsTerminal() && p.ExpiresAt.Before(now) }, limit), nil
}

func (m *MockIntentRepo) ListOpenByProvider(ctx context.Context, tx repository.Tx, provider model.ProviderKind, limit int) ([]*model.PurchaseIntent, error) {
	return m.list(func(p model.PurchaseIntent) bool { return !p.IsTerminal() && p.Provider == provider }, limit), nil
}

func (m *MockIntentRepo) ListUncommitted(ctx context.Context, tx repository.Tx, limit int) ([]*model.PurchaseIntent, error) {
	return m.list(func(p model.PurchaseIntent) bool {
		return p.Status == model.StatusSuccess && p.PlanID != "" && p.CommittedAt == nil
	}, limit), nil
}

// Get returns a copy of the stored intent for assertions.
func (m *MockIntentRepo) Get(id string) model.PurchaseIntent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.intents[id]
}

// Put stores p as-is, bypassing Save's duplicate check.
func (m *MockIntentRepo) Put(p model.PurchaseIntent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents[p.ID] = p
}

type MockReplayGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *MockReplayGuard) First(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *MockReplayGuard) Forget(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, key)
	return nil
}

// MockTxManager runs fn without a transaction unless WithTxFunc intercepts it.
type MockTxManager struct {
	WithTxFunc func(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
}

func (m *MockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, fn)
	}
	return fn(ctx, repository.NoTX)
}

type MockWatchLock struct {
	mu     sync.Mutex
	held   map[string]string
	seq    int
	Denied bool
}

func (m *MockWatchLock) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held == nil {
		m.held = map[string]string{}
	}
	if m.Denied || m.held[key] != "" {
		return "", false, nil
	}
	m.seq++
	tok := string(rune('a' + m.seq))
	m.held[key] = tok
	return tok, true, nil
}

func (m *MockWatchLock) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] == token {
		delete(m.held, key)
	}
	return nil
}

func (m *MockWatchLock) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[key] != ""
}

// -----------------------------
// Session
// -----------------------------

// MockSession is an in-memory SessionStore with JSON semantics.
type MockSession struct {
	mu     sync.Mutex
	fields map[string]json.RawMessage
}

var _ repository.SessionStore = (*MockSession)(nil)

func NewMockSession() *MockSession { return &MockSession{fields: map[string]json.RawMessage{}} }

func (s *MockSession) Get(key string, out any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.fields[key]
	return ok && json.Unmarshal(raw, out) == nil
}

func (s *MockSession) Set(key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[key] = b
	return nil
}

func (s *MockSession) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fields, key)
	return nil
}

func (s *MockSession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = map[string]json.RawMessage{}
}

func (s *MockSession) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fields[key]
	return ok
}

// -----------------------------
// Adapters
// -----------------------------

type MockCommitter struct {
	mu    sync.Mutex
	calls map[string]int

	CommitFunc func(ctx context.Context, intent *model.PurchaseIntent) error
}

var _ adapter.Committer = (*MockCommitter)(nil)

func (m *MockCommitter) CommitPurchase(ctx context.Context, intent *model.PurchaseIntent) error {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[intent.ID]++
	m.mu.Unlock()
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx, intent)
	}
	return nil
}

func (m *MockCommitter) Count(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[id]
}

type MockDiscounts struct {
	LinkedAccountPriceFunc func(ctx context.Context, userID, planID string, list model.Money) (*model.Money, error)
}

func (m *MockDiscounts) LinkedAccountPrice(ctx context.Context, userID, planID string, list model.Money) (*model.Money, error) {
	if m.LinkedAccountPriceFunc != nil {
		return m.LinkedAccountPriceFunc(ctx, userID, planID, list)
	}
	return nil, nil
}

type MockEvents struct {
	mu     sync.Mutex
	Events []adapter.IntentEvent
}

func (m *MockEvents) PublishIntentEvent(ctx context.Context, ev adapter.IntentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
	return nil
}

func (m *MockEvents) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Events)
}

// MockChecker is a StatusChecker driven by a function.
type MockChecker struct {
	mu    sync.Mutex
	calls int

	CheckStatusFunc func(ctx context.Context, id string) adapter.StatusResult
}

func (m *MockChecker) CheckStatus(ctx context.Context, id string) adapter.StatusResult {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.CheckStatusFunc(ctx, id)
}

func (m *MockChecker) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// sequence returns a CheckStatusFunc walking statuses and repeating the last.
func sequence(statuses ...model.TransactionStatus) func(context.Context, string) adapter.StatusResult {
	var mu sync.Mutex
	i := 0
	return func(context.Context, string) adapter.StatusResult {
		mu.Lock()
		defer mu.Unlock()
		s := statuses[i]
		if i < len(statuses)-1 {
			i++
		}
		return adapter.StatusResult{Status: s}
	}
}
