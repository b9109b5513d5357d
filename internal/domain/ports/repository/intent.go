package repository

import (
	"context"
	"time"

	"coupon-payments/internal/domain/model"
)

// IntentRepository is the server-side ledger of purchase intents. It exists for
// the paths that carry no cookie (webhooks, workers) and to make the terminal
// transition and the commit happen once.
type IntentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.PurchaseIntent) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PurchaseIntent, error)
	FindOpenByCustomerID(ctx context.Context, tx Tx, customerID string) (*model.PurchaseIntent, error)
	// UpdateProgress records a non-terminal status and provider references; a no-op on terminal rows.
	UpdateProgress(ctx context.Context, tx Tx, id string, status model.TransactionStatus, providerTxID, customerID string) error
	// TransitionIfOpen atomically moves a non-terminal intent to a terminal status.
	// It reports false when the intent was already terminal.
	TransitionIfOpen(ctx context.Context, tx Tx, id string, status model.TransactionStatus, code, message string) (bool, error)
	SetCardID(ctx context.Context, tx Tx, id, cardID string) error
	MarkCommitted(ctx context.Context, tx Tx, id string, at time.Time) error
	ListOpenExpired(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.PurchaseIntent, error)
	ListOpenByProvider(ctx context.Context, tx Tx, provider model.ProviderKind, limit int) ([]*model.PurchaseIntent, error)
	ListUncommitted(ctx context.Context, tx Tx, limit int) ([]*model.PurchaseIntent, error)
}

// ReplayGuard remembers webhook deliveries. First reports true only for the
// first delivery of key within ttl; Forget releases a key whose delivery
// could not be processed so the sender's retry is handled.
type ReplayGuard interface {
	First(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}

// WatchLock keeps a single poller per provider transaction across replicas.
type WatchLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}
