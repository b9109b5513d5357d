package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"coupon-payments/internal/domain"
	"coupon-payments/internal/domain/model"
	"coupon-payments/internal/domain/ports/repository"
)

var _ repository.IntentRepository = (*intentRepo)(nil)

const uniqueViolation = "23505"

// a SUCCESS row younger than this may still be committed inline
const commitGrace = 30 * time.Second

const intentColumns = `id, user_id, plan_id, provider, currency, amount, list_currency, list_amount,
  callback_base, status, provider_tx_id, provider_customer_id, card_id, failure_code, failure_message,
  committed_at, created_at, updated_at, expires_at`

type intentRepo struct{ pool *pgxpool.Pool }

func NewIntentRepo(pool *pgxpool.Pool) *intentRepo {
	return &intentRepo{pool: pool}
}

func scanIntent(row pgx.Row) (*model.PurchaseIntent, error) {
	p := &model.PurchaseIntent{}
	err := row.Scan(&p.ID, &p.UserID, &p.PlanID, &p.Provider, &p.Amount.Currency, &p.Amount.Value,
		&p.ListAmount.Currency, &p.ListAmount.Value, &p.CallbackBase, &p.Status,
		&p.ProviderTransactionID, &p.ProviderCustomerID, &p.CardID, &p.FailureCode, &p.FailureMessage,
		&p.CommittedAt, &p.CreatedAt, &p.UpdatedAt, &p.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	return p, nil
}

func (r *intentRepo) Save(ctx context.Context, tx repository.Tx, p *model.PurchaseIntent) error {
	q := `INSERT INTO purchase_intents (` + intentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19);`

	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.UserID, p.PlanID, p.Provider, p.Amount.Currency, p.Amount.Value,
		p.ListAmount.Currency, p.ListAmount.Value, p.CallbackBase, p.Status,
		p.ProviderTransactionID, p.ProviderCustomerID, p.CardID, p.FailureCode, p.FailureMessage,
		p.CommittedAt, p.CreatedAt, p.UpdatedAt, p.ExpiresAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return mapExecErr(err)
	}
	return nil
}

func (r *intentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PurchaseIntent, error) {
	q := `SELECT ` + intentColumns + ` FROM purchase_intents WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", id)
	if err != nil {
		return nil, err
	}
	return scanIntent(row)
}

func (r *intentRepo) FindOpenByCustomerID(ctx context.Context, tx repository.Tx, customerID string) (*model.PurchaseIntent, error) {
	q := `SELECT ` + intentColumns + ` FROM purchase_intents
WHERE provider_customer_id=$1 AND status NOT IN ('SUCCESS','FAILED')
ORDER BY created_at DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, customerID)
	if err != nil {
		return nil, err
	}
	return scanIntent(row)
}

// UpdateProgress never touches a terminal row; empty references keep the stored ones.
func (r *intentRepo) UpdateProgress(ctx context.Context, tx repository.Tx, id string, status model.TransactionStatus, providerTxID, customerID string) error {
	if status.IsTerminal() || !status.Valid() {
		return domain.ErrInvalidArgument
	}
	const q = `
UPDATE purchase_intents
   SET status = $2,
       provider_tx_id = COALESCE(NULLIF($3, ''), provider_tx_id),
       provider_customer_id = COALESCE(NULLIF($4, ''), provider_customer_id),
       updated_at = NOW()
 WHERE id = $1
   AND status NOT IN ('SUCCESS','FAILED');`
	if _, err := execSQL(ctx, r.pool, tx, q, id, status, providerTxID, customerID); err != nil {
		return mapExecErr(err)
	}
	return nil
}

// TransitionIfOpen is the single place a terminal status is written.
func (r *intentRepo) TransitionIfOpen(ctx context.Context, tx repository.Tx, id string, status model.TransactionStatus, code, message string) (bool, error) {
	if !status.IsTerminal() {
		return false, domain.ErrInvalidArgument
	}
	const q = `
UPDATE purchase_intents
   SET status = $2,
       failure_code = $3,
       failure_message = $4,
       updated_at = NOW()
 WHERE id = $1
   AND status NOT IN ('SUCCESS','FAILED');`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, status, code, message)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *intentRepo) SetCardID(ctx context.Context, tx repository.Tx, id, cardID string) error {
	const q = `UPDATE purchase_intents SET card_id=$2, updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, cardID)
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *intentRepo) MarkCommitted(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	const q = `UPDATE purchase_intents SET committed_at=$2 WHERE id=$1 AND committed_at IS NULL;`
	if _, err := execSQL(ctx, r.pool, tx, q, id, at); err != nil {
		return mapExecErr(err)
	}
	return nil
}

func (r *intentRepo) ListOpenExpired(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.PurchaseIntent, error) {
	q := `SELECT ` + intentColumns + ` FROM purchase_intents
WHERE status NOT IN ('SUCCESS','FAILED') AND expires_at < $1
ORDER BY expires_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, now, normLimit(limit))
}

func (r *intentRepo) ListOpenByProvider(ctx context.Context, tx repository.Tx, provider model.ProviderKind, limit int) ([]*model.PurchaseIntent, error) {
	q := `SELECT ` + intentColumns + ` FROM purchase_intents
WHERE provider=$1 AND status NOT IN ('SUCCESS','FAILED') AND provider_tx_id <> ''
ORDER BY created_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, provider, normLimit(limit))
}

func (r *intentRepo) ListUncommitted(ctx context.Context, tx repository.Tx, limit int) ([]*model.PurchaseIntent, error) {
	q := `SELECT ` + intentColumns + ` FROM purchase_intents
WHERE status='SUCCESS' AND plan_id <> '' AND committed_at IS NULL AND updated_at < $1
ORDER BY updated_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, time.Now().Add(-commitGrace), normLimit(limit))
}

func (r *intentRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.PurchaseIntent, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.PurchaseIntent
	for rows.Next() {
		p, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapExecErr(err)
	}
	return out, nil
}

func normLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
