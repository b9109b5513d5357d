package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a database transaction and hands the
// transaction handle to repositories through tx. The concrete type of tx is
// infra-defined (pgx.Tx for Postgres); repositories must accept nil and fall
// back to the pool.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
