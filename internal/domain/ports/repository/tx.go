package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is the opaque transaction handle passed through repository methods.
// The concrete type is infra-defined (pgx.Tx for Postgres); repositories
// accept nil for the non-transactional path.
type Tx interface{}

// NoTX is passed where a method requires a Tx argument but no transaction
// is in flight.
var NoTX Tx

// TransactionManager executes a function within a database transaction,
// passing the handle via tx. Keeping the handle opaque keeps use-case
// interfaces free of storage types while still letting repositories run
// SELECT ... FOR UPDATE and tx-bound writes.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
