package repository

import (
	"context"

	"pix-subscription-billing/internal/domain/model"
)

// LedgerRepository is the port for durable payment records.
type LedgerRepository interface {
	// UpsertByReference creates the row if absent and upgrades a pending
	// row to paid if present. A paid row is never downgraded: the upsert
	// is keyed on the preference_id unique constraint, so concurrent
	// webhook deliveries collapse into one row. Returns the stored row.
	UpsertByReference(ctx context.Context, tx Tx, e *model.LedgerEntry) (*model.LedgerEntry, error)

	FindByReference(ctx context.Context, tx Tx, preferenceID string) (*model.LedgerEntry, error)

	// ListDuplicateGroups groups rows by (payment_id, user_id, amount,
	// plan) and returns groups with more than one member, earliest
	// transaction_date first within each group. Read-only.
	ListDuplicateGroups(ctx context.Context, tx Tx) ([]*model.DuplicateGroup, error)

	// DeleteByIDs removes the given ledger rows. Used only by the
	// duplicate purge; reconciliation never deletes.
	DeleteByIDs(ctx context.Context, tx Tx, ids []string) (int64, error)

	// SumPaidByPeriod returns paid revenue since the start of the given
	// date_trunc period ("week", "month", "year").
	SumPaidByPeriod(ctx context.Context, tx Tx, period string) (int64, error)
}
