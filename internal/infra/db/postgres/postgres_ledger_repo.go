package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"pix-subscription-billing/internal/domain"
	"pix-subscription-billing/internal/domain/model"
	"pix-subscription-billing/internal/domain/ports/repository"
)

var _ repository.LedgerRepository = (*ledgerRepo)(nil)

type ledgerRepo struct{ pool *pgxpool.Pool }

func NewLedgerRepo(pool *pgxpool.Pool) *ledgerRepo {
	return &ledgerRepo{pool: pool}
}

const ledgerColumns = `id, user_id, plan, amount_cents, user_email, status, payment_id, preference_id, transaction_date, duration_days, campaign_id`

func scanLedger(row pgx.Row) (*model.LedgerEntry, error) {
	e := &model.LedgerEntry{}
	if err := row.Scan(&e.ID, &e.UserID, &e.Plan, &e.Amount, &e.UserEmail, &e.Status, &e.PaymentID, &e.PreferenceID, &e.TransactionDate, &e.DurationDays, &e.CampaignID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return e, nil
}

// UpsertByReference inserts the entry or merges it into the existing row
// behind the preference_id unique constraint. The status CASE keeps a paid
// row paid no matter what the incoming status says; payment_id fills in
// once and is never blanked.
func (r *ledgerRepo) UpsertByReference(ctx context.Context, tx repository.Tx, e *model.LedgerEntry) (*model.LedgerEntry, error) {
	const q = `
INSERT INTO payments (
  id, user_id, plan, amount_cents, user_email, status, payment_id, preference_id, transaction_date, duration_days, campaign_id
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
) ON CONFLICT (preference_id) DO UPDATE SET
  status = CASE WHEN payments.status = 'paid' THEN payments.status ELSE EXCLUDED.status END,
  payment_id = COALESCE(payments.payment_id, EXCLUDED.payment_id),
  transaction_date = CASE WHEN payments.status = 'paid' THEN payments.transaction_date ELSE EXCLUDED.transaction_date END
RETURNING ` + ledgerColumns + `;`

	row, err := pickRow(ctx, r.pool, tx, q, e.ID, e.UserID, e.Plan, e.Amount, e.UserEmail, e.Status, e.PaymentID, e.PreferenceID, e.TransactionDate, e.DurationDays, e.CampaignID)
	if err != nil {
		return nil, err
	}
	return scanLedger(row)
}

func (r *ledgerRepo) FindByReference(ctx context.Context, tx repository.Tx, preferenceID string) (*model.LedgerEntry, error) {
	q := `SELECT ` + ledgerColumns + ` FROM payments WHERE preference_id=$1 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, preferenceID)
	if err != nil {
		return nil, err
	}
	return scanLedger(row)
}

// ListDuplicateGroups surfaces ledger rows that record the same provider
// charge more than once. Rows within each group come back earliest first,
// so the head is the canonical keeper.
func (r *ledgerRepo) ListDuplicateGroups(ctx context.Context, tx repository.Tx) ([]*model.DuplicateGroup, error) {
	const q = `
SELECT p.payment_id, p.user_id, p.amount_cents, p.plan, p.id
  FROM payments p
  JOIN (
    SELECT payment_id, user_id, amount_cents, plan
      FROM payments
     WHERE payment_id IS NOT NULL
     GROUP BY payment_id, user_id, amount_cents, plan
    HAVING COUNT(*) > 1
  ) d ON p.payment_id = d.payment_id
     AND p.user_id = d.user_id
     AND p.amount_cents = d.amount_cents
     AND p.plan = d.plan
 ORDER BY p.payment_id, p.user_id, p.amount_cents, p.plan, p.transaction_date ASC, p.id ASC;`

	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var groups []*model.DuplicateGroup
	var cur *model.DuplicateGroup
	for rows.Next() {
		var (
			paymentID int64
			userID    string
			amount    int64
			plan      model.Plan
			id        string
		)
		if err := rows.Scan(&paymentID, &userID, &amount, &plan, &id); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		if cur == nil || cur.PaymentID != paymentID || cur.UserID != userID || cur.Amount != amount || cur.Plan != plan {
			cur = &model.DuplicateGroup{PaymentID: paymentID, UserID: userID, Amount: amount, Plan: plan, KeepID: id}
			groups = append(groups, cur)
			continue
		}
		cur.DeleteIDs = append(cur.DeleteIDs, id)
	}
	return groups, nil
}

func (r *ledgerRepo) DeleteByIDs(ctx context.Context, tx repository.Tx, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const q = `DELETE FROM payments WHERE id = ANY($1);`
	cmd, err := execSQL(ctx, r.pool, tx, q, ids)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return 0, err
		}
		return 0, domain.ErrOperationFailed
	}
	return cmd.RowsAffected(), nil
}

func (r *ledgerRepo) SumPaidByPeriod(ctx context.Context, tx repository.Tx, period string) (int64, error) {
	switch period {
	case "week", "month", "year":
	default:
		return 0, domain.ErrInvalidArgument
	}
	const q = `SELECT COALESCE(SUM(amount_cents),0) FROM payments WHERE status='paid' AND transaction_date >= DATE_TRUNC($1, NOW());`
	row, err := pickRow(ctx, r.pool, tx, q, period)
	if err != nil {
		return 0, err
	}

	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}
