package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"pix-subscription-billing/internal/domain"
	"pix-subscription-billing/internal/domain/model"
	"pix-subscription-billing/internal/domain/ports/repository"
)

var _ repository.SessionRepository = (*sessionRepo)(nil)

type sessionRepo struct{ pool *pgxpool.Pool }

func NewSessionRepo(pool *pgxpool.Pool) *sessionRepo {
	return &sessionRepo{pool: pool}
}

const sessionColumns = `id, user_id, plan, amount_cents, status, provider, payment_id, preference_id, user_email, campaign_id, promotion_code, affiliate_id, source, campaign, created_at, updated_at`

func scanSession(row pgx.Row) (*model.PaymentSession, error) {
	s := &model.PaymentSession{}
	if err := row.Scan(&s.ID, &s.UserID, &s.Plan, &s.Amount, &s.Status, &s.Provider, &s.PaymentID, &s.PreferenceID, &s.UserEmail, &s.CampaignID, &s.PromotionCode, &s.AffiliateID, &s.Source, &s.Campaign, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func (r *sessionRepo) Create(ctx context.Context, tx repository.Tx, s *model.PaymentSession) error {
	const q = `
INSERT INTO payment_sessions (
  id, user_id, plan, amount_cents, status, provider, payment_id, preference_id, user_email, campaign_id, promotion_code, affiliate_id, source, campaign, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
);`

	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.UserID, s.Plan, s.Amount, s.Status, s.Provider, s.PaymentID, s.PreferenceID, s.UserEmail, s.CampaignID, s.PromotionCode, s.AffiliateID, s.Source, s.Campaign, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *sessionRepo) AttachProviderRefs(ctx context.Context, tx repository.Tx, sessionID string, paymentID *int64, preferenceID string) error {
	const q = `UPDATE payment_sessions SET payment_id=COALESCE($2, payment_id), preference_id=COALESCE(NULLIF($3,''), preference_id), updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, sessionID, paymentID, preferenceID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *sessionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM payment_sessions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanSession(row)
}

// FindByProviderRef resolves the reference against the numeric payment_id
// and the string preference_id. PushinPay delivers its UUID in whatever
// casing it likes, so upper and lower forms are matched too. A reference
// that happens to be the session ULID matches on id as a last resort.
func (r *sessionRepo) FindByProviderRef(ctx context.Context, tx repository.Tx, ref string) (*model.PaymentSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM payment_sessions
 WHERE payment_id::text = $1
    OR preference_id IN ($1, $2, $3)
    OR id = $1
 ORDER BY created_at DESC
 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, ref, strings.ToUpper(ref), strings.ToLower(ref))
	if err != nil {
		return nil, err
	}
	return scanSession(row)
}

// MarkStatus atomically transitions a session, refusing to leave a
// terminal state. Returns false when the row was missing or already
// terminal.
func (r *sessionRepo) MarkStatus(ctx context.Context, tx repository.Tx, sessionID string, status model.SessionStatus) (bool, error) {
	const q = `
UPDATE payment_sessions
   SET status = $2,
       updated_at = NOW()
 WHERE id = $1
   AND status = 'pending';`

	cmd, err := execSQL(ctx, r.pool, tx, q, sessionID, string(status))
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

// ForcePaid skips the pending-only guard: an operator reprocessing a
// session that already failed or expired still needs it to land on paid.
// paid itself stays absorbing.
func (r *sessionRepo) ForcePaid(ctx context.Context, tx repository.Tx, sessionID string) (bool, error) {
	const q = `
UPDATE payment_sessions
   SET status = 'paid',
       updated_at = NOW()
 WHERE id = $1
   AND status <> 'paid';`

	cmd, err := execSQL(ctx, r.pool, tx, q, sessionID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *sessionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentSession, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + sessionColumns + ` FROM payment_sessions WHERE status='pending' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.PaymentSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
