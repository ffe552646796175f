package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"pix-subscription-billing/internal/domain"
	"pix-subscription-billing/internal/domain/model"
	"pix-subscription-billing/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct{ pool *pgxpool.Pool }

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	q := `SELECT id, email, premium, expire_date, payment_status, payment_date FROM users WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}

	u := &model.User{}
	if err := row.Scan(&u.ID, &u.Email, &u.Premium, &u.ExpireDate, &u.PaymentStatus, &u.PaymentDate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return u, nil
}

// ActivatePremium touches only the premium fields. The rest of the row
// belongs to the user-management subsystem and is left alone.
func (r *userRepo) ActivatePremium(ctx context.Context, tx repository.Tx, userID string, expireDate time.Time, paidAt time.Time) error {
	const q = `UPDATE users SET premium=TRUE, expire_date=$2, payment_status='paid', payment_date=$3 WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, userID, expireDate, paidAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *userRepo) DowngradeExpired(ctx context.Context, tx repository.Tx, userID string) error {
	const q = `UPDATE users SET premium=FALSE, payment_status='expired' WHERE id=$1 AND premium=TRUE AND expire_date IS NOT NULL AND expire_date < NOW();`
	_, err := execSQL(ctx, r.pool, tx, q, userID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}
