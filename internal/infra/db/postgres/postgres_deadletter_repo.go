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

var _ repository.DeadLetterRepository = (*deadLetterRepo)(nil)

type deadLetterRepo struct{ pool *pgxpool.Pool }

func NewDeadLetterRepo(pool *pgxpool.Pool) *deadLetterRepo {
	return &deadLetterRepo{pool: pool}
}

func (r *deadLetterRepo) Append(ctx context.Context, tx repository.Tx, d *model.DeadLetter) error {
	const q = `
INSERT INTO webhook_dead_letters (id, provider, reference, payload, attempts, last_error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	_, err := execSQL(ctx, r.pool, tx, q, d.ID, d.Provider, d.Reference, []byte(d.Payload), d.Attempts, d.LastError, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *deadLetterRepo) ListRetryable(ctx context.Context, tx repository.Tx, maxAttempts, limit int) ([]*model.DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, provider, reference, payload, attempts, last_error, created_at, updated_at
  FROM webhook_dead_letters
 WHERE attempts < $1
 ORDER BY created_at ASC
 LIMIT $2;`

	rows, err := queryRows(ctx, r.pool, tx, q, maxAttempts, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.DeadLetter
	for rows.Next() {
		d := new(model.DeadLetter)
		var payload []byte
		if err := rows.Scan(&d.ID, &d.Provider, &d.Reference, &payload, &d.Attempts, &d.LastError, &d.CreatedAt, &d.UpdatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrNotFound
			}
			return nil, domain.ErrReadDatabaseRow
		}
		d.Payload = payload
		out = append(out, d)
	}
	return out, nil
}

func (r *deadLetterRepo) MarkAttempt(ctx context.Context, tx repository.Tx, id string, lastError string) error {
	const q = `UPDATE webhook_dead_letters SET attempts = attempts + 1, last_error = $2, updated_at = NOW() WHERE id = $1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, lastError)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *deadLetterRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	const q = `DELETE FROM webhook_dead_letters WHERE id = $1;`
	_, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *deadLetterRepo) Count(ctx context.Context, tx repository.Tx) (int, error) {
	const q = `SELECT COUNT(*) FROM webhook_dead_letters;`
	row, err := pickRow(ctx, r.pool, tx, q)
	if err != nil {
		return 0, err
	}

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}
