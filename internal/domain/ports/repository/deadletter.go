package repository

import (
	"context"

	"pix-subscription-billing/internal/domain/model"
)

// DeadLetterRepository parks unmatched provider events for later retry.
// An event lands here when its reference resolves to no session, which
// happens when a webhook outraces session creation.
type DeadLetterRepository interface {
	Append(ctx context.Context, tx Tx, d *model.DeadLetter) error
	ListRetryable(ctx context.Context, tx Tx, maxAttempts, limit int) ([]*model.DeadLetter, error)
	MarkAttempt(ctx context.Context, tx Tx, id string, lastError string) error
	Delete(ctx context.Context, tx Tx, id string) error
	Count(ctx context.Context, tx Tx) (int, error)
}
