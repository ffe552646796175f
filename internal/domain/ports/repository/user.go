package repository

import (
	"context"
	"time"

	"pix-subscription-billing/internal/domain/model"
)

// UserRepository is the entitlement projection port. Only the premium
// fields are written here; the rest of the user record belongs to the
// user-management subsystem.
type UserRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)

	// ActivatePremium is a targeted field-level update of premium,
	// expire_date, payment_status and payment_date. It never overwrites
	// the whole row, so concurrent unrelated edits are not clobbered.
	ActivatePremium(ctx context.Context, tx Tx, userID string, expireDate time.Time, paidAt time.Time) error

	// DowngradeExpired flips premium off for a user whose expire_date has
	// passed. Called lazily from the read path, not by a sweep.
	DowngradeExpired(ctx context.Context, tx Tx, userID string) error
}
