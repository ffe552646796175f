package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"pix-subscription-billing/internal/domain"
	"pix-subscription-billing/internal/domain/model"
	"pix-subscription-billing/internal/domain/ports/repository"
)

var _ EntitlementActivator = (*entitlementUC)(nil)

// EntitlementActivator flips a user's premium flag and computes the
// plan-based expiry. Activation runs inside the reconciliation transaction
// so a paid ledger row and an unactivated user cannot be observed together.
type EntitlementActivator interface {
	// Activate sets premium=true with the expiry derived from the plan.
	// Returns the new expire date.
	Activate(ctx context.Context, tx repository.Tx, userID string, plan model.Plan, activationDate time.Time) (time.Time, error)

	// Evaluate reads the user's entitlement, lazily downgrading premium
	// when the expiry has passed. This is the only place plan expiry is
	// enforced; there is no background sweep.
	Evaluate(ctx context.Context, userID string) (*model.User, error)
}

type entitlementUC struct {
	users repository.UserRepository
	log   *zerolog.Logger
}

func NewEntitlementActivator(users repository.UserRepository, logger *zerolog.Logger) *entitlementUC {
	l := logger.With().Str("component", "EntitlementActivator").Logger()
	return &entitlementUC{users: users, log: &l}
}

func (u *entitlementUC) Activate(ctx context.Context, tx repository.Tx, userID string, plan model.Plan, activationDate time.Time) (time.Time, error) {
	if userID == "" || !plan.Valid() {
		return time.Time{}, domain.ErrInvalidArgument
	}
	expire := plan.ExpiryFrom(activationDate)
	if err := u.users.ActivatePremium(ctx, tx, userID, expire, activationDate); err != nil {
		return time.Time{}, fmt.Errorf("activate premium for user %s: %w", userID, err)
	}
	u.log.Info().
		Str("user_id", userID).
		Str("plan", string(plan)).
		Time("expire_date", expire).
		Msg("entitlement activated")
	return expire, nil
}

func (u *entitlementUC) Evaluate(ctx context.Context, userID string) (*model.User, error) {
	usr, err := u.users.FindByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if usr.Premium && !usr.PremiumNow(now) {
		if err := u.users.DowngradeExpired(ctx, nil, userID); err != nil {
			// Keep serving the correct read even if the persisted
			// downgrade has to wait for the next evaluation.
			u.log.Warn().Err(err).Str("user_id", userID).Msg("lazy downgrade failed")
		}
		usr.Premium = false
	}
	return usr, nil
}
