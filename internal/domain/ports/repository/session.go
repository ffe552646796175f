package repository

import (
	"context"
	"time"

	"pix-subscription-billing/internal/domain/model"
)

// SessionRepository is the port for in-flight charge attempts. Sessions
// are never physically deleted; terminal statuses close them out.
type SessionRepository interface {
	Create(ctx context.Context, tx Tx, s *model.PaymentSession) error

	// AttachProviderRefs records the provider identifiers once the
	// provider responds. Idempotent: re-attaching the same values is a
	// no-op.
	AttachProviderRefs(ctx context.Context, tx Tx, sessionID string, paymentID *int64, preferenceID string) error

	FindByID(ctx context.Context, tx Tx, id string) (*model.PaymentSession, error)

	// FindByProviderRef resolves a provider reference against both the
	// numeric payment_id and the string preference_id, trying exact,
	// upper and lower case forms of string references: PushinPay webhook
	// UUIDs arrive in varying casings.
	FindByProviderRef(ctx context.Context, tx Tx, ref string) (*model.PaymentSession, error)

	// MarkStatus transitions a session, refusing to leave a terminal
	// state. Returns false when the row was already terminal.
	MarkStatus(ctx context.Context, tx Tx, sessionID string, status model.SessionStatus) (bool, error)

	// ForcePaid is the admin override behind manual reprocessing: it
	// moves any non-paid session, including failed and expired ones,
	// straight to paid. Returns false when the session is already paid.
	ForcePaid(ctx context.Context, tx Tx, sessionID string) (bool, error)

	// ListPendingOlderThan feeds the stale-session poller and the expiry
	// sweep.
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.PaymentSession, error)
}
