package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"pix-subscription-billing/internal/domain"
	"pix-subscription-billing/internal/domain/model"
	"pix-subscription-billing/internal/domain/ports/adapter"
	"pix-subscription-billing/internal/domain/ports/repository"
	"pix-subscription-billing/internal/infra/metrics"
)

// Locker is the distributed best-effort lock used to collapse concurrent
// deliveries of the same reference early. Correctness does not depend on
// it; the storage constraints do the real work.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// Outcome describes what a reconciliation pass did.
type Outcome struct {
	Session      *model.PaymentSession
	Ledger       *model.LedgerEntry
	Activated    bool
	ExpireDate   *time.Time
	ShortCircuit bool // session was already paid; nothing changed
}

var _ ReconciliationEngine = (*reconcileUC)(nil)

// ReconciliationEngine is the state machine that matches provider status
// updates to sessions and applies them idempotently. pending -> paid,
// failed or expired; paid is absorbing. Updates are commutative with
// respect to arrival order: applying paid twice, or pending after paid,
// never regresses state.
type ReconciliationEngine interface {
	// Apply handles a normalized provider event from any trigger
	// (webhook push, poll, dead-letter retry).
	Apply(ctx context.Context, ev *model.ProviderEvent) (*Outcome, error)

	// PollStatus queries the provider for the session behind reference
	// and applies the result, returning the session's current state for
	// the polling client.
	PollStatus(ctx context.Context, reference string) (*model.PaymentSession, error)

	// ForceProcess is the admin path: marks the session paid and
	// activates the entitlement without waiting for the provider.
	ForceProcess(ctx context.Context, sessionID string) (*Outcome, error)
}

type reconcileUC struct {
	sessions    repository.SessionRepository
	ledger      repository.LedgerRepository
	deadLetters repository.DeadLetterRepository
	entitle     EntitlementActivator
	attribution AttributionLinker
	registry    adapter.Registry
	tm          repository.TransactionManager
	locker      Locker
	log         *zerolog.Logger
}

func NewReconciliationEngine(
	sessions repository.SessionRepository,
	ledger repository.LedgerRepository,
	deadLetters repository.DeadLetterRepository,
	entitle EntitlementActivator,
	attribution AttributionLinker,
	registry adapter.Registry,
	tm repository.TransactionManager,
	locker Locker,
	logger *zerolog.Logger,
) *reconcileUC {
	l := logger.With().Str("component", "ReconciliationEngine").Logger()
	return &reconcileUC{
		sessions:    sessions,
		ledger:      ledger,
		deadLetters: deadLetters,
		entitle:     entitle,
		attribution: attribution,
		registry:    registry,
		tm:          tm,
		locker:      locker,
		log:         &l,
	}
}

func (u *reconcileUC) Apply(ctx context.Context, ev *model.ProviderEvent) (*Outcome, error) {
	if ev == nil || ev.Reference == "" {
		return nil, domain.ErrInvalidArgument
	}

	if u.locker != nil {
		token, err := u.locker.TryLock(ctx, "reconcile:"+ev.Reference, 30*time.Second)
		switch {
		case err == nil:
			defer func() { _ = u.locker.Unlock(ctx, "reconcile:"+ev.Reference, token) }()
		case errors.Is(err, domain.ErrLockHeld):
			// Another instance is already applying this reference.
			return nil, domain.ErrLockHeld
		default:
			// The lock service itself is down. Proceed unlocked: the
			// storage guards keep the transition idempotent, and bailing
			// out here would ack the webhook with nothing recorded.
			u.log.Warn().Err(err).Str("reference", ev.Reference).Msg("reconcile lock unavailable, proceeding without it")
		}
	}

	sess, err := u.sessions.FindByProviderRef(ctx, nil, ev.Reference)
	if errors.Is(err, domain.ErrNotFound) && ev.SessionID != "" {
		// The provider echoed our session id back; a webhook that
		// outraced AttachProviderRefs can still match on it.
		sess, err = u.sessions.FindByID(ctx, nil, ev.SessionID)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, u.deadLetter(ctx, ev)
		}
		return nil, err
	}
	return u.apply(ctx, sess, ev)
}

func (u *reconcileUC) apply(ctx context.Context, sess *model.PaymentSession, ev *model.ProviderEvent) (*Outcome, error) {
	// Absorbing state: duplicate deliveries of paid short-circuit to the
	// existing outcome, and weaker statuses after paid are no-ops.
	if sess.Status == model.SessionStatusPaid {
		entry, err := u.ledger.FindByReference(ctx, nil, refOf(sess, ev))
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		metrics.IncReconcile(sess.Provider, "short_circuit")
		return &Outcome{Session: sess, Ledger: entry, ShortCircuit: true}, nil
	}

	switch ev.Status {
	case model.StatusPending:
		metrics.IncReconcile(sess.Provider, "still_pending")
		return &Outcome{Session: sess}, nil

	case model.StatusFailed:
		if _, err := u.sessions.MarkStatus(ctx, nil, sess.ID, model.SessionStatusFailed); err != nil {
			return nil, err
		}
		sess.Status = model.SessionStatusFailed
		metrics.IncReconcile(sess.Provider, "failed")
		metrics.IncPayment(sess.Provider, "failed")
		return &Outcome{Session: sess}, nil

	case model.StatusPaid:
		return u.confirm(ctx, sess, ev, false)

	default:
		return nil, domain.ErrInvalidArgument
	}
}

// confirm runs the paid transition: session update, ledger upsert,
// entitlement activation and attribution, all in one transaction, then the
// CPA postback off-path after commit. With force set the pending-only
// guard is skipped, so an operator can revive a failed or expired session.
func (u *reconcileUC) confirm(ctx context.Context, sess *model.PaymentSession, ev *model.ProviderEvent, force bool) (*Outcome, error) {
	paidAt := time.Now()
	if ev.PaidAt != nil {
		paidAt = *ev.PaidAt
	}

	out := &Outcome{Session: sess}
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var applied bool
		var err error
		if force {
			applied, err = u.sessions.ForcePaid(ctx, tx, sess.ID)
		} else {
			applied, err = u.sessions.MarkStatus(ctx, tx, sess.ID, model.SessionStatusPaid)
		}
		if err != nil {
			return err
		}
		if !applied {
			// The guard rejected the transition. Re-read and report the
			// stored state instead of guessing: a concurrent confirm
			// means paid, but a session that went failed or expired in
			// the meantime stays that way.
			fresh, err := u.sessions.FindByID(ctx, tx, sess.ID)
			if err != nil {
				return err
			}
			out.Session = fresh
			out.ShortCircuit = fresh.Status == model.SessionStatusPaid
			return nil
		}

		entry, err := u.ledger.UpsertByReference(ctx, tx, &model.LedgerEntry{
			ID:              uuid.NewString(),
			UserID:          sess.UserID,
			Plan:            sess.Plan,
			Amount:          sess.Amount,
			UserEmail:       sess.UserEmail,
			Status:          model.LedgerStatusPaid,
			PaymentID:       pickPaymentID(sess, ev),
			PreferenceID:    refOf(sess, ev),
			TransactionDate: paidAt,
			DurationDays:    sess.Plan.DurationDays(),
			CampaignID:      sess.CampaignID,
		})
		if err != nil {
			return err
		}
		out.Ledger = entry

		expire, err := u.entitle.Activate(ctx, tx, sess.UserID, sess.Plan, paidAt)
		if err != nil {
			// The rollback keeps ledger and entitlement consistent, but
			// the fault class matters upstream: retryable, never dropped.
			metrics.IncInconsistentState(sess.Provider)
			return fmt.Errorf("%w: %v", domain.ErrInconsistentState, err)
		}
		out.Activated = true
		out.ExpireDate = &expire

		if _, err := u.attribution.Link(ctx, tx, sess); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !out.Activated {
		if out.ShortCircuit {
			// A concurrent confirm won the race and did the rest; its
			// ledger row is the outcome.
			entry, ferr := u.ledger.FindByReference(ctx, nil, refOf(out.Session, ev))
			if ferr == nil {
				out.Ledger = entry
			}
			metrics.IncReconcile(sess.Provider, "short_circuit")
		} else {
			metrics.IncReconcile(sess.Provider, "superseded")
		}
		return out, nil
	}

	sess.Status = model.SessionStatusPaid
	metrics.IncReconcile(sess.Provider, "confirmed")
	metrics.IncPayment(sess.Provider, "paid")
	metrics.AddRevenue("BRL", sess.Amount)

	u.attribution.NotifyCPA(sess)

	u.log.Info().
		Str("session_id", sess.ID).
		Str("provider", sess.Provider).
		Str("reference", refOf(sess, ev)).
		Int64("amount", sess.Amount).
		Msg("payment confirmed")
	return out, nil
}

func (u *reconcileUC) PollStatus(ctx context.Context, reference string) (*model.PaymentSession, error) {
	if reference == "" {
		return nil, domain.ErrInvalidArgument
	}
	sess, err := u.sessions.FindByProviderRef(ctx, nil, reference)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return sess, nil
	}

	prov, err := u.registry.Get(sess.Provider)
	if err != nil {
		return nil, err
	}
	ev, err := prov.QueryStatus(ctx, reference)
	if err != nil {
		// Provider unreachable: report the stored state rather than
		// failing the poll.
		u.log.Warn().Err(err).Str("reference", reference).Msg("status query failed")
		return sess, nil
	}

	out, err := u.apply(ctx, sess, ev)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return sess, nil
		}
		return nil, err
	}
	return out.Session, nil
}

func (u *reconcileUC) ForceProcess(ctx context.Context, sessionID string) (*Outcome, error) {
	sess, err := u.sessions.FindByID(ctx, nil, sessionID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	ev := &model.ProviderEvent{
		Provider:  sess.Provider,
		Status:    model.StatusPaid,
		PaymentID: sess.PaymentID,
		Reference: refOf(sess, nil),
		Amount:    sess.Amount,
		PaidAt:    &now,
	}
	u.log.Info().Str("session_id", sessionID).Msg("admin force process")
	if sess.Status == model.SessionStatusPaid {
		return u.apply(ctx, sess, ev)
	}
	return u.confirm(ctx, sess, ev, true)
}

// deadLetter parks an unmatched event instead of dropping it: the webhook
// may have outraced session creation.
func (u *reconcileUC) deadLetter(ctx context.Context, ev *model.ProviderEvent) error {
	d := &model.DeadLetter{
		ID:        uuid.NewString(),
		Provider:  ev.Provider,
		Reference: ev.Reference,
		Payload:   ev.Raw,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := u.deadLetters.Append(ctx, nil, d); err != nil {
		u.log.Error().Err(err).
			Str("provider", ev.Provider).
			Str("reference", ev.Reference).
			Msg("dead-letter append failed")
		return err
	}
	metrics.IncDeadLetter(ev.Provider)
	u.log.Warn().
		Str("provider", ev.Provider).
		Str("reference", ev.Reference).
		Msg("unmatched reference parked for retry")
	return domain.ErrUnmatchedReference
}

// refOf picks the matching key for ledger upserts: the session's stored
// preference id wins, then the event reference.
func refOf(sess *model.PaymentSession, ev *model.ProviderEvent) string {
	if sess.PreferenceID != nil && *sess.PreferenceID != "" {
		return *sess.PreferenceID
	}
	if ev != nil {
		return ev.Reference
	}
	return sess.ID
}

func pickPaymentID(sess *model.PaymentSession, ev *model.ProviderEvent) *int64 {
	if sess.PaymentID != nil {
		return sess.PaymentID
	}
	return ev.PaymentID
}
