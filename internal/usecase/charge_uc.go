package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"pix-subscription-billing/internal/domain"
	"pix-subscription-billing/internal/domain/model"
	"pix-subscription-billing/internal/domain/ports/adapter"
	"pix-subscription-billing/internal/domain/ports/repository"
	"pix-subscription-billing/internal/infra/metrics"
)

// ChargeInput is the provider-neutral charge request.
type ChargeInput struct {
	UserID     string
	Amount     int64 // centavos
	Plan       string
	PayerEmail string
	Provider   string // empty selects the configured default

	CampaignID    string
	PromotionCode string
	AffiliateID   string
	Source        string
	Campaign      string
}

// ChargeOutput is what the payment UI needs to render a QR code or
// redirect to a hosted checkout.
type ChargeOutput struct {
	SessionID   string
	Provider    string
	PaymentID   *int64
	Reference   string
	QRPayload   string
	CheckoutURL string
	ExpiresAt   time.Time
}

var _ ChargeUseCase = (*chargeUC)(nil)

type ChargeUseCase interface {
	CreateCharge(ctx context.Context, in ChargeInput) (*ChargeOutput, error)
}

type chargeUC struct {
	sessions  repository.SessionRepository
	campaigns repository.CampaignRepository
	registry  adapter.Registry
	log       *zerolog.Logger
}

func NewChargeUseCase(sessions repository.SessionRepository, campaigns repository.CampaignRepository, registry adapter.Registry, logger *zerolog.Logger) *chargeUC {
	l := logger.With().Str("component", "ChargeUseCase").Logger()
	return &chargeUC{sessions: sessions, campaigns: campaigns, registry: registry, log: &l}
}

func (u *chargeUC) CreateCharge(ctx context.Context, in ChargeInput) (*ChargeOutput, error) {
	plan, err := model.ParsePlan(in.Plan)
	if err != nil {
		return nil, fmt.Errorf("plan %q: %w", in.Plan, domain.ErrInvalidArgument)
	}

	var prov adapter.PaymentProvider
	if in.Provider == "" {
		prov = u.registry.Default()
	} else if prov, err = u.registry.Get(in.Provider); err != nil {
		return nil, err
	}

	sess, err := model.NewPaymentSession(ulid.Make().String(), in.UserID, plan, in.Amount, prov.Name(), in.PayerEmail)
	if err != nil {
		return nil, err
	}
	sess.CampaignID = in.CampaignID
	sess.PromotionCode = in.PromotionCode
	sess.AffiliateID = in.AffiliateID
	sess.Source = in.Source
	sess.Campaign = in.Campaign

	// The session row exists before the provider is called, so an inbound
	// webhook can always find something to match; a provider failure
	// closes it out as failed rather than leaving a pending orphan.
	if err := u.sessions.Create(ctx, nil, sess); err != nil {
		return nil, err
	}

	res, err := prov.CreateCharge(ctx, adapter.ChargeRequest{
		SessionID:  sess.ID,
		UserID:     sess.UserID,
		Amount:     sess.Amount,
		Plan:       sess.Plan,
		PayerEmail: sess.UserEmail,
	})
	if err != nil {
		if _, merr := u.sessions.MarkStatus(ctx, nil, sess.ID, model.SessionStatusFailed); merr != nil {
			u.log.Error().Err(merr).Str("session_id", sess.ID).Msg("failed to close session after provider error")
		}
		metrics.IncPayment(prov.Name(), "create_failed")
		if errors.Is(err, domain.ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	if err := u.sessions.AttachProviderRefs(ctx, nil, sess.ID, res.PaymentID, res.Reference); err != nil {
		return nil, err
	}

	if sess.Source != "" && sess.Campaign != "" {
		if err := u.campaigns.RecordVisit(ctx, nil, sess.Source, sess.Campaign); err != nil {
			u.log.Warn().Err(err).Str("campaign", sess.Campaign).Msg("visit tracking failed")
		}
	}

	metrics.IncPayment(prov.Name(), "initiated")
	u.log.Info().
		Str("session_id", sess.ID).
		Str("provider", prov.Name()).
		Str("plan", string(plan)).
		Int64("amount", sess.Amount).
		Msg("charge created")

	return &ChargeOutput{
		SessionID:   sess.ID,
		Provider:    prov.Name(),
		PaymentID:   res.PaymentID,
		Reference:   res.Reference,
		QRPayload:   res.QRPayload,
		CheckoutURL: res.CheckoutURL,
		ExpiresAt:   res.ExpiresAt,
	}, nil
}
