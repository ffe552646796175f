package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pix-subscription-billing/internal/domain/model"
	"pix-subscription-billing/internal/domain/ports/adapter"
	"pix-subscription-billing/internal/domain/ports/repository"
	"pix-subscription-billing/internal/infra/worker"
)

var _ AttributionLinker = (*attributionUC)(nil)

// AttributionLinker attaches a successful activation to its marketing
// campaign for conversion accounting.
type AttributionLinker interface {
	// Link upserts the conversion record inside the reconciliation
	// transaction. Returns true when a new conversion was recorded.
	Link(ctx context.Context, tx repository.Tx, s *model.PaymentSession) (bool, error)

	// NotifyCPA reports the conversion to the ad-network postback URL.
	// Fire-and-forget: runs off the request path and its failure never
	// rolls anything back.
	NotifyCPA(s *model.PaymentSession)
}

type attributionUC struct {
	campaigns repository.CampaignRepository
	notifier  adapter.ConversionNotifier
	pool      *worker.Pool
	log       *zerolog.Logger
}

func NewAttributionLinker(campaigns repository.CampaignRepository, notifier adapter.ConversionNotifier, pool *worker.Pool, logger *zerolog.Logger) *attributionUC {
	l := logger.With().Str("component", "AttributionLinker").Logger()
	return &attributionUC{campaigns: campaigns, notifier: notifier, pool: pool, log: &l}
}

func (u *attributionUC) Link(ctx context.Context, tx repository.Tx, s *model.PaymentSession) (bool, error) {
	if !s.HasAttribution() {
		return false, nil
	}
	campaign := s.Campaign
	if campaign == "" {
		campaign = s.CampaignID
	}
	created, err := u.campaigns.RecordConversion(ctx, tx, &model.CampaignConversion{
		UserID:      s.UserID,
		Campaign:    campaign,
		Source:      s.Source,
		AffiliateID: s.AffiliateID,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return false, err
	}
	if !created {
		u.log.Debug().
			Str("user_id", s.UserID).
			Str("campaign", campaign).
			Msg("conversion already recorded")
	}
	return created, nil
}

func (u *attributionUC) NotifyCPA(s *model.PaymentSession) {
	if u.notifier == nil || u.pool == nil || !s.HasAttribution() {
		return
	}
	userID, campaign, amount := s.UserID, s.Campaign, s.Amount
	if campaign == "" {
		campaign = s.CampaignID
	}
	err := u.pool.Submit(func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := u.notifier.NotifyConversion(cctx, userID, campaign, amount); err != nil {
			u.log.Warn().Err(err).
				Str("user_id", userID).
				Str("campaign", campaign).
				Msg("cpa postback failed")
		}
		return nil
	})
	if err != nil {
		u.log.Warn().Err(err).Msg("cpa postback dropped, worker queue full")
	}
}
