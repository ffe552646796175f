package repository

import (
	"context"

	"pix-subscription-billing/internal/domain/model"
)

// CampaignRepository is the port for attribution side-records.
type CampaignRepository interface {
	// RecordVisit increments the visit counter for (source, campaign),
	// creating the tracking row on first sight.
	RecordVisit(ctx context.Context, tx Tx, source, campaign string) error

	// RecordConversion inserts the conversion keyed by (user_id,
	// campaign) and bumps the parent tracking counter. Returns false
	// without error when the conversion already exists.
	RecordConversion(ctx context.Context, tx Tx, c *model.CampaignConversion) (bool, error)

	FindTracking(ctx context.Context, tx Tx, source, campaign string) (*model.CampaignTracking, error)
}
