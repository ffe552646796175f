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

var _ repository.CampaignRepository = (*campaignRepo)(nil)

type campaignRepo struct{ pool *pgxpool.Pool }

func NewCampaignRepo(pool *pgxpool.Pool) *campaignRepo {
	return &campaignRepo{pool: pool}
}

func (r *campaignRepo) RecordVisit(ctx context.Context, tx repository.Tx, source, campaign string) error {
	if source == "" || campaign == "" {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO campaign_tracking (source, campaign, visits, conversions, updated_at)
VALUES ($1, $2, 1, 0, NOW())
ON CONFLICT (source, campaign) DO UPDATE SET
  visits = campaign_tracking.visits + 1,
  updated_at = NOW();`

	_, err := execSQL(ctx, r.pool, tx, q, source, campaign)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

// RecordConversion inserts the (user_id, campaign) conversion and bumps
// the tracking counter only when the insert actually landed. A repeat
// conversion is reported as false, not an error.
func (r *campaignRepo) RecordConversion(ctx context.Context, tx repository.Tx, c *model.CampaignConversion) (bool, error) {
	if c == nil || c.UserID == "" || c.Campaign == "" {
		return false, domain.ErrInvalidArgument
	}
	const ins = `
INSERT INTO campaign_conversions (user_id, campaign, source, affiliate_id, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, campaign) DO NOTHING;`

	cmd, err := execSQL(ctx, r.pool, tx, ins, c.UserID, c.Campaign, c.Source, c.AffiliateID, c.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return false, nil
	}

	const bump = `
UPDATE campaign_tracking SET conversions = conversions + 1, updated_at = NOW()
 WHERE source = $1 AND campaign = $2;`
	if _, err := execSQL(ctx, r.pool, tx, bump, c.Source, c.Campaign); err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return true, nil
}

func (r *campaignRepo) FindTracking(ctx context.Context, tx repository.Tx, source, campaign string) (*model.CampaignTracking, error) {
	const q = `SELECT source, campaign, visits, conversions, updated_at FROM campaign_tracking WHERE source=$1 AND campaign=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, source, campaign)
	if err != nil {
		return nil, err
	}

	t := &model.CampaignTracking{}
	if err := row.Scan(&t.Source, &t.Campaign, &t.Visits, &t.Conversions, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return t, nil
}
