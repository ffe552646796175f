package model

import "time"

// CampaignTracking is the visit/conversion counter for a traffic source,
// keyed by (source, campaign).
type CampaignTracking struct {
	Source      string
	Campaign    string
	Visits      int64
	Conversions int64
	UpdatedAt   time.Time
}

// CampaignConversion records a single user's attributed conversion, keyed
// by (user_id, campaign). Creation is existence-checked at the storage
// layer (unique constraint), never duplicated.
type CampaignConversion struct {
	UserID      string
	Campaign    string
	Source      string
	AffiliateID string
	CreatedAt   time.Time
}
