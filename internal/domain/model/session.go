package model

import (
	"time"

	"pix-subscription-billing/internal/domain"
)

type SessionStatus string

const (
	SessionStatusPending SessionStatus = "pending" // charge created, awaiting provider confirmation
	SessionStatusPaid    SessionStatus = "paid"    // terminal; absorbing
	SessionStatusFailed  SessionStatus = "failed"  // terminal
	SessionStatusExpired SessionStatus = "expired" // terminal, time-based
)

// Terminal reports whether no further status transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusPaid || s == SessionStatusFailed || s == SessionStatusExpired
}

// Provider tags for the supported payment rails.
const (
	ProviderMercadoPago = "mercadopago"
	ProviderPushinPay   = "pushinpay"
	ProviderEfi         = "efi"
	ProviderStripe      = "stripe"
)

func KnownProvider(name string) bool {
	switch name {
	case ProviderMercadoPago, ProviderPushinPay, ProviderEfi, ProviderStripe:
		return true
	}
	return false
}

// PaymentSession is an in-flight charge attempt. Sessions are append-then-
// mutate: created as pending, updated by reconciliation, never hard-deleted.
type PaymentSession struct {
	ID     string // ULID, generated at creation; primary correlation key
	UserID string
	Plan   Plan
	Amount int64 // BRL centavos
	Status SessionStatus

	Provider string
	// PaymentID is the provider numeric charge id (MercadoPago). Nil for
	// providers whose ids are strings.
	PaymentID *int64
	// PreferenceID is the provider string reference: PushinPay UUID, EFI
	// txid, Stripe checkout session id or MercadoPago preference. This is
	// the field reconciliation matches on, because providers disagree on
	// whether their id is numeric or a string.
	PreferenceID *string

	UserEmail     string
	CampaignID    string
	PromotionCode string
	AffiliateID   string
	Source        string
	Campaign      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPaymentSession validates and constructs a pending session.
func NewPaymentSession(id, userID string, plan Plan, amount int64, provider, email string) (*PaymentSession, error) {
	if id == "" || userID == "" || !plan.Valid() || amount <= 0 || !KnownProvider(provider) {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &PaymentSession{
		ID:        id,
		UserID:    userID,
		Plan:      plan,
		Amount:    amount,
		Status:    SessionStatusPending,
		Provider:  provider,
		UserEmail: email,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HasAttribution reports whether the session carries campaign metadata
// worth linking on activation.
func (s *PaymentSession) HasAttribution() bool {
	return s.Campaign != "" || s.CampaignID != "" || s.AffiliateID != ""
}
