package model

import "time"

type LedgerStatus string

const (
	LedgerStatusPending LedgerStatus = "pending"
	LedgerStatusPaid    LedgerStatus = "paid"
)

// LedgerEntry is the durable record of a charge outcome, decoupled from the
// session lifecycle: it survives even if the session is lost. Rows are
// upserted by PreferenceID and a paid row is never downgraded.
type LedgerEntry struct {
	ID        string // UUID
	UserID    string
	Plan      Plan
	Amount    int64 // BRL centavos
	UserEmail string
	Status    LedgerStatus

	PaymentID    *int64 // provider numeric charge id, when one exists
	PreferenceID string // provider correlation string; unique in storage

	TransactionDate time.Time
	DurationDays    int // derived from plan at creation time
	CampaignID      string
}

// DuplicateGroup identifies ledger rows that are copies of the same charge:
// same provider payment id, user, amount and plan. The earliest
// TransactionDate in a group is canonical.
type DuplicateGroup struct {
	PaymentID int64
	UserID    string
	Amount    int64
	Plan      Plan

	KeepID    string   // canonical (earliest) row, never deleted
	DeleteIDs []string // proposed deletions
}
