package model

import (
	"encoding/json"
	"time"
)

// NormalizedStatus is the three-state vocabulary reconciliation operates
// on. Each provider adapter owns the mapping from its own status strings
// (e.g. MercadoPago "approved", EFI "CONCLUIDA") into this type.
type NormalizedStatus string

const (
	StatusPending NormalizedStatus = "pending"
	StatusPaid    NormalizedStatus = "paid"
	StatusFailed  NormalizedStatus = "failed"
)

// ProviderEvent is the single shape the reconciliation engine sees,
// regardless of whether it originated from a webhook push, a client poll
// or an admin reprocess. Adapters parse raw payloads into this type; the
// engine never touches provider wire formats.
type ProviderEvent struct {
	Provider  string
	Status    NormalizedStatus
	PaymentID *int64 // numeric charge id, when the provider has one
	Reference string // string reference used for session matching
	SessionID string // our session id echoed back by the provider, when it carries one
	Amount    int64  // centavos, 0 when the payload omits it
	PaidAt    *time.Time
	Raw       json.RawMessage // original payload, kept for dead-lettering
}

// DeadLetter is an unmatched provider event parked for retry instead of
// being dropped: a webhook can outrace the session row it references.
type DeadLetter struct {
	ID        string
	Provider  string
	Reference string
	Payload   json.RawMessage
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}
