package adapter

import (
	"context"
	"net/http"
	"time"

	"pix-subscription-billing/internal/domain/model"
)

// ChargeRequest is the provider-neutral shape all adapters consume.
type ChargeRequest struct {
	SessionID  string // internal correlation id; set as external_reference where supported
	UserID     string
	Amount     int64 // centavos
	Plan       model.Plan
	PayerEmail string
}

// ChargeResult carries the provider references back to the session store.
type ChargeResult struct {
	PaymentID   *int64 // numeric charge id (MercadoPago); nil otherwise
	Reference   string // string reference used for matching
	QRPayload   string // PIX copy-and-paste payload, empty for card checkouts
	CheckoutURL string // hosted checkout (Stripe), empty for PIX
	ExpiresAt   time.Time
}

// PaymentProvider is the hex port for payment rails. Each implementation
// owns the mapping from its wire format to the normalized event type; the
// reconciliation engine never sees raw provider payloads.
type PaymentProvider interface {
	Name() string

	// CreateCharge initiates a charge. A provider error surfaces as
	// ErrProviderUnavailable-wrapped and leaves no provider references
	// behind; a malformed response (missing QR payload) fails the call
	// entirely.
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)

	// QueryStatus polls the provider for the authoritative state of a
	// charge, returning a normalized event.
	QueryStatus(ctx context.Context, reference string) (*model.ProviderEvent, error)

	// ParseWebhook validates and normalizes an inbound webhook request.
	// Transport-level trust checks (signatures, source IPs, server-side
	// re-validation) happen here; an untrusted payload returns
	// ErrUnauthorizedWebhook and is never processed.
	ParseWebhook(ctx context.Context, r *http.Request, body []byte) (*model.ProviderEvent, error)
}

// Registry holds one adapter instance per provider. The active selection
// is explicit configuration handed to the charge use case, not ambient
// mutable state.
type Registry interface {
	Get(name string) (PaymentProvider, error)
	Default() PaymentProvider
	Names() []string
}
