package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"pix-subscription-billing/internal/domain"
	"pix-subscription-billing/internal/domain/model"
	"pix-subscription-billing/internal/domain/ports/adapter"
)

// MercadoPagoConfig holds the adapter's credentials and knobs.
type MercadoPagoConfig struct {
	AccessToken string `yaml:"access_token"`
	// WebhookSecret enables HMAC verification of inbound webhooks. Empty
	// disables the check (the provider console may not have one set).
	WebhookSecret string        `yaml:"webhook_secret"`
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	QRExpiry      time.Duration `yaml:"qr_expiry"`
}

var _ adapter.PaymentProvider = (*MercadoPagoAdapter)(nil)

// MercadoPagoAdapter creates PIX charges through the payments API. The
// numeric payment id doubles as the lookup key; external_reference carries
// the internal session id so webhooks match back without string parsing.
type MercadoPagoAdapter struct {
	cfg    MercadoPagoConfig
	client *http.Client
}

func NewMercadoPagoAdapter(cfg MercadoPagoConfig) *MercadoPagoAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.mercadopago.com"
	}
	if cfg.QRExpiry <= 0 {
		cfg.QRExpiry = time.Hour
	}
	return &MercadoPagoAdapter{cfg: cfg, client: newHTTPClient(cfg.Timeout)}
}

func (a *MercadoPagoAdapter) Name() string { return model.ProviderMercadoPago }

type mpPaymentResponse struct {
	ID                 int64   `json:"id"`
	Status             string  `json:"status"`
	ExternalReference  string  `json:"external_reference"`
	TransactionAmount  float64 `json:"transaction_amount"`
	DateApproved       string  `json:"date_approved"`
	DateOfExpiration   string  `json:"date_of_expiration"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
			TicketURL    string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

func (a *MercadoPagoAdapter) CreateCharge(ctx context.Context, req adapter.ChargeRequest) (*adapter.ChargeResult, error) {
	expiresAt := time.Now().Add(a.cfg.QRExpiry)
	body := map[string]interface{}{
		"transaction_amount": float64(req.Amount) / 100,
		"description":        fmt.Sprintf("premium %s", req.Plan),
		"payment_method_id":  "pix",
		"external_reference": req.SessionID,
		"date_of_expiration": expiresAt.Format("2006-01-02T15:04:05.000-07:00"),
		"payer": map[string]interface{}{
			"email": req.PayerEmail,
		},
	}
	headers := map[string]string{
		"Authorization":     "Bearer " + a.cfg.AccessToken,
		"X-Idempotency-Key": uuid.NewString(),
	}

	var resp mpPaymentResponse
	if err := doJSON(ctx, a.client, http.MethodPost, a.cfg.BaseURL+"/v1/payments", headers, body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == 0 || resp.PointOfInteraction.TransactionData.QRCode == "" {
		return nil, fmt.Errorf("mercadopago: charge response missing id or qr payload")
	}

	id := resp.ID
	return &adapter.ChargeResult{
		PaymentID: &id,
		Reference: strconv.FormatInt(id, 10),
		QRPayload: resp.PointOfInteraction.TransactionData.QRCode,
		ExpiresAt: expiresAt,
	}, nil
}

func (a *MercadoPagoAdapter) QueryStatus(ctx context.Context, reference string) (*model.ProviderEvent, error) {
	headers := map[string]string{"Authorization": "Bearer " + a.cfg.AccessToken}
	var resp mpPaymentResponse
	if err := doJSON(ctx, a.client, http.MethodGet, a.cfg.BaseURL+"/v1/payments/"+reference, headers, nil, &resp); err != nil {
		return nil, err
	}
	return a.normalize(&resp, nil), nil
}

// ParseWebhook accepts both notification shapes the provider sends: the
// event envelope {action,type,data:{id}} and the flat {id,status,
// external_reference} body. The envelope carries no status, so it is
// resolved with a server-side query rather than trusted from the payload.
func (a *MercadoPagoAdapter) ParseWebhook(ctx context.Context, r *http.Request, body []byte) (*model.ProviderEvent, error) {
	if a.cfg.WebhookSecret != "" {
		if !verifyHMAC(a.cfg.WebhookSecret, body, r.Header.Get("X-Signature")) {
			return nil, domain.ErrUnauthorizedWebhook
		}
	}

	var envelope struct {
		Action string `json:"action"`
		Type   string `json:"type"`
		Data   struct {
			ID string `json:"id"`
		} `json:"data"`
		ID                json.Number `json:"id"`
		Status            string      `json:"status"`
		ExternalReference string      `json:"external_reference"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("mercadopago: parse webhook: %w", err)
	}

	if envelope.Data.ID != "" {
		return a.QueryStatus(ctx, envelope.Data.ID)
	}

	idStr := envelope.ID.String()
	if idStr == "" || envelope.Status == "" {
		return nil, fmt.Errorf("mercadopago: webhook missing id or status: %w", domain.ErrInvalidArgument)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("mercadopago: webhook id %q: %w", idStr, domain.ErrInvalidArgument)
	}
	ev := &model.ProviderEvent{
		Provider:  model.ProviderMercadoPago,
		Status:    normalizeMPStatus(envelope.Status),
		PaymentID: &id,
		Reference: idStr,
		SessionID: envelope.ExternalReference,
		Raw:       body,
	}
	return ev, nil
}

func (a *MercadoPagoAdapter) normalize(resp *mpPaymentResponse, raw []byte) *model.ProviderEvent {
	var paidAt *time.Time
	if resp.DateApproved != "" {
		if t, err := time.Parse(time.RFC3339, resp.DateApproved); err == nil {
			paidAt = &t
		}
	}
	id := resp.ID
	return &model.ProviderEvent{
		Provider:  model.ProviderMercadoPago,
		Status:    normalizeMPStatus(resp.Status),
		PaymentID: &id,
		Reference: strconv.FormatInt(id, 10),
		SessionID: resp.ExternalReference,
		Amount:    int64(resp.TransactionAmount*100 + 0.5),
		PaidAt:    paidAt,
		Raw:       raw,
	}
}

func normalizeMPStatus(s string) model.NormalizedStatus {
	switch strings.ToLower(s) {
	case "approved":
		return model.StatusPaid
	case "rejected", "cancelled", "refunded", "charged_back":
		return model.StatusFailed
	default: // pending, in_process, authorized, anything new
		return model.StatusPending
	}
}

// verifyHMAC checks an HMAC-SHA256 hex signature over the raw body.
func verifyHMAC(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}
