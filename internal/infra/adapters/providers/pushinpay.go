package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pix-subscription-billing/internal/domain"
	"pix-subscription-billing/internal/domain/model"
	"pix-subscription-billing/internal/domain/ports/adapter"
)

type PushinPayConfig struct {
	Token      string `yaml:"token"`
	WebhookURL string `yaml:"webhook_url"`
	// WebhookToken, when set, must match the token header on inbound
	// webhooks.
	WebhookToken string        `yaml:"webhook_token"`
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	QRExpiry     time.Duration `yaml:"qr_expiry"`
}

var _ adapter.PaymentProvider = (*PushinPayAdapter)(nil)

// PushinPayAdapter speaks the cash-in PIX API. Charge ids are UUID-like
// strings and the only correlation key; webhooks are observed to vary the
// casing, which the session lookup accounts for.
type PushinPayAdapter struct {
	cfg    PushinPayConfig
	client *http.Client
}

func NewPushinPayAdapter(cfg PushinPayConfig) *PushinPayAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.pushinpay.com.br"
	}
	if cfg.QRExpiry <= 0 {
		cfg.QRExpiry = 30 * time.Minute
	}
	return &PushinPayAdapter{cfg: cfg, client: newHTTPClient(cfg.Timeout)}
}

func (a *PushinPayAdapter) Name() string { return model.ProviderPushinPay }

type pushinPayTx struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Value      int64  `json:"value"`
	QRCode     string `json:"qr_code"`
	EndToEndID string `json:"end_to_end_id"`
	PaidAt     string `json:"paid_at"`
}

func (a *PushinPayAdapter) CreateCharge(ctx context.Context, req adapter.ChargeRequest) (*adapter.ChargeResult, error) {
	body := map[string]interface{}{
		"value":       req.Amount,
		"webhook_url": a.cfg.WebhookURL,
	}
	headers := map[string]string{"Authorization": "Bearer " + a.cfg.Token}

	var resp pushinPayTx
	if err := doJSON(ctx, a.client, http.MethodPost, a.cfg.BaseURL+"/api/pix/cashIn", headers, body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" || resp.QRCode == "" {
		return nil, fmt.Errorf("pushinpay: charge response missing id or qr payload")
	}
	return &adapter.ChargeResult{
		Reference: resp.ID,
		QRPayload: resp.QRCode,
		ExpiresAt: time.Now().Add(a.cfg.QRExpiry),
	}, nil
}

func (a *PushinPayAdapter) QueryStatus(ctx context.Context, reference string) (*model.ProviderEvent, error) {
	headers := map[string]string{"Authorization": "Bearer " + a.cfg.Token}
	var resp pushinPayTx
	if err := doJSON(ctx, a.client, http.MethodGet, a.cfg.BaseURL+"/api/transactions/"+reference, headers, nil, &resp); err != nil {
		return nil, err
	}
	return normalizePushinPay(&resp, nil), nil
}

func (a *PushinPayAdapter) ParseWebhook(_ context.Context, r *http.Request, body []byte) (*model.ProviderEvent, error) {
	if a.cfg.WebhookToken != "" && r.Header.Get("X-Webhook-Token") != a.cfg.WebhookToken {
		return nil, domain.ErrUnauthorizedWebhook
	}
	var tx pushinPayTx
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, fmt.Errorf("pushinpay: parse webhook: %w", err)
	}
	if tx.ID == "" {
		return nil, fmt.Errorf("pushinpay: webhook missing id: %w", domain.ErrInvalidArgument)
	}
	return normalizePushinPay(&tx, body), nil
}

func normalizePushinPay(tx *pushinPayTx, raw []byte) *model.ProviderEvent {
	var paidAt *time.Time
	if tx.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, tx.PaidAt); err == nil {
			paidAt = &t
		}
	}
	var status model.NormalizedStatus
	switch strings.ToLower(tx.Status) {
	case "paid", "approved":
		status = model.StatusPaid
	case "expired", "canceled", "cancelled", "refunded":
		status = model.StatusFailed
	default: // created, pending
		status = model.StatusPending
	}
	return &model.ProviderEvent{
		Provider:  model.ProviderPushinPay,
		Status:    status,
		Reference: tx.ID,
		Amount:    tx.Value,
		PaidAt:    paidAt,
		Raw:       raw,
	}
}
