package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pix-subscription-billing/internal/domain"
	"pix-subscription-billing/internal/domain/model"
	"pix-subscription-billing/internal/domain/ports/adapter"
)

type StripeConfig struct {
	SecretKey  string        `yaml:"secret_key"`
	SuccessURL string        `yaml:"success_url"`
	CancelURL  string        `yaml:"cancel_url"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

var _ adapter.PaymentProvider = (*StripeAdapter)(nil)

// StripeAdapter creates one-shot checkout sessions (payment mode, not
// subscriptions). The checkout session id is the charge reference. Webhook
// bodies are treated as hints only: the authoritative status is always
// re-fetched from the API before anything is trusted.
type StripeAdapter struct {
	cfg    StripeConfig
	client *http.Client
}

func NewStripeAdapter(cfg StripeConfig) *StripeAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.stripe.com"
	}
	return &StripeAdapter{cfg: cfg, client: newHTTPClient(cfg.Timeout)}
}

func (a *StripeAdapter) Name() string { return model.ProviderStripe }

type stripeSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	AmountTotal   int64  `json:"amount_total"`
	ExpiresAt     int64  `json:"expires_at"`
}

// postForm sends the form-encoded body the Stripe API expects.
func (a *StripeAdapter) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(a.cfg.SecretKey, "")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(req, out)
}

func (a *StripeAdapter) do(req *http.Request, out interface{}) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", domain.ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stripe status %d: %s", resp.StatusCode, string(b))
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func (a *StripeAdapter) CreateCharge(ctx context.Context, req adapter.ChargeRequest) (*adapter.ChargeResult, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", req.SessionID)
	form.Set("customer_email", req.PayerEmail)
	form.Set("success_url", a.cfg.SuccessURL)
	form.Set("cancel_url", a.cfg.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", "brl")
	form.Set("line_items[0][price_data][unit_amount]", fmt.Sprintf("%d", req.Amount))
	form.Set("line_items[0][price_data][product_data][name]", fmt.Sprintf("premium %s", req.Plan))

	var resp stripeSession
	if err := a.postForm(ctx, "/v1/checkout/sessions", form, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" || resp.URL == "" {
		return nil, fmt.Errorf("stripe: session response missing id or checkout url")
	}
	expiresAt := time.Now().Add(24 * time.Hour)
	if resp.ExpiresAt > 0 {
		expiresAt = time.Unix(resp.ExpiresAt, 0)
	}
	return &adapter.ChargeResult{
		Reference:   resp.ID,
		CheckoutURL: resp.URL,
		ExpiresAt:   expiresAt,
	}, nil
}

func (a *StripeAdapter) QueryStatus(ctx context.Context, reference string) (*model.ProviderEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/v1/checkout/sessions/"+reference, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(a.cfg.SecretKey, "")

	var resp stripeSession
	if err := a.do(req, &resp); err != nil {
		return nil, err
	}
	return normalizeStripe(&resp, nil), nil
}

// ParseWebhook extracts the session id from either the event envelope or
// a flat {session_id} body, then asks the API for the real state. The
// payload's own status claims are never trusted.
func (a *StripeAdapter) ParseWebhook(ctx context.Context, _ *http.Request, body []byte) (*model.ProviderEvent, error) {
	var envelope struct {
		Data struct {
			Object struct {
				ID string `json:"id"`
			} `json:"object"`
		} `json:"data"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("stripe: parse webhook: %w", err)
	}
	id := envelope.Data.Object.ID
	if id == "" {
		id = envelope.SessionID
	}
	if id == "" {
		return nil, fmt.Errorf("stripe: webhook missing session id: %w", domain.ErrInvalidArgument)
	}
	ev, err := a.QueryStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	ev.Raw = body
	return ev, nil
}

// normalizeStripe: paid only when payment_status=paid AND the session is
// complete; an expired session is a failure; anything else is pending.
func normalizeStripe(s *stripeSession, raw []byte) *model.ProviderEvent {
	var status model.NormalizedStatus
	switch {
	case s.PaymentStatus == "paid" && s.Status == "complete":
		status = model.StatusPaid
	case s.Status == "expired":
		status = model.StatusFailed
	default:
		status = model.StatusPending
	}
	return &model.ProviderEvent{
		Provider:  model.ProviderStripe,
		Status:    status,
		Reference: s.ID,
		Amount:    s.AmountTotal,
		Raw:       raw,
	}
}
