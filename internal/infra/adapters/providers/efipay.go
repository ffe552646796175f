package providers

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"pix-subscription-billing/internal/domain"
	"pix-subscription-billing/internal/domain/model"
	"pix-subscription-billing/internal/domain/ports/adapter"
)

type EfiConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	PixKey       string `yaml:"pix_key"`
	// CertFile/KeyFile hold the client certificate the API requires
	// (mTLS channel).
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	// AllowedIPs is the inbound webhook origin allow-list. The provider
	// publishes its webhook egress addresses; an empty list disables the
	// check (dev only).
	AllowedIPs []string      `yaml:"allowed_ips"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	QRExpiry   time.Duration `yaml:"qr_expiry"`
}

var _ adapter.PaymentProvider = (*EfiAdapter)(nil)

// EfiAdapter speaks the cob (PIX charge) API over the provider's mTLS
// channel. Charges are keyed by txid; the internal session id is the txid,
// which keeps matching trivial. This is the only provider with a
// transport-level trust check on webhooks: a configurable source IP
// allow-list.
type EfiAdapter struct {
	cfg    EfiConfig
	client *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewEfiAdapter(cfg EfiConfig) (*EfiAdapter, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://pix.api.efipay.com.br"
	}
	if cfg.QRExpiry <= 0 {
		cfg.QRExpiry = time.Hour
	}
	client := newHTTPClient(cfg.Timeout)
	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("efi: load client certificate: %w", err)
		}
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
		}
	}
	return &EfiAdapter{cfg: cfg, client: client}, nil
}

func (a *EfiAdapter) Name() string { return model.ProviderEfi }

// token returns a cached OAuth access token, refreshing when within a
// minute of expiry.
func (a *EfiAdapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.accessToken != "" && time.Until(a.tokenExpiry) > time.Minute {
		return a.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/oauth/token",
		strings.NewReader(`{"grant_type":"client_credentials"}`))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(a.cfg.ClientID, a.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: oauth status %d", domain.ErrProviderUnavailable, resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("efi: decode token: %w", err)
	}
	a.accessToken = tok.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return a.accessToken, nil
}

type efiCob struct {
	Txid   string `json:"txid"`
	Status string `json:"status"`
	Valor  struct {
		Original string `json:"original"`
	} `json:"valor"`
	Calendario struct {
		Expiracao int `json:"expiracao"`
	} `json:"calendario"`
	PixCopiaECola string `json:"pixCopiaECola"`
	Pix           []struct {
		EndToEndID string `json:"endToEndId"`
		Valor      string `json:"valor"`
		Horario    string `json:"horario"`
	} `json:"pix"`
}

func (a *EfiAdapter) CreateCharge(ctx context.Context, req adapter.ChargeRequest) (*adapter.ChargeResult, error) {
	tok, err := a.token(ctx)
	if err != nil {
		return nil, err
	}

	// txid must be 26-35 alphanumeric chars; the session ULID fits.
	txid := req.SessionID
	expiry := int(a.cfg.QRExpiry / time.Second)
	body := map[string]interface{}{
		"calendario":         map[string]interface{}{"expiracao": expiry},
		"valor":              map[string]interface{}{"original": centavosToDecimal(req.Amount)},
		"chave":              a.cfg.PixKey,
		"solicitacaoPagador": fmt.Sprintf("premium %s", req.Plan),
	}
	headers := map[string]string{"Authorization": "Bearer " + tok}

	var resp efiCob
	if err := doJSON(ctx, a.client, http.MethodPut, a.cfg.BaseURL+"/v2/cob/"+txid, headers, body, &resp); err != nil {
		return nil, err
	}
	if resp.Txid == "" || resp.PixCopiaECola == "" {
		return nil, fmt.Errorf("efi: charge response missing txid or qr payload")
	}
	return &adapter.ChargeResult{
		Reference: resp.Txid,
		QRPayload: resp.PixCopiaECola,
		ExpiresAt: time.Now().Add(a.cfg.QRExpiry),
	}, nil
}

func (a *EfiAdapter) QueryStatus(ctx context.Context, reference string) (*model.ProviderEvent, error) {
	tok, err := a.token(ctx)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{"Authorization": "Bearer " + tok}
	var resp efiCob
	if err := doJSON(ctx, a.client, http.MethodGet, a.cfg.BaseURL+"/v2/cob/"+reference, headers, nil, &resp); err != nil {
		return nil, err
	}
	return a.normalizeCob(&resp, nil), nil
}

// ParseWebhook enforces the source-IP allow-list, then treats each entry
// in the pix array as a settlement notice for its txid.
func (a *EfiAdapter) ParseWebhook(_ context.Context, r *http.Request, body []byte) (*model.ProviderEvent, error) {
	if len(a.cfg.AllowedIPs) > 0 && !a.allowedOrigin(r) {
		return nil, domain.ErrUnauthorizedWebhook
	}

	var payload struct {
		Pix []struct {
			Txid    string `json:"txid"`
			Valor   string `json:"valor"`
			Horario string `json:"horario"`
		} `json:"pix"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("efi: parse webhook: %w", err)
	}
	if len(payload.Pix) == 0 || payload.Pix[0].Txid == "" {
		return nil, fmt.Errorf("efi: webhook missing pix entries: %w", domain.ErrInvalidArgument)
	}

	p := payload.Pix[0]
	var paidAt *time.Time
	if t, err := time.Parse(time.RFC3339, p.Horario); err == nil {
		paidAt = &t
	}
	return &model.ProviderEvent{
		Provider:  model.ProviderEfi,
		Status:    model.StatusPaid, // a pix entry only exists once settled
		Reference: p.Txid,
		Amount:    decimalToCentavos(p.Valor),
		PaidAt:    paidAt,
		Raw:       body,
	}, nil
}

func (a *EfiAdapter) allowedOrigin(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	for _, ip := range a.cfg.AllowedIPs {
		if host == ip {
			return true
		}
	}
	return false
}

func (a *EfiAdapter) normalizeCob(cob *efiCob, raw []byte) *model.ProviderEvent {
	var status model.NormalizedStatus
	switch strings.ToUpper(cob.Status) {
	case "CONCLUIDA":
		status = model.StatusPaid
	case "REMOVIDA_PELO_USUARIO_RECEBEDOR", "REMOVIDA_PELO_PSP":
		status = model.StatusFailed
	default: // ATIVA
		status = model.StatusPending
	}
	var paidAt *time.Time
	var amount int64
	if len(cob.Pix) > 0 {
		if t, err := time.Parse(time.RFC3339, cob.Pix[0].Horario); err == nil {
			paidAt = &t
		}
		amount = decimalToCentavos(cob.Pix[0].Valor)
	}
	if amount == 0 {
		amount = decimalToCentavos(cob.Valor.Original)
	}
	return &model.ProviderEvent{
		Provider:  model.ProviderEfi,
		Status:    status,
		Reference: cob.Txid,
		Amount:    amount,
		PaidAt:    paidAt,
		Raw:       raw,
	}
}

// centavosToDecimal renders "19.90" style strings the API expects.
func centavosToDecimal(v int64) string {
	return fmt.Sprintf("%d.%02d", v/100, v%100)
}

func decimalToCentavos(s string) int64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f*100 + 0.5)
}
