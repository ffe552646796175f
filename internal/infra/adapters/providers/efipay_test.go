package providers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"pix-subscription-billing/internal/domain"
	"pix-subscription-billing/internal/domain/model"
	"pix-subscription-billing/internal/domain/ports/adapter"
	"pix-subscription-billing/internal/infra/adapters/providers"
)

// efiHandler answers the oauth handshake and delegates everything else.
func efiHandler(t *testing.T, rest http.HandlerFunc) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			user, pass, ok := r.BasicAuth()
			if !ok || user != "client-id" || pass != "client-secret" {
				t.Errorf("oauth credentials not forwarded, got %q/%q", user, pass)
			}
			fmt.Fprint(w, `{"access_token":"efi-tok","expires_in":3600}`)
			return
		}
		if r.Header.Get("Authorization") != "Bearer efi-tok" {
			t.Errorf("missing oauth bearer, got %q", r.Header.Get("Authorization"))
		}
		rest(w, r)
	}
}

func newEfiServer(t *testing.T, rest http.HandlerFunc) *providers.EfiAdapter {
	t.Helper()
	srv := httptest.NewServer(efiHandler(t, rest))
	t.Cleanup(srv.Close)
	a, err := providers.NewEfiAdapter(providers.EfiConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		PixKey:       "pix@example.test",
		BaseURL:      srv.URL,
	})
	if err != nil {
		t.Fatalf("NewEfiAdapter: %v", err)
	}
	return a
}

func TestEfiCreateCharge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("puts cob keyed by session id", func(t *testing.T) {
		var gotBody map[string]interface{}
		a := newEfiServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPut || r.URL.Path != "/v2/cob/01J5SESSIONULIDSESSIONULID" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			fmt.Fprint(w, `{"txid":"01J5SESSIONULIDSESSIONULID","status":"ATIVA","pixCopiaECola":"000201pixdata"}`)
		})

		res, err := a.CreateCharge(ctx, adapter.ChargeRequest{
			SessionID: "01J5SESSIONULIDSESSIONULID", Amount: 1990, Plan: model.PlanMonthly,
		})
		if err != nil {
			t.Fatalf("CreateCharge: %v", err)
		}
		if res.Reference != "01J5SESSIONULIDSESSIONULID" || res.QRPayload != "000201pixdata" {
			t.Fatalf("unexpected result %+v", res)
		}
		valor, _ := gotBody["valor"].(map[string]interface{})
		if valor["original"] != "19.90" {
			t.Errorf("want decimal string 19.90, got %v", valor["original"])
		}
		if gotBody["chave"] != "pix@example.test" {
			t.Errorf("want configured pix key, got %v", gotBody["chave"])
		}
	})

	t.Run("oauth failure maps to provider unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		t.Cleanup(srv.Close)
		a, err := providers.NewEfiAdapter(providers.EfiConfig{ClientID: "c", ClientSecret: "s", BaseURL: srv.URL})
		if err != nil {
			t.Fatalf("NewEfiAdapter: %v", err)
		}
		_, err = a.CreateCharge(ctx, adapter.ChargeRequest{SessionID: "s", Amount: 100})
		if !errors.Is(err, domain.ErrProviderUnavailable) {
			t.Fatalf("want ErrProviderUnavailable, got %v", err)
		}
	})

	t.Run("response without qr payload fails", func(t *testing.T) {
		a := newEfiServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"txid":"abc","status":"ATIVA"}`)
		})
		if _, err := a.CreateCharge(ctx, adapter.ChargeRequest{SessionID: "abc", Amount: 100}); err == nil {
			t.Fatal("want error for missing qr payload")
		}
	})
}

func TestEfiStatusNormalization(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cases := []struct {
		name string
		body string
		want model.NormalizedStatus
	}{
		{
			"concluida with pix entry",
			`{"txid":"abc","status":"CONCLUIDA","valor":{"original":"19.90"},"pix":[{"endToEndId":"E1","valor":"19.90","horario":"2026-03-01T12:00:00Z"}]}`,
			model.StatusPaid,
		},
		{
			"removida pelo usuario",
			`{"txid":"abc","status":"REMOVIDA_PELO_USUARIO_RECEBEDOR","valor":{"original":"19.90"}}`,
			model.StatusFailed,
		},
		{
			"removida pelo psp",
			`{"txid":"abc","status":"REMOVIDA_PELO_PSP","valor":{"original":"19.90"}}`,
			model.StatusFailed,
		},
		{
			"ativa pending",
			`{"txid":"abc","status":"ATIVA","valor":{"original":"19.90"}}`,
			model.StatusPending,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := newEfiServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v2/cob/abc" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				fmt.Fprint(w, tc.body)
			})
			ev, err := a.QueryStatus(ctx, "abc")
			if err != nil {
				t.Fatalf("QueryStatus: %v", err)
			}
			if ev.Status != tc.want {
				t.Fatalf("want %s, got %s", tc.want, ev.Status)
			}
			if ev.Amount != 1990 {
				t.Fatalf("want amount from decimal string 1990, got %d", ev.Amount)
			}
			if tc.want == model.StatusPaid && ev.PaidAt == nil {
				t.Fatal("settled cob must carry the settlement time")
			}
		})
	}
}

func TestEfiParseWebhook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// httptest requests come from 192.0.2.1
	newAdapter := func(t *testing.T, allowed ...string) *providers.EfiAdapter {
		a, err := providers.NewEfiAdapter(providers.EfiConfig{
			ClientID: "c", ClientSecret: "s", AllowedIPs: allowed,
		})
		if err != nil {
			t.Fatalf("NewEfiAdapter: %v", err)
		}
		return a
	}
	body := []byte(`{"pix":[{"txid":"abc","valor":"19.90","horario":"2026-03-01T12:00:00Z"}]}`)

	t.Run("pix entry is a settlement", func(t *testing.T) {
		a := newAdapter(t, "192.0.2.1")
		ev, err := a.ParseWebhook(ctx, httptest.NewRequest(http.MethodPost, "/wh", nil), body)
		if err != nil {
			t.Fatalf("ParseWebhook: %v", err)
		}
		if ev.Status != model.StatusPaid || ev.Reference != "abc" || ev.Amount != 1990 {
			t.Fatalf("unexpected event %+v", ev)
		}
	})

	t.Run("unlisted origin is rejected", func(t *testing.T) {
		a := newAdapter(t, "203.0.113.9")
		_, err := a.ParseWebhook(ctx, httptest.NewRequest(http.MethodPost, "/wh", nil), body)
		if !errors.Is(err, domain.ErrUnauthorizedWebhook) {
			t.Fatalf("want ErrUnauthorizedWebhook, got %v", err)
		}
	})

	t.Run("empty allow-list disables the check", func(t *testing.T) {
		a := newAdapter(t)
		if _, err := a.ParseWebhook(ctx, httptest.NewRequest(http.MethodPost, "/wh", nil), body); err != nil {
			t.Fatalf("ParseWebhook: %v", err)
		}
	})

	t.Run("webhook without pix entries is rejected", func(t *testing.T) {
		a := newAdapter(t)
		_, err := a.ParseWebhook(ctx, httptest.NewRequest(http.MethodPost, "/wh", nil), []byte(`{"pix":[]}`))
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("want ErrInvalidArgument, got %v", err)
		}
	})
}
