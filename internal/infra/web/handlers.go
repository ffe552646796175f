package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pix-subscription-billing/internal/domain"
	"pix-subscription-billing/internal/domain/model"
	"pix-subscription-billing/internal/infra/logging"
	"pix-subscription-billing/internal/usecase"
)

type chargeRequest struct {
	UserID        string `json:"user_id"`
	Plan          string `json:"plan"`
	AmountCents   int64  `json:"amount_cents"`
	Provider      string `json:"provider,omitempty"`
	PayerEmail    string `json:"payer_email,omitempty"`
	CampaignID    string `json:"campaign_id,omitempty"`
	PromotionCode string `json:"promotion_code,omitempty"`
	AffiliateID   string `json:"affiliate_id,omitempty"`
	Source        string `json:"source,omitempty"`
	Campaign      string `json:"campaign,omitempty"`
}

type chargeResponse struct {
	SessionID   string     `json:"session_id"`
	Provider    string     `json:"provider"`
	Reference   string     `json:"reference,omitempty"`
	QRPayload   string     `json:"qr_payload,omitempty"`
	CheckoutURL string     `json:"checkout_url,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func (s *Server) handleCharge(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ctx := logging.WithUserID(r.Context(), req.UserID)
	out, err := s.chargeUC.CreateCharge(ctx, usecase.ChargeInput{
		UserID:        req.UserID,
		Amount:        req.AmountCents,
		Plan:          req.Plan,
		PayerEmail:    req.PayerEmail,
		Provider:      req.Provider,
		CampaignID:    req.CampaignID,
		PromotionCode: req.PromotionCode,
		AffiliateID:   req.AffiliateID,
		Source:        req.Source,
		Campaign:      req.Campaign,
	})
	if err != nil {
		log := logging.With(ctx, s.log)
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUnknownProvider):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrProviderUnavailable):
			log.Error().Err(err).Msg("charge rejected, provider unavailable")
			http.Error(w, "Payment provider unavailable", http.StatusBadGateway)
		default:
			log.Error().Err(err).Msg("charge failed")
			http.Error(w, "Failed to create charge", http.StatusInternalServerError)
		}
		return
	}

	resp := chargeResponse{
		SessionID:   out.SessionID,
		Provider:    out.Provider,
		Reference:   out.Reference,
		QRPayload:   out.QRPayload,
		CheckoutURL: out.CheckoutURL,
	}
	if !out.ExpiresAt.IsZero() {
		resp.ExpiresAt = &out.ExpiresAt
	}
	writeJSON(w, http.StatusCreated, resp)
}

type statusResponse struct {
	SessionID string     `json:"session_id"`
	Status    string     `json:"status"`
	Provider  string     `json:"provider"`
	Plan      string     `json:"plan"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// handleStatus is the client polling endpoint. Polling a pending session
// asks the provider for fresh state first, so mobile clients that never
// receive the webhook still converge.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("reference")
	if ref == "" {
		http.Error(w, "reference is required", http.StatusBadRequest)
		return
	}

	sess, err := s.engine.PollStatus(r.Context(), ref)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "Failed to query status", http.StatusInternalServerError)
		return
	}

	updated := sess.UpdatedAt
	writeJSON(w, http.StatusOK, statusResponse{
		SessionID: sess.ID,
		Status:    string(sess.Status),
		Provider:  sess.Provider,
		Plan:      string(sess.Plan),
		UpdatedAt: &updated,
	})
}

type entitlementResponse struct {
	UserID     string     `json:"user_id"`
	Premium    bool       `json:"premium"`
	ExpireDate *time.Time `json:"expire_date,omitempty"`
}

// handleEntitlement is the read side of activation: clients check whether
// a user is currently premium. Expiry is enforced lazily on this read.
func (s *Server) handleEntitlement(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "user id is required", http.StatusBadRequest)
		return
	}

	usr, err := s.entitleUC.Evaluate(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "Failed to read entitlement", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, entitlementResponse{
		UserID:     usr.ID,
		Premium:    usr.Premium,
		ExpireDate: usr.ExpireDate,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	week, month, year, err := s.statsUC.Revenue(ctx)
	if err != nil {
		http.Error(w, "Failed to get revenue", http.StatusInternalServerError)
		return
	}
	depth, err := s.statsUC.DeadLetterDepth(ctx)
	if err != nil {
		http.Error(w, "Failed to get dead-letter depth", http.StatusInternalServerError)
		return
	}

	response := struct {
		Revenue struct {
			Week  int64 `json:"week"`
			Month int64 `json:"month"`
			Year  int64 `json:"year"`
		} `json:"revenue_cents"`
		DeadLetterDepth int `json:"dead_letter_depth"`
	}{DeadLetterDepth: depth}
	response.Revenue.Week = week
	response.Revenue.Month = month
	response.Revenue.Year = year

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleDuplicatesList(w http.ResponseWriter, r *http.Request) {
	groups, err := s.dedupUC.ListDuplicates(r.Context())
	if err != nil {
		http.Error(w, "Failed to list duplicates", http.StatusInternalServerError)
		return
	}

	response := struct {
		Data  []*model.DuplicateGroup `json:"data"`
		Total int                     `json:"total"`
	}{Data: groups, Total: len(groups)}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleDuplicatesPurge(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.dedupUC.Purge(r.Context())
	if err != nil {
		http.Error(w, "Failed to purge duplicates", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// handleForceProcess is the manual override for a charge the operator has
// verified out of band.
func (s *Server) handleForceProcess(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "session id is required", http.StatusBadRequest)
		return
	}

	out, err := s.engine.ForceProcess(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			http.NotFound(w, r)
		case errors.Is(err, domain.ErrInconsistentState):
			http.Error(w, "Activation failed, retry later", http.StatusConflict)
		default:
			http.Error(w, "Failed to process payment", http.StatusInternalServerError)
		}
		return
	}

	response := struct {
		SessionID    string     `json:"session_id"`
		Status       string     `json:"status"`
		Activated    bool       `json:"activated"`
		ShortCircuit bool       `json:"already_processed"`
		ExpireDate   *time.Time `json:"expire_date,omitempty"`
	}{
		SessionID:    out.Session.ID,
		Status:       string(out.Session.Status),
		Activated:    out.Activated,
		ShortCircuit: out.ShortCircuit,
		ExpireDate:   out.ExpireDate,
	}
	writeJSON(w, http.StatusOK, response)
}
