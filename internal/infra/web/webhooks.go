package web

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pix-subscription-billing/internal/domain"
	"pix-subscription-billing/internal/infra/logging"
	"pix-subscription-billing/internal/infra/metrics"
)

// maxWebhookBody caps what a provider may post. Real payloads are a few KB.
const maxWebhookBody = 1 << 20

// handleWebhook is the single inbound path for all providers. The adapter
// authenticates and normalizes the payload; the engine does the rest.
// Unmatched references are acknowledged with 200 after dead-lettering,
// because a non-2xx would make the provider redeliver an event we already
// parked.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	start := time.Now()
	ctx := logging.WithTraceID(logging.WithProvider(r.Context(), name), uuid.NewString())
	log := logging.With(ctx, s.log)

	prov, err := s.registry.Get(name)
	if err != nil {
		metrics.IncWebhook(name, "unknown_provider")
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		metrics.IncWebhook(name, "read_error")
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	ev, err := prov.ParseWebhook(ctx, r, body)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorizedWebhook) {
			metrics.IncWebhook(name, "unauthorized")
			log.Warn().Str("remote", r.RemoteAddr).Msg("webhook rejected")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		metrics.IncWebhook(name, "bad_payload")
		log.Warn().Err(err).Msg("webhook parse failed")
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	_, err = s.engine.Apply(ctx, ev)
	metrics.ObserveWebhookDuration(name, time.Since(start).Seconds())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnmatchedReference):
			// Parked for retry; ack so the provider stops redelivering.
			metrics.IncWebhook(name, "dead_lettered")
			w.WriteHeader(http.StatusOK)
		case errors.Is(err, domain.ErrLockHeld):
			// A concurrent delivery is already applying this reference.
			metrics.IncWebhook(name, "duplicate_inflight")
			w.WriteHeader(http.StatusOK)
		default:
			metrics.IncWebhook(name, "error")
			log.Error().Err(err).Str("reference", ev.Reference).Msg("webhook apply failed")
			http.Error(w, "Processing failed", http.StatusInternalServerError)
		}
		return
	}

	metrics.IncWebhook(name, "ok")
	w.WriteHeader(http.StatusOK)
}
