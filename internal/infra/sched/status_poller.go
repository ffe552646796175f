package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pix-subscription-billing/internal/domain/model"
	"pix-subscription-billing/internal/domain/ports/repository"
	"pix-subscription-billing/internal/usecase"
)

// StatusPoller periodically scans stale pending sessions and asks their
// provider for the current status. This covers sessions whose webhook was
// lost or whose payer never returned to the status page.
type StatusPoller struct {
	engine     usecase.ReconciliationEngine
	sessions   repository.SessionRepository
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a pending session must be to poll
	batchSize  int
	log        *zerolog.Logger
}

func NewStatusPoller(
	engine usecase.ReconciliationEngine,
	sessions repository.SessionRepository,
	interval, staleAfter time.Duration,
	batchSize int,
	logger *zerolog.Logger,
) *StatusPoller {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	l := logger.With().Str("component", "StatusPoller").Logger()
	return &StatusPoller{
		engine:     engine,
		sessions:   sessions,
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		log:        &l,
	}
}

func (w *StatusPoller) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting status poller")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping status poller")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *StatusPoller) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	pending, err := w.sessions.ListPendingOlderThan(ctx, nil, cutoff, w.batchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale sessions failed")
		return
	}
	for _, s := range pending {
		ref := pollRef(s)
		if ref == "" {
			continue // provider call never completed; expiry sweep owns it
		}
		if _, err := w.engine.PollStatus(ctx, ref); err != nil {
			w.log.Warn().Err(err).Str("session_id", s.ID).Msg("status poll failed")
		}
	}
}

func pollRef(s *model.PaymentSession) string {
	if s.PreferenceID != nil && *s.PreferenceID != "" {
		return *s.PreferenceID
	}
	return ""
}
