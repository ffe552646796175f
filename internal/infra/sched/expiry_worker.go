package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pix-subscription-billing/internal/domain/model"
	"pix-subscription-billing/internal/domain/ports/repository"
	"pix-subscription-billing/internal/infra/metrics"
)

// ExpiryWorker closes out pending sessions nobody ever paid. A PIX QR code
// stops being payable after its provider-side expiry anyway; the sweep just
// makes the session record agree.
type ExpiryWorker struct {
	sessions  repository.SessionRepository
	interval  time.Duration
	maxAge    time.Duration
	batchSize int
	log       *zerolog.Logger
}

func NewExpiryWorker(sessions repository.SessionRepository, interval, maxAge time.Duration, batchSize int, logger *zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	l := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		sessions:  sessions,
		interval:  interval,
		maxAge:    maxAge,
		batchSize: batchSize,
		log:       &l,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			if n := w.sweep(ctx); n > 0 {
				metrics.AddSessionsExpired(n)
				w.log.Info().Int("count", n).Msg("pending sessions expired")
			}
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) int {
	cutoff := time.Now().Add(-w.maxAge)
	stale, err := w.sessions.ListPendingOlderThan(ctx, nil, cutoff, w.batchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("expiry sweep list failed")
		return 0
	}

	expired := 0
	for _, s := range stale {
		applied, err := w.sessions.MarkStatus(ctx, nil, s.ID, model.SessionStatusExpired)
		if err != nil {
			w.log.Error().Err(err).Str("session_id", s.ID).Msg("expire failed")
			continue
		}
		if applied {
			expired++
		}
	}
	return expired
}
