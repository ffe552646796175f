package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pix-subscription-billing/internal/domain/ports/repository"
	"pix-subscription-billing/internal/usecase"
)

// DeadLetterWorker replays parked webhook events. An event usually parks
// because it outraced its session row; once the session exists a poll
// through the engine drains the letter. Replaying goes through PollStatus
// rather than Apply so a still-missing session does not park a second copy.
type DeadLetterWorker struct {
	engine      usecase.ReconciliationEngine
	deadLetters repository.DeadLetterRepository
	interval    time.Duration
	maxAttempts int
	batchSize   int
	log         *zerolog.Logger
}

func NewDeadLetterWorker(
	engine usecase.ReconciliationEngine,
	deadLetters repository.DeadLetterRepository,
	interval time.Duration,
	maxAttempts, batchSize int,
	logger *zerolog.Logger,
) *DeadLetterWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	l := logger.With().Str("component", "DeadLetterWorker").Logger()
	return &DeadLetterWorker{
		engine:      engine,
		deadLetters: deadLetters,
		interval:    interval,
		maxAttempts: maxAttempts,
		batchSize:   batchSize,
		log:         &l,
	}
}

func (w *DeadLetterWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting dead-letter worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping dead-letter worker")
			return ctx.Err()
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *DeadLetterWorker) drain(ctx context.Context) {
	letters, err := w.deadLetters.ListRetryable(ctx, nil, w.maxAttempts, w.batchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("list dead letters failed")
		return
	}

	for _, d := range letters {
		if _, err := w.engine.PollStatus(ctx, d.Reference); err != nil {
			// Session still missing, or a transient fault; try again on
			// a later pass.
			if merr := w.deadLetters.MarkAttempt(ctx, nil, d.ID, err.Error()); merr != nil {
				w.log.Error().Err(merr).Str("id", d.ID).Msg("mark attempt failed")
			}
			continue
		}
		if err := w.deadLetters.Delete(ctx, nil, d.ID); err != nil {
			w.log.Error().Err(err).Str("id", d.ID).Msg("delete drained letter failed")
			continue
		}
		w.log.Info().
			Str("provider", d.Provider).
			Str("reference", d.Reference).
			Int("attempts", d.Attempts).
			Msg("dead letter drained")
	}
}
