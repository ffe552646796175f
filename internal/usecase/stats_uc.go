package usecase

import (
	"context"

	"pix-subscription-billing/internal/domain/ports/repository"
)

var _ StatsUseCase = (*statsUC)(nil)

// StatsUseCase serves the admin panel's revenue and backlog figures.
type StatsUseCase interface {
	// Revenue returns paid totals for the current week, month and year.
	Revenue(ctx context.Context) (week, month, year int64, err error)
	// DeadLetterDepth returns the number of parked unmatched events.
	DeadLetterDepth(ctx context.Context) (int, error)
}

type statsUC struct {
	ledger      repository.LedgerRepository
	deadLetters repository.DeadLetterRepository
}

func NewStatsUseCase(ledger repository.LedgerRepository, deadLetters repository.DeadLetterRepository) *statsUC {
	return &statsUC{ledger: ledger, deadLetters: deadLetters}
}

func (u *statsUC) Revenue(ctx context.Context) (int64, int64, int64, error) {
	week, err := u.ledger.SumPaidByPeriod(ctx, nil, "week")
	if err != nil {
		return 0, 0, 0, err
	}
	month, err := u.ledger.SumPaidByPeriod(ctx, nil, "month")
	if err != nil {
		return 0, 0, 0, err
	}
	year, err := u.ledger.SumPaidByPeriod(ctx, nil, "year")
	if err != nil {
		return 0, 0, 0, err
	}
	return week, month, year, nil
}

func (u *statsUC) DeadLetterDepth(ctx context.Context) (int, error) {
	return u.deadLetters.Count(ctx, nil)
}
