package usecase

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"pix-subscription-billing/internal/domain/model"
	"pix-subscription-billing/internal/domain/ports/repository"
	"pix-subscription-billing/internal/infra/metrics"
)

var _ DuplicateResolver = (*dedupUC)(nil)

// DuplicateResolver is the batch cleanup for ledger rows recording the
// same provider charge more than once. The preference_id constraint keeps
// a single session idempotent, but a second session for the same charge
// inserts a distinct row; the sweep finds and purges those.
type DuplicateResolver interface {
	// ListDuplicates is the dry run: proposed deletions, no mutation.
	ListDuplicates(ctx context.Context) ([]*model.DuplicateGroup, error)

	// Purge deletes every non-canonical row. Keeps the earliest
	// transaction_date in each group; re-running after a purge deletes
	// nothing.
	Purge(ctx context.Context) (int64, error)
}

type dedupUC struct {
	ledger repository.LedgerRepository
	tm     repository.TransactionManager
	log    *zerolog.Logger
}

func NewDuplicateResolver(ledger repository.LedgerRepository, tm repository.TransactionManager, logger *zerolog.Logger) *dedupUC {
	l := logger.With().Str("component", "DuplicateResolver").Logger()
	return &dedupUC{ledger: ledger, tm: tm, log: &l}
}

func (u *dedupUC) ListDuplicates(ctx context.Context) ([]*model.DuplicateGroup, error) {
	return u.ledger.ListDuplicateGroups(ctx, nil)
}

func (u *dedupUC) Purge(ctx context.Context) (int64, error) {
	var deleted int64
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		groups, err := u.ledger.ListDuplicateGroups(ctx, tx)
		if err != nil {
			return err
		}
		var ids []string
		for _, g := range groups {
			ids = append(ids, g.DeleteIDs...)
		}
		if len(ids) == 0 {
			return nil
		}
		deleted, err = u.ledger.DeleteByIDs(ctx, tx, ids)
		return err
	})
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		metrics.AddDuplicatesPurged(deleted)
		u.log.Info().Int64("deleted", deleted).Msg("duplicate ledger rows purged")
	}
	return deleted, nil
}
