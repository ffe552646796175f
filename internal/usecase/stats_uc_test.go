package usecase

import (
	"context"
	"testing"
	"time"

	"pix-subscription-billing/internal/domain/model"
)

func TestStats(t *testing.T) {
	ledger := newMemLedgerRepo()
	deadLetters := newMemDeadLetterRepo()
	uc := NewStatsUseCase(ledger, deadLetters)

	ledger.UpsertByReference(context.Background(), nil, &model.LedgerEntry{
		ID: "a", UserID: "u1", Plan: model.PlanMonthly, Amount: 1990,
		Status: model.LedgerStatusPaid, PreferenceID: "ref-a", TransactionDate: time.Now(),
	})
	ledger.UpsertByReference(context.Background(), nil, &model.LedgerEntry{
		ID: "b", UserID: "u2", Plan: model.PlanMonthly, Amount: 5000,
		Status: model.LedgerStatusPending, PreferenceID: "ref-b", TransactionDate: time.Now(),
	})
	deadLetters.Append(context.Background(), nil, &model.DeadLetter{ID: "d1", Provider: "efi", Reference: "x"})

	week, _, _, err := uc.Revenue(context.Background())
	if err != nil {
		t.Fatalf("Revenue failed: %v", err)
	}
	if week != 1990 {
		t.Errorf("expected paid-only revenue 1990, got %d", week)
	}

	depth, err := uc.DeadLetterDepth(context.Background())
	if err != nil {
		t.Fatalf("DeadLetterDepth failed: %v", err)
	}
	if depth != 1 {
		t.Errorf("expected depth 1, got %d", depth)
	}
}
