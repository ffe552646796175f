package usecase

import (
	"context"
	"testing"
	"time"

	"pix-subscription-billing/internal/domain/model"
)

func seedDuplicates(t *testing.T, ledger *memLedgerRepo) {
	t.Helper()
	paymentID := int64(555)
	base := time.Now().Add(-3 * time.Hour)
	for i, ref := range []string{"dup-a", "dup-b", "dup-c"} {
		_, err := ledger.UpsertByReference(context.Background(), nil, &model.LedgerEntry{
			ID:              ref + "-id",
			UserID:          "user-1",
			Plan:            model.PlanMonthly,
			Amount:          1990,
			Status:          model.LedgerStatusPaid,
			PaymentID:       &paymentID,
			PreferenceID:    ref,
			TransactionDate: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
}

func TestDuplicateResolver(t *testing.T) {
	t.Run("list is a dry run", func(t *testing.T) {
		ledger := newMemLedgerRepo()
		seedDuplicates(t, ledger)
		uc := NewDuplicateResolver(ledger, &mockTxManager{}, newTestLogger())

		groups, err := uc.ListDuplicates(context.Background())
		if err != nil {
			t.Fatalf("ListDuplicates failed: %v", err)
		}
		if len(groups) != 1 {
			t.Fatalf("expected 1 group, got %d", len(groups))
		}
		if groups[0].KeepID != "dup-a-id" {
			t.Errorf("expected earliest row kept, got %s", groups[0].KeepID)
		}
		if len(ledger.byRef) != 3 {
			t.Error("dry run must not delete anything")
		}
	})

	t.Run("purge deletes only non-canonical rows", func(t *testing.T) {
		ledger := newMemLedgerRepo()
		seedDuplicates(t, ledger)
		uc := NewDuplicateResolver(ledger, &mockTxManager{}, newTestLogger())

		deleted, err := uc.Purge(context.Background())
		if err != nil {
			t.Fatalf("Purge failed: %v", err)
		}
		if deleted != 2 {
			t.Errorf("expected 2 deletions, got %d", deleted)
		}
		if _, err := ledger.FindByReference(context.Background(), nil, "dup-a"); err != nil {
			t.Error("canonical row must survive the purge")
		}

		// Re-running is a no-op.
		deleted, err = uc.Purge(context.Background())
		if err != nil {
			t.Fatalf("second Purge failed: %v", err)
		}
		if deleted != 0 {
			t.Errorf("expected idempotent purge, deleted %d", deleted)
		}
	})
}
