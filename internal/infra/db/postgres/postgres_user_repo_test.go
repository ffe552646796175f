//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"pix-subscription-billing/internal/domain"
)

func seedUser(t *testing.T, id string, premium bool, expire *time.Time) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO users (id, email, premium, expire_date) VALUES ($1, $2, $3, $4)`,
		id, id+"@example.com", premium, expire)
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
}

func TestUserRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewUserRepo(testPool)

	t.Run("activate premium updates only entitlement fields", func(t *testing.T) {
		cleanup(t)
		seedUser(t, "user-1", false, nil)

		expire := time.Now().AddDate(0, 1, 0).Truncate(time.Millisecond)
		paidAt := time.Now().Truncate(time.Millisecond)
		if err := repo.ActivatePremium(ctx, nil, "user-1", expire, paidAt); err != nil {
			t.Fatalf("ActivatePremium failed: %v", err)
		}

		u, err := repo.FindByID(ctx, nil, "user-1")
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if !u.Premium || u.PaymentStatus != "paid" {
			t.Errorf("unexpected entitlement state: %+v", u)
		}
		if u.ExpireDate == nil || !u.ExpireDate.Equal(expire) {
			t.Errorf("expire_date mismatch: %v", u.ExpireDate)
		}
		if u.Email != "user-1@example.com" {
			t.Error("unrelated field was clobbered")
		}
	})

	t.Run("activating an unknown user reports not found", func(t *testing.T) {
		cleanup(t)
		err := repo.ActivatePremium(ctx, nil, "ghost", time.Now(), time.Now())
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("downgrade only touches actually expired users", func(t *testing.T) {
		cleanup(t)
		past := time.Now().Add(-24 * time.Hour)
		future := time.Now().Add(24 * time.Hour)
		seedUser(t, "expired", true, &past)
		seedUser(t, "active", true, &future)

		if err := repo.DowngradeExpired(ctx, nil, "expired"); err != nil {
			t.Fatalf("DowngradeExpired failed: %v", err)
		}
		if err := repo.DowngradeExpired(ctx, nil, "active"); err != nil {
			t.Fatalf("DowngradeExpired failed: %v", err)
		}

		u, _ := repo.FindByID(ctx, nil, "expired")
		if u.Premium {
			t.Error("expected expired user downgraded")
		}
		u, _ = repo.FindByID(ctx, nil, "active")
		if !u.Premium {
			t.Error("active user must not be downgraded")
		}
	})
}
