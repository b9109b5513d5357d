//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"

	"coupon-payments/internal/domain"
	"coupon-payments/internal/domain/model"
	"coupon-payments/internal/domain/ports/repository"
)

func newIntent(t *testing.T, id string, provider model.ProviderKind, planID string) *model.PurchaseIntent {
	t.Helper()
	p, err := model.NewPurchaseIntent(id, "user-1", planID, provider, model.Money{Currency: "JPY", Value: 980}, "https://shop.example", 30*time.Minute)
	if err != nil {
		t.Fatalf("new intent: %v", err)
	}
	return p
}

func TestIntentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewIntentRepo(testPool)
	tm := NewTxManager(testPool)

	t.Run("should save and find an intent", func(t *testing.T) {
		cleanup(t)
		p := newIntent(t, "10001", model.ProviderWalletQR, "plan-1")
		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, err := repo.FindByID(ctx, nil, "10001")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.Amount.Value != 980 || got.Provider != model.ProviderWalletQR || got.Status != model.StatusPending || got.CommittedAt != nil {
			t.Errorf("unexpected intent %+v", got)
		}
		if err := repo.Save(ctx, nil, p); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
		if _, err := repo.FindByID(ctx, nil, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should record progress but never over a terminal status", func(t *testing.T) {
		cleanup(t)
		p := newIntent(t, "10002", model.ProviderCardRedirect, "")
		_ = repo.Save(ctx, nil, p)
		if err := repo.UpdateProgress(ctx, nil, p.ID, model.StatusProcessing, "", "cus-1"); err != nil {
			t.Fatalf("progress: %v", err)
		}
		open, err := repo.FindOpenByCustomerID(ctx, nil, "cus-1")
		if err != nil || open.ID != p.ID || open.Status != model.StatusProcessing {
			t.Fatalf("open by customer: %+v %v", open, err)
		}

		won, err := repo.TransitionIfOpen(ctx, nil, p.ID, model.StatusFailed, domain.CodeCardRejected, "rejected")
		if err != nil || !won {
			t.Fatalf("transition: won=%v err=%v", won, err)
		}
		_ = repo.UpdateProgress(ctx, nil, p.ID, model.StatusProcessing, "tx-1", "")
		got, _ := repo.FindByID(ctx, nil, p.ID)
		if got.Status != model.StatusFailed || got.FailureCode != domain.CodeCardRejected || got.ProviderTransactionID != "" {
			t.Errorf("terminal row changed: %+v", got)
		}
		if _, err := repo.FindOpenByCustomerID(ctx, nil, "cus-1"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("terminal intent must not correlate, got %v", err)
		}
	})

	t.Run("should let exactly one concurrent transition win", func(t *testing.T) {
		cleanup(t)
		p := newIntent(t, "10003", model.ProviderWalletQR, "plan-1")
		_ = repo.Save(ctx, nil, p)

		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				status := model.StatusSuccess
				if i%2 == 1 {
					status = model.StatusFailed
				}
				won, err := repo.TransitionIfOpen(ctx, nil, p.ID, status, "", "")
				if err != nil {
					t.Errorf("transition: %v", err)
				}
				if won {
					atomic.AddInt32(&wins, 1)
				}
			}(i)
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("expected one winner, got %d", wins)
		}
	})

	t.Run("should set the card inside a transaction", func(t *testing.T) {
		cleanup(t)
		p := newIntent(t, "10004", model.ProviderCardRedirect, "plan-1")
		_ = repo.Save(ctx, nil, p)
		err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if _, err := repo.FindByID(ctx, tx, p.ID); err != nil {
				return err
			}
			if err := repo.SetCardID(ctx, tx, p.ID, "card-9"); err != nil {
				return err
			}
			_, err := repo.TransitionIfOpen(ctx, tx, p.ID, model.StatusSuccess, "", "")
			return err
		})
		if err != nil {
			t.Fatalf("tx: %v", err)
		}
		got, _ := repo.FindByID(ctx, nil, p.ID)
		if got.CardID != "card-9" || got.Status != model.StatusSuccess {
			t.Errorf("unexpected intent %+v", got)
		}
		if err := repo.SetCardID(ctx, nil, "missing", "x"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should roll back when the callback fails", func(t *testing.T) {
		cleanup(t)
		p := newIntent(t, "10005", model.ProviderCardRedirect, "")
		_ = repo.Save(ctx, nil, p)
		boom := errors.New("boom")
		err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			_ = repo.SetCardID(ctx, tx, p.ID, "card-1")
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		got, _ := repo.FindByID(ctx, nil, p.ID)
		if got.CardID != "" {
			t.Errorf("card id survived rollback: %q", got.CardID)
		}
	})

	t.Run("should list sweep candidates", func(t *testing.T) {
		cleanup(t)
		expired := newIntent(t, "20001", model.ProviderWalletRedirect, "plan-1")
		expired.ExpiresAt = time.Now().Add(-time.Minute)
		watching := newIntent(t, "20002", model.ProviderWalletQR, "plan-1")
		paid := newIntent(t, "20003", model.ProviderWalletQR, "plan-1")
		for _, p := range []*model.PurchaseIntent{expired, watching, paid} {
			if err := repo.Save(ctx, nil, p); err != nil {
				t.Fatalf("save: %v", err)
			}
		}
		_ = repo.UpdateProgress(ctx, nil, watching.ID, model.StatusRequiresAction, "code-1", "")
		_, _ = repo.TransitionIfOpen(ctx, nil, paid.ID, model.StatusSuccess, "", "")

		list, err := repo.ListOpenExpired(ctx, nil, time.Now(), 10)
		if err != nil || len(list) != 1 || list[0].ID != expired.ID {
			t.Fatalf("expired: %v %v", list, err)
		}
		list, err = repo.ListOpenByProvider(ctx, nil, model.ProviderWalletQR, 10)
		if err != nil || len(list) != 1 || list[0].ID != watching.ID {
			t.Fatalf("open qr: %v %v", list, err)
		}

		list, _ = repo.ListUncommitted(ctx, nil, 10)
		if len(list) != 0 {
			t.Fatalf("fresh success must be left to the inline commit, got %d", len(list))
		}
		if _, err := testPool.Exec(ctx, `UPDATE purchase_intents SET updated_at = NOW() - INTERVAL '5 minutes' WHERE id=$1`, paid.ID); err != nil {
			t.Fatal(err)
		}
		list, err = repo.ListUncommitted(ctx, nil, 10)
		if err != nil || len(list) != 1 || list[0].ID != paid.ID {
			t.Fatalf("uncommitted: %v %v", list, err)
		}
		if err := repo.MarkCommitted(ctx, nil, paid.ID, time.Now()); err != nil {
			t.Fatal(err)
		}
		list, _ = repo.ListUncommitted(ctx, nil, 10)
		if len(list) != 0 {
			t.Errorf("committed intent still listed")
		}
	})
}
