package memory

import (
	"context"
	"errors"
	"testing"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/storage"
)

func TestDB_WithTxCommit(t *testing.T) {
	db := NewDB()
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx storage.DB) error {
		if err := tx.Tokens().Insert(ctx, &domain.Token{Mint: "m1"}); err != nil {
			return err
		}
		return tx.Subscriptions().Put(ctx, &domain.Subscription{
			Mint:   "m1",
			Status: domain.SubscriptionActive,
		})
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}

	if _, err := db.Tokens().GetByMint(ctx, "m1"); err != nil {
		t.Errorf("Token not committed: %v", err)
	}
	if _, err := db.Subscriptions().GetByMint(ctx, "m1"); err != nil {
		t.Errorf("Subscription not committed: %v", err)
	}
}

func TestDB_WithTxRollback(t *testing.T) {
	db := NewDB()
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(tx storage.DB) error {
		if err := tx.Tokens().Insert(ctx, &domain.Token{Mint: "m1"}); err != nil {
			return err
		}
		if err := tx.Trades().Insert(ctx, &domain.TradeRecord{TokenMint: "m1", Timestamp: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	// No partial effects may be observable after rollback.
	if _, err := db.Tokens().GetByMint(ctx, "m1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Token leaked from rolled-back tx: %v", err)
	}
	trades, err := db.Trades().GetByMint(ctx, "m1")
	if err != nil {
		t.Fatalf("GetByMint failed: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("Trade leaked from rolled-back tx: %d rows", len(trades))
	}
}

func TestDB_WipeKeepsSettingsAndGroups(t *testing.T) {
	db := NewDB()
	ctx := context.Background()

	if err := db.Tokens().Insert(ctx, &domain.Token{Mint: "m1"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := db.Trades().Insert(ctx, &domain.TradeRecord{TokenMint: "m1", Timestamp: 1}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := db.Settings().Put(ctx, &domain.Settings{AutoResubscribe: true}); err != nil {
		t.Fatalf("Put settings failed: %v", err)
	}
	if err := db.TriggerGroups().Put(ctx, &domain.TriggerGroup{ID: "g1", Name: "rule"}); err != nil {
		t.Fatalf("Put group failed: %v", err)
	}

	if err := db.Wipe(ctx); err != nil {
		t.Fatalf("Wipe failed: %v", err)
	}

	if _, err := db.Tokens().GetByMint(ctx, "m1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Token survived wipe: %v", err)
	}
	settings, err := db.Settings().Get(ctx)
	if err != nil {
		t.Fatalf("Settings should survive wipe: %v", err)
	}
	if !settings.AutoResubscribe {
		t.Error("Settings mutated by wipe")
	}
	if _, err := db.TriggerGroups().GetByID(ctx, "g1"); err != nil {
		t.Errorf("Trigger group should survive wipe: %v", err)
	}
}
