package memory

import (
	"context"
	"errors"
	"testing"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/storage"
)

func TestTokenStore_InsertAndGet(t *testing.T) {
	db := NewDB()
	ctx := context.Background()

	tok := &domain.Token{
		Mint:       "mint1",
		Symbol:     "TST",
		Name:       "Test Token",
		Status:     domain.StatusUnwatched,
		CreateTime: 1000,
		LastUpdate: 1000,
	}

	if err := db.Tokens().Insert(ctx, tok); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := db.Tokens().GetByMint(ctx, "mint1")
	if err != nil {
		t.Fatalf("GetByMint failed: %v", err)
	}
	if got.Symbol != "TST" {
		t.Errorf("Symbol mismatch: got %s, want TST", got.Symbol)
	}
}

func TestTokenStore_DuplicateKey(t *testing.T) {
	db := NewDB()
	ctx := context.Background()

	tok := &domain.Token{Mint: "mint1", Status: domain.StatusUnwatched}
	if err := db.Tokens().Insert(ctx, tok); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := db.Tokens().Insert(ctx, tok)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestTokenStore_NotFound(t *testing.T) {
	db := NewDB()

	_, err := db.Tokens().GetByMint(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTokenStore_UpdateMissing(t *testing.T) {
	db := NewDB()

	err := db.Tokens().Update(context.Background(), &domain.Token{Mint: "missing"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTokenStore_ListOrdering(t *testing.T) {
	db := NewDB()
	ctx := context.Background()

	for _, tok := range []*domain.Token{
		{Mint: "b", CreateTime: 2000},
		{Mint: "a", CreateTime: 1000},
		{Mint: "c", CreateTime: 3000},
	} {
		if err := db.Tokens().Insert(ctx, tok); err != nil {
			t.Fatalf("Insert %s failed: %v", tok.Mint, err)
		}
	}

	all, err := db.Tokens().List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 tokens, got %d", len(all))
	}
	if all[0].Mint != "a" || all[2].Mint != "c" {
		t.Errorf("Wrong ordering: %s, %s, %s", all[0].Mint, all[1].Mint, all[2].Mint)
	}
}

func TestTokenStore_DeleteStale(t *testing.T) {
	db := NewDB()
	ctx := context.Background()

	stale := &domain.Token{Mint: "stale", Status: domain.StatusUnwatched, LastUpdate: 100}
	fresh := &domain.Token{Mint: "fresh", Status: domain.StatusUnwatched, LastUpdate: 900}
	watched := &domain.Token{Mint: "watched", Status: domain.StatusWatched, LastUpdate: 100}
	for _, tok := range []*domain.Token{stale, fresh, watched} {
		if err := db.Tokens().Insert(ctx, tok); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	removed, err := db.Tokens().DeleteStale(ctx, 500)
	if err != nil {
		t.Fatalf("DeleteStale failed: %v", err)
	}
	if len(removed) != 1 || removed[0] != "stale" {
		t.Errorf("Expected [stale] removed, got %v", removed)
	}

	// Watched tokens are never pruned regardless of age.
	if _, err := db.Tokens().GetByMint(ctx, "watched"); err != nil {
		t.Errorf("Watched token should survive prune: %v", err)
	}
	if _, err := db.Tokens().GetByMint(ctx, "fresh"); err != nil {
		t.Errorf("Fresh token should survive prune: %v", err)
	}
}

func TestTokenStore_CopySemantics(t *testing.T) {
	db := NewDB()
	ctx := context.Background()

	tok := &domain.Token{Mint: "mint1", Symbol: "A"}
	if err := db.Tokens().Insert(ctx, tok); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Mutating the caller's struct must not leak into the store.
	tok.Symbol = "B"

	got, err := db.Tokens().GetByMint(ctx, "mint1")
	if err != nil {
		t.Fatalf("GetByMint failed: %v", err)
	}
	if got.Symbol != "A" {
		t.Errorf("Store leaked caller mutation: got %s", got.Symbol)
	}
}
