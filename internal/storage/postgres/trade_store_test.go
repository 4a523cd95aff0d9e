package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-watchdesk/internal/domain"
)

func testTrade(mint string, ts int64, side domain.TradeSide) *domain.TradeRecord {
	return &domain.TradeRecord{
		TokenMint:             mint,
		Timestamp:             ts,
		Side:                  side,
		Price:                 0.00003,
		Volume:                3.0,
		TokenAmount:           100_000,
		NewTokenBalance:       100_000,
		Signature:             "sig",
		Trader:                "trader-wallet",
		BondingCurveKey:       "curve-key",
		VSolInBondingCurve:    30.0,
		VTokensInBondingCurve: 1_000_000.0,
		MarketCapSol:          28.5,
	}
}

func insertTestToken(t *testing.T, ctx context.Context, db *DB, mint string) {
	t.Helper()
	require.NoError(t, db.Tokens().Insert(ctx, testToken(mint)))
}

func TestTradeStore_InsertAssignsID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	db := NewDB(pool)
	insertTestToken(t, ctx, db, "trade-mint-001")

	store := db.Trades()

	first := testTrade("trade-mint-001", 1000, domain.SideBuy)
	second := testTrade("trade-mint-001", 2000, domain.SideSell)

	require.NoError(t, store.Insert(ctx, first))
	require.NoError(t, store.Insert(ctx, second))

	assert.Greater(t, first.ID, int64(0))
	assert.Greater(t, second.ID, first.ID)
}

func TestTradeStore_GetByMintOrdering(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	db := NewDB(pool)
	insertTestToken(t, ctx, db, "trade-order-001")

	store := db.Trades()

	// Insert out of order; ties on ts break by insertion order, newest first.
	for _, ts := range []int64{2000, 1000, 3000, 2000} {
		require.NoError(t, store.Insert(ctx, testTrade("trade-order-001", ts, domain.SideBuy)))
	}

	result, err := store.GetByMint(ctx, "trade-order-001")
	require.NoError(t, err)

	require.Len(t, result, 4)
	assert.Equal(t, int64(3000), result[0].Timestamp)
	assert.Equal(t, int64(2000), result[1].Timestamp)
	assert.Equal(t, int64(2000), result[2].Timestamp)
	assert.Greater(t, result[1].ID, result[2].ID)
	assert.Equal(t, int64(1000), result[3].Timestamp)
}

func TestTradeStore_GetByMintSince(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	db := NewDB(pool)
	insertTestToken(t, ctx, db, "trade-since-001")

	store := db.Trades()

	for _, ts := range []int64{1000, 2000, 3000} {
		require.NoError(t, store.Insert(ctx, testTrade("trade-since-001", ts, domain.SideBuy)))
	}

	// Cutoff is exclusive.
	result, err := store.GetByMintSince(ctx, "trade-since-001", 1000)
	require.NoError(t, err)

	require.Len(t, result, 2)
	assert.Equal(t, int64(3000), result[0].Timestamp)
	assert.Equal(t, int64(2000), result[1].Timestamp)
}

func TestTradeStore_RoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	db := NewDB(pool)
	insertTestToken(t, ctx, db, "trade-round-001")

	store := db.Trades()

	trade := testTrade("trade-round-001", 5000, domain.SideSell)
	require.NoError(t, store.Insert(ctx, trade))

	result, err := store.GetByMint(ctx, "trade-round-001")
	require.NoError(t, err)
	require.Len(t, result, 1)

	got := result[0]
	assert.Equal(t, trade.ID, got.ID)
	assert.Equal(t, trade.TokenMint, got.TokenMint)
	assert.Equal(t, trade.Timestamp, got.Timestamp)
	assert.Equal(t, domain.SideSell, got.Side)
	assert.InDelta(t, trade.Price, got.Price, 1e-9)
	assert.InDelta(t, trade.Volume, got.Volume, 0.0001)
	assert.InDelta(t, trade.TokenAmount, got.TokenAmount, 0.0001)
	assert.Equal(t, trade.Signature, got.Signature)
	assert.Equal(t, trade.Trader, got.Trader)
	assert.Equal(t, trade.BondingCurveKey, got.BondingCurveKey)
	assert.InDelta(t, trade.MarketCapSol, got.MarketCapSol, 0.0001)
}

func TestTradeStore_DeleteByMints(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	db := NewDB(pool)
	insertTestToken(t, ctx, db, "trade-del-a")
	insertTestToken(t, ctx, db, "trade-del-b")
	insertTestToken(t, ctx, db, "trade-del-c")

	store := db.Trades()

	require.NoError(t, store.Insert(ctx, testTrade("trade-del-a", 1000, domain.SideBuy)))
	require.NoError(t, store.Insert(ctx, testTrade("trade-del-a", 2000, domain.SideBuy)))
	require.NoError(t, store.Insert(ctx, testTrade("trade-del-b", 1000, domain.SideBuy)))
	require.NoError(t, store.Insert(ctx, testTrade("trade-del-c", 1000, domain.SideBuy)))

	n, err := store.DeleteByMints(ctx, []string{"trade-del-a", "trade-del-b"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	remaining, err := store.GetByMint(ctx, "trade-del-c")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestTradeStore_DeleteByMintsEmpty(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewDB(pool).Trades()

	n, err := store.DeleteByMints(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
