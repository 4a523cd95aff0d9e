package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/storage"
	"token-watchdesk/internal/storage/memory"
)

type captureEnqueuer struct {
	intents []domain.SubscriptionIntent
}

func (c *captureEnqueuer) Enqueue(mint string, action domain.SubscriptionAction) {
	c.intents = append(c.intents, domain.SubscriptionIntent{Mint: mint, Action: action})
}

func createEvent(mint string, received int64) *domain.CreateEvent {
	return &domain.CreateEvent{
		Mint:         mint,
		Symbol:       "TST",
		Name:         "Test Token",
		VTokens:      1_000_000,
		VSol:         30,
		MarketCapSol: 28.5,
		Trader:       "creator",
		Signature:    "create-sig",
		Received:     received,
	}
}

func tradeEvent(mint string, received int64, side domain.TradeSide) *domain.TradeEvent {
	return &domain.TradeEvent{
		Mint:         mint,
		Side:         side,
		TokenAmount:  1000,
		VSol:         40,
		VTokens:      800_000,
		MarketCapSol: 32,
		Trader:       "trader",
		Signature:    "trade-sig",
		Received:     received,
	}
}

func TestIngestor_HandleCreate(t *testing.T) {
	db := memory.NewDB()
	enq := &captureEnqueuer{}
	ing := New(db, enq, nil)
	ctx := context.Background()

	require.NoError(t, ing.HandleCreate(ctx, createEvent("mint-1", 1000)))

	token, err := db.Tokens().GetByMint(ctx, "mint-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnwatched, token.Status)
	assert.Equal(t, int64(1000), token.CreateTime)
	assert.InDelta(t, 30.0/1_000_000, token.LastPrice, 1e-12)

	sub, err := db.Subscriptions().GetByMint(ctx, "mint-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionActive, sub.Status)

	require.Len(t, enq.intents, 1)
	assert.Equal(t, domain.ActionSubscribe, enq.intents[0].Action)
}

func TestIngestor_HandleCreateDuplicate(t *testing.T) {
	db := memory.NewDB()
	ing := New(db, nil, nil)
	ctx := context.Background()

	require.NoError(t, ing.HandleCreate(ctx, createEvent("mint-1", 1000)))
	// Replay of the same mint is absorbed, not an error.
	require.NoError(t, ing.HandleCreate(ctx, createEvent("mint-1", 2000)))

	token, err := db.Tokens().GetByMint(ctx, "mint-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), token.CreateTime)
}

func TestIngestor_TradeDropOnUnknownMint(t *testing.T) {
	db := memory.NewDB()
	ing := New(db, nil, nil)
	ctx := context.Background()

	require.NoError(t, ing.HandleTrade(ctx, tradeEvent("ghost-mint", 1000, domain.SideBuy)))

	// No trade record and no fabricated token.
	trades, err := db.Trades().GetByMint(ctx, "ghost-mint")
	require.NoError(t, err)
	assert.Empty(t, trades)

	_, err = db.Tokens().GetByMint(ctx, "ghost-mint")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIngestor_HandleTradeUpdatesToken(t *testing.T) {
	db := memory.NewDB()
	ing := New(db, nil, nil)
	ctx := context.Background()

	require.NoError(t, ing.HandleCreate(ctx, createEvent("mint-1", 1000)))
	require.NoError(t, ing.HandleTrade(ctx, tradeEvent("mint-1", 2000, domain.SideBuy)))
	require.NoError(t, ing.HandleTrade(ctx, tradeEvent("mint-1", 3000, domain.SideSell)))

	token, err := db.Tokens().GetByMint(ctx, "mint-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), token.LastUpdate)
	assert.Equal(t, int64(3000), token.LastTradeTime)
	assert.InDelta(t, 40.0/800_000, token.LastPrice, 1e-12)
	assert.Equal(t, 2, token.Metrics.Trades24h)
	assert.Equal(t, float64(40), token.VSolInBondingCurve)

	trades, err := db.Trades().GetByMint(ctx, "mint-1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	// Volume is tokenAmount times the curve price.
	assert.InDelta(t, 1000*40.0/800_000, trades[0].Volume, 1e-9)
}

func TestIngestor_SkipStaleUpdate(t *testing.T) {
	db := memory.NewDB()
	ing := New(db, nil, nil)
	ctx := context.Background()

	require.NoError(t, ing.HandleCreate(ctx, createEvent("mint-1", 100)))

	// lastUpdate=100: an event stamped 90 must not move token state,
	// one stamped 150 must.
	stale := tradeEvent("mint-1", 90, domain.SideBuy)
	stale.VSol = 99
	require.NoError(t, ing.HandleTrade(ctx, stale))

	token, err := db.Tokens().GetByMint(ctx, "mint-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), token.LastUpdate)
	assert.Equal(t, float64(30), token.VSolInBondingCurve)

	// The stale trade itself is still recorded; trades are append-only.
	trades, err := db.Trades().GetByMint(ctx, "mint-1")
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	fresh := tradeEvent("mint-1", 150, domain.SideBuy)
	require.NoError(t, ing.HandleTrade(ctx, fresh))

	token, err = db.Tokens().GetByMint(ctx, "mint-1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), token.LastUpdate)
	assert.Equal(t, float64(40), token.VSolInBondingCurve)
}

func TestIngestor_NotifyAfterCommit(t *testing.T) {
	db := memory.NewDB()
	ing := New(db, nil, nil)
	ctx := context.Background()

	var seen []*domain.Token
	ing.Notify(func(token *domain.Token) { seen = append(seen, token) })

	require.NoError(t, ing.HandleCreate(ctx, createEvent("mint-1", 1000)))
	require.NoError(t, ing.HandleTrade(ctx, tradeEvent("mint-1", 2000, domain.SideBuy)))

	require.Len(t, seen, 2)
	assert.Equal(t, "mint-1", seen[0].Mint)
	assert.Equal(t, int64(2000), seen[1].LastUpdate)

	// The callback gets a clone; mutating it must not leak back.
	seen[1].Symbol = "MUTATED"
	token, err := db.Tokens().GetByMint(ctx, "mint-1")
	require.NoError(t, err)
	assert.Equal(t, "TST", token.Symbol)
}
