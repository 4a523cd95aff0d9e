package metrics

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/storage"
)

// cacheTTL bounds how stale a cached aggregate may be. Entries expire
// purely by TTL, never by write-through invalidation.
const cacheTTL = time.Second

// Calculator computes store-backed window aggregates with a short TTL
// cache so repeated requests within the same tick do not hit storage
// again.
type Calculator struct {
	trades storage.TradeStore
	cache  *gocache.Cache
	nowFn  func() int64
}

// NewCalculator creates a calculator over the given trade store.
func NewCalculator(trades storage.TradeStore) *Calculator {
	return &Calculator{
		trades: trades,
		cache:  gocache.New(cacheTTL, 10*time.Second),
		nowFn:  func() int64 { return time.Now().UnixMilli() },
	}
}

// Snapshot returns the window aggregate for a mint, cached for about
// one second per (mint, window) pair.
func (c *Calculator) Snapshot(ctx context.Context, mint string, windowMs int64) (Snapshot, error) {
	key := fmt.Sprintf("snapshot:%s:%d", mint, windowMs)
	if v, ok := c.cache.Get(key); ok {
		return v.(Snapshot), nil
	}

	now := c.nowFn()
	trades, err := c.trades.GetByMintSince(ctx, mint, now-windowMs)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load trades for %s: %w", mint, err)
	}

	snap := Compute(trades, windowMs, now)
	c.cache.SetDefault(key, snap)
	return snap, nil
}

// VolumeRate returns per-minute volume over the window.
func (c *Calculator) VolumeRate(ctx context.Context, mint string, windowMs int64) (float64, error) {
	snap, err := c.Snapshot(ctx, mint, windowMs)
	return snap.VolumeRate, err
}

// TradeFrequency returns per-minute trade count over the window.
func (c *Calculator) TradeFrequency(ctx context.Context, mint string, windowMs int64) (float64, error) {
	snap, err := c.Snapshot(ctx, mint, windowMs)
	return snap.TradeFrequency, err
}

// PriceChange returns the oldest-to-newest price delta percentage.
func (c *Calculator) PriceChange(ctx context.Context, mint string, windowMs int64) (float64, error) {
	snap, err := c.Snapshot(ctx, mint, windowMs)
	return snap.PriceChangePct, err
}

// BuyRatio returns the buy share of in-window trades as a percentage.
func (c *Calculator) BuyRatio(ctx context.Context, mint string, windowMs int64) (float64, error) {
	snap, err := c.Snapshot(ctx, mint, windowMs)
	return snap.BuyRatio, err
}

// BuyCount returns the number of in-window buys, cached like the
// snapshot aggregates.
func (c *Calculator) BuyCount(ctx context.Context, mint string, windowMs int64) (int, error) {
	key := fmt.Sprintf("buyCount:%s:%d", mint, windowMs)
	if v, ok := c.cache.Get(key); ok {
		return v.(int), nil
	}

	now := c.nowFn()
	trades, err := c.trades.GetByMintSince(ctx, mint, now-windowMs)
	if err != nil {
		return 0, fmt.Errorf("load trades for %s: %w", mint, err)
	}

	count := 0
	for _, t := range trades {
		if t.Side == domain.SideBuy {
			count++
		}
	}
	c.cache.SetDefault(key, count)
	return count, nil
}
