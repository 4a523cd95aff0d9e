// Package watchlist owns the in-memory token map and the watch-set.
// All mutation goes through the registry's methods; no other component
// touches this state directly.
package watchlist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/observability"
	"token-watchdesk/internal/storage"
)

// PruneStats reports the outcome of the last stale-token prune.
type PruneStats struct {
	Tokens         int
	OrphanedTrades int
	LastRun        int64 // unix ms, 0 if never ran
}

// Registry is the explicitly owned token/watch-set state injected into
// collaborators, with write-through persistence.
type Registry struct {
	db  storage.DB
	log *zap.Logger

	mu      sync.RWMutex
	tokens  map[string]*domain.Token
	watched map[string]struct{}

	// traderVolume accumulates per-trader volume for watched mints,
	// backing the wallet-concentration shares in watch_metrics.
	traderVolume map[string]map[string]float64

	pruneMu    sync.Mutex
	pruneStats PruneStats

	nowFn func() int64
}

// NewRegistry creates an empty registry over the persistence sink.
func NewRegistry(db storage.DB, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		db:           db,
		log:          log,
		tokens:       make(map[string]*domain.Token),
		watched:      make(map[string]struct{}),
		traderVolume: make(map[string]map[string]float64),
		nowFn:        func() int64 { return time.Now().UnixMilli() },
	}
}

// Load populates the registry from the sink. Called once at startup;
// watched and triggered tokens re-enter the watch-set.
func (r *Registry) Load(ctx context.Context) error {
	tokens, err := r.db.Tokens().List(ctx)
	if err != nil {
		return fmt.Errorf("load tokens: %w", err)
	}

	r.mu.Lock()
	r.tokens = make(map[string]*domain.Token, len(tokens))
	r.watched = make(map[string]struct{})
	r.traderVolume = make(map[string]map[string]float64)
	for _, t := range tokens {
		r.tokens[t.Mint] = t
		if t.Status == domain.StatusWatched || t.Status == domain.StatusTriggered {
			r.watched[t.Mint] = struct{}{}
			r.traderVolume[t.Mint] = make(map[string]float64)
		}
	}
	n := len(r.watched)
	r.mu.Unlock()

	observability.UpdateWatchedTokens(n)
	r.log.Info("registry loaded",
		zap.Int("tokens", len(tokens)), zap.Int("watched", n))
	return nil
}

// Get returns a clone of a known token.
func (r *Registry) Get(mint string) (*domain.Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[mint]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// List returns clones of all known tokens.
func (r *Registry) List() []*domain.Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Token, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, t.Clone())
	}
	return out
}

// IsWatched reports watch-set membership.
func (r *Registry) IsWatched(mint string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.watched[mint]
	return ok
}

// WatchedCount returns the watch-set size.
func (r *Registry) WatchedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.watched)
}

// Watch adds a mint to the watch-set. Idempotent: watching a watched
// mint is a no-op. Unknown mints are an error; the watch-set never
// references tokens the store does not have.
func (r *Registry) Watch(ctx context.Context, mint string) error {
	r.mu.Lock()
	token, ok := r.tokens[mint]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("watch %s: %w", mint, storage.ErrNotFound)
	}
	if _, already := r.watched[mint]; already {
		r.mu.Unlock()
		return nil
	}
	token.Status = domain.StatusWatched
	r.watched[mint] = struct{}{}
	r.traderVolume[mint] = make(map[string]float64)
	clone := token.Clone()
	n := len(r.watched)
	r.mu.Unlock()

	now := r.nowFn()
	err := r.db.WithTx(ctx, func(tx storage.DB) error {
		if err := tx.Tokens().Update(ctx, clone); err != nil {
			return err
		}
		if _, err := tx.WatchMetrics().GetByMint(ctx, mint); err == nil {
			return nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return tx.WatchMetrics().Put(ctx, &domain.WatchMetrics{
			Mint:           mint,
			CreateTime:     clone.CreateTime,
			WatchStartTime: now,
			PeakPrice:      clone.LastPrice,
			LastPrice:      clone.LastPrice,
			LastTradeTime:  clone.LastTradeTime,
			LastUpdate:     now,
		})
	})
	if err != nil {
		return fmt.Errorf("persist watch for %s: %w", mint, err)
	}

	observability.UpdateWatchedTokens(n)
	r.log.Info("token watched", zap.String("mint", mint))
	return nil
}

// Unwatch removes a mint from the watch-set. Dangling-safe: unwatching
// a never-watched or unknown mint leaves everything unchanged.
func (r *Registry) Unwatch(ctx context.Context, mint string) error {
	r.mu.Lock()
	token, known := r.tokens[mint]
	_, watching := r.watched[mint]
	if !known || !watching {
		r.mu.Unlock()
		return nil
	}
	token.Status = domain.StatusUnwatched
	delete(r.watched, mint)
	delete(r.traderVolume, mint)
	clone := token.Clone()
	n := len(r.watched)
	r.mu.Unlock()

	if err := r.db.Tokens().Update(ctx, clone); err != nil {
		return fmt.Errorf("persist unwatch for %s: %w", mint, err)
	}

	observability.UpdateWatchedTokens(n)
	r.log.Info("token unwatched", zap.String("mint", mint))
	return nil
}

// Absorb merges a token written by the ingestor into the in-memory
// map. Stale versions are ignored; the map only moves forward in time.
// The persisted watch status wins over the incoming clone's.
func (r *Registry) Absorb(token *domain.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.tokens[token.Mint]
	if ok && token.LastUpdate < existing.LastUpdate {
		return
	}
	if ok {
		token.Status = existing.Status
	}
	r.tokens[token.Mint] = token
}

// ObserveTrade updates the watch metrics of a watched mint from a live
// trade: peaks, wallet concentration, recency. A trade for an
// unwatched mint is ignored.
func (r *Registry) ObserveTrade(ctx context.Context, e *domain.TradeEvent) error {
	if !r.IsWatched(e.Mint) {
		return nil
	}

	price := e.Price()
	volume := e.TokenAmount * price

	r.mu.Lock()
	volumes := r.traderVolume[e.Mint]
	if volumes == nil {
		volumes = make(map[string]float64)
		r.traderVolume[e.Mint] = volumes
	}
	volumes[e.Trader] += volume

	var total float64
	for _, v := range volumes {
		total += v
	}
	concentration := make(map[string]float64, len(volumes))
	if total > 0 {
		for trader, v := range volumes {
			concentration[trader] = v / total
		}
	}
	r.mu.Unlock()

	wm, err := r.db.WatchMetrics().GetByMint(ctx, e.Mint)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("load watch metrics for %s: %w", e.Mint, err)
		}
		wm = &domain.WatchMetrics{Mint: e.Mint, WatchStartTime: e.Received}
	}

	if price > wm.PeakPrice {
		wm.PeakPrice = price
	}
	if volume > wm.PeakVolume {
		wm.PeakVolume = volume
	}
	wm.VolumeVelocity = appendBounded(wm.VolumeVelocity, volume, 60)
	wm.WalletConcentration = concentration
	wm.LastPrice = price
	wm.LastTradeTime = e.Received
	wm.LastUpdate = e.Received

	if err := r.db.WatchMetrics().Put(ctx, wm); err != nil {
		return fmt.Errorf("persist watch metrics for %s: %w", e.Mint, err)
	}
	return nil
}

// appendBounded appends keeping at most max trailing entries.
func appendBounded(series []float64, v float64, max int) []float64 {
	series = append(series, v)
	if len(series) > max {
		series = series[len(series)-max:]
	}
	return series
}

// PruneStale removes unwatched tokens idle since before the threshold,
// together with their now-orphaned trades, in one transaction. Watched
// tokens are never pruned regardless of age.
func (r *Registry) PruneStale(ctx context.Context, threshold time.Duration) (PruneStats, error) {
	if threshold <= 0 {
		return r.LastPruneStats(), nil
	}

	cutoff := r.nowFn() - threshold.Milliseconds()

	var stats PruneStats
	err := r.db.WithTx(ctx, func(tx storage.DB) error {
		mints, err := tx.Tokens().DeleteStale(ctx, cutoff)
		if err != nil {
			return err
		}
		trades, err := tx.Trades().DeleteByMints(ctx, mints)
		if err != nil {
			return err
		}
		if err := tx.WatchMetrics().DeleteByMints(ctx, mints); err != nil {
			return err
		}
		stats.Tokens = len(mints)
		stats.OrphanedTrades = trades

		r.mu.Lock()
		for _, mint := range mints {
			delete(r.tokens, mint)
		}
		r.mu.Unlock()
		return nil
	})
	if err != nil {
		return PruneStats{}, fmt.Errorf("prune stale tokens: %w", err)
	}

	stats.LastRun = r.nowFn()
	r.pruneMu.Lock()
	r.pruneStats = stats
	r.pruneMu.Unlock()

	if stats.Tokens > 0 {
		observability.RecordTokensPruned(stats.Tokens)
		r.log.Info("stale tokens pruned",
			zap.Int("tokens", stats.Tokens),
			zap.Int("orphaned_trades", stats.OrphanedTrades))
	}
	return stats, nil
}

// LastPruneStats returns the stats of the most recent prune.
func (r *Registry) LastPruneStats() PruneStats {
	r.pruneMu.Lock()
	defer r.pruneMu.Unlock()
	return r.pruneStats
}
