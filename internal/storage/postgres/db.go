package postgres

import (
	"context"
	"fmt"

	"token-watchdesk/internal/storage"
)

// DB implements storage.DB on a pgx pool. WithTx swaps the querier for
// a pgx.Tx so every store issued from the transactional view shares
// one atomic transaction.
type DB struct {
	pool *Pool
	q    querier
	inTx bool
}

// NewDB creates the Postgres-backed persistence sink.
func NewDB(pool *Pool) *DB {
	return &DB{pool: pool, q: pool.Pool}
}

// Compile-time interface check.
var _ storage.DB = (*DB)(nil)

func (d *DB) Tokens() storage.TokenStore               { return &TokenStore{q: d.q} }
func (d *DB) Trades() storage.TradeStore               { return &TradeStore{q: d.q} }
func (d *DB) Subscriptions() storage.SubscriptionStore { return &SubscriptionStore{q: d.q} }
func (d *DB) Settings() storage.SettingsStore          { return &SettingsStore{q: d.q} }
func (d *DB) WatchMetrics() storage.WatchMetricsStore  { return &WatchMetricsStore{q: d.q} }
func (d *DB) TriggerGroups() storage.TriggerGroupStore { return &TriggerGroupStore{q: d.q} }

// WithTx runs fn inside a single pgx transaction. Nested calls reuse
// the surrounding transaction.
func (d *DB) WithTx(ctx context.Context, fn func(tx storage.DB) error) error {
	if d.inTx {
		return fn(d)
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&DB{pool: d.pool, q: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Wipe bulk-deletes token, trade, subscription, and watch-metrics
// data in one transaction. Settings and trigger groups survive.
func (d *DB) Wipe(ctx context.Context) error {
	return d.WithTx(ctx, func(tx storage.DB) error {
		if err := tx.Trades().DeleteAll(ctx); err != nil {
			return err
		}
		if err := tx.Tokens().DeleteAll(ctx); err != nil {
			return err
		}
		if err := tx.Subscriptions().DeleteAll(ctx); err != nil {
			return err
		}
		return tx.WatchMetrics().DeleteAll(ctx)
	})
}
