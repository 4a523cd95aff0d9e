// Package memory provides an in-memory implementation of the
// persistence sink, used by unit tests and the memory storage driver.
package memory

import (
	"context"

	"sync"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/storage"
)

// tables holds every map backing the sink. Kept in one struct so a
// transaction can snapshot and restore all of them together.
type tables struct {
	tokens        map[string]*domain.Token
	trades        map[int64]*domain.TradeRecord
	nextTradeID   int64
	subscriptions map[string]*domain.Subscription
	settings      *domain.Settings
	watchMetrics  map[string]*domain.WatchMetrics
	triggerGroups map[string]*domain.TriggerGroup
}

func newTables() *tables {
	return &tables{
		tokens:        make(map[string]*domain.Token),
		trades:        make(map[int64]*domain.TradeRecord),
		nextTradeID:   1,
		subscriptions: make(map[string]*domain.Subscription),
		watchMetrics:  make(map[string]*domain.WatchMetrics),
		triggerGroups: make(map[string]*domain.TriggerGroup),
	}
}

// clone deep-copies every table. Rows are value-copied; slice and map
// fields inside rows are copied too so a rolled-back transaction cannot
// leak mutations.
func (t *tables) clone() *tables {
	c := newTables()
	c.nextTradeID = t.nextTradeID
	for k, v := range t.tokens {
		row := *v
		c.tokens[k] = &row
	}
	for k, v := range t.trades {
		row := *v
		c.trades[k] = &row
	}
	for k, v := range t.subscriptions {
		row := *v
		c.subscriptions[k] = &row
	}
	if t.settings != nil {
		row := *t.settings
		c.settings = &row
	}
	for k, v := range t.watchMetrics {
		c.watchMetrics[k] = copyWatchMetrics(v)
	}
	for k, v := range t.triggerGroups {
		c.triggerGroups[k] = copyTriggerGroup(v)
	}
	return c
}

// DB is the in-memory persistence sink. A single lock guards all
// tables; WithTx takes it exclusively and restores a snapshot on error,
// giving all-or-nothing semantics.
type DB struct {
	mu   sync.RWMutex
	data *tables
}

// NewDB creates an empty in-memory sink.
func NewDB() *DB {
	return &DB{data: newTables()}
}

// Compile-time interface check.
var _ storage.DB = (*DB)(nil)

// view is one store's handle on the DB. Inside a transaction the
// DB lock is already held exclusively, so store methods skip locking.
type view struct {
	db   *DB
	inTx bool
}

func (v view) rlock() func() {
	if v.inTx {
		return func() {}
	}
	v.db.mu.RLock()
	return v.db.mu.RUnlock
}

func (v view) lock() func() {
	if v.inTx {
		return func() {}
	}
	v.db.mu.Lock()
	return v.db.mu.Unlock
}

func (v view) tables() *tables { return v.db.data }

func (db *DB) Tokens() storage.TokenStore {
	return &TokenStore{view{db: db}}
}

func (db *DB) Trades() storage.TradeStore {
	return &TradeStore{view{db: db}}
}

func (db *DB) Subscriptions() storage.SubscriptionStore {
	return &SubscriptionStore{view{db: db}}
}

func (db *DB) Settings() storage.SettingsStore {
	return &SettingsStore{view{db: db}}
}

func (db *DB) WatchMetrics() storage.WatchMetricsStore {
	return &WatchMetricsStore{view{db: db}}
}

func (db *DB) TriggerGroups() storage.TriggerGroupStore {
	return &TriggerGroupStore{view{db: db}}
}

// txDB is the transactional facade handed to WithTx callbacks.
type txDB struct {
	db *DB
}

func (t *txDB) Tokens() storage.TokenStore        { return &TokenStore{view{db: t.db, inTx: true}} }
func (t *txDB) Trades() storage.TradeStore        { return &TradeStore{view{db: t.db, inTx: true}} }
func (t *txDB) Subscriptions() storage.SubscriptionStore {
	return &SubscriptionStore{view{db: t.db, inTx: true}}
}
func (t *txDB) Settings() storage.SettingsStore { return &SettingsStore{view{db: t.db, inTx: true}} }
func (t *txDB) WatchMetrics() storage.WatchMetricsStore {
	return &WatchMetricsStore{view{db: t.db, inTx: true}}
}
func (t *txDB) TriggerGroups() storage.TriggerGroupStore {
	return &TriggerGroupStore{view{db: t.db, inTx: true}}
}

// WithTx inside a transaction is flattened into the outer one; the
// sink has a single writer lock, so nesting adds nothing.
func (t *txDB) WithTx(_ context.Context, fn func(tx storage.DB) error) error {
	return fn(t)
}

func (t *txDB) Wipe(ctx context.Context) error {
	return wipe(t)
}

// WithTx runs fn under the exclusive lock against a snapshot-backed
// view. If fn fails, every table is restored to its pre-transaction
// state.
func (db *DB) WithTx(_ context.Context, fn func(tx storage.DB) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.data.clone()
	if err := fn(&txDB{db: db}); err != nil {
		db.data = snapshot
		return err
	}
	return nil
}

// Wipe bulk-deletes token, trade, subscription, and watch-metrics
// data. Settings and trigger groups survive.
func (db *DB) Wipe(_ context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return wipe(&txDB{db: db})
}

func wipe(tx storage.DB) error {
	ctx := context.Background()
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
}

func copyWatchMetrics(m *domain.WatchMetrics) *domain.WatchMetrics {
	row := *m
	row.VolumeVelocity = append([]float64(nil), m.VolumeVelocity...)
	row.TradeFrequency = append([]float64(nil), m.TradeFrequency...)
	if m.WalletConcentration != nil {
		row.WalletConcentration = make(map[string]float64, len(m.WalletConcentration))
		for k, v := range m.WalletConcentration {
			row.WalletConcentration[k] = v
		}
	}
	return &row
}

func copyTriggerGroup(g *domain.TriggerGroup) *domain.TriggerGroup {
	row := *g
	row.Conditions = append([]domain.TriggerCondition(nil), g.Conditions...)
	return &row
}
