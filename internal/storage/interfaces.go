package storage

import (
	"context"

	"token-watchdesk/internal/domain"
)

// TokenStore provides access to the tokens table, keyed by mint.
type TokenStore interface {
	// Insert adds a new token. Returns ErrDuplicateKey if the mint exists.
	Insert(ctx context.Context, t *domain.Token) error

	// GetByMint retrieves a token. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.Token, error)

	// GetByMintForUpdate retrieves a token and, where the driver
	// supports it, holds a row lock for the rest of the surrounding
	// transaction. Read-modify-write cycles must use this lookup so a
	// concurrent status change cannot be overwritten by the write-back.
	GetByMintForUpdate(ctx context.Context, mint string) (*domain.Token, error)

	// Update overwrites an existing token row. Returns ErrNotFound if
	// the mint does not exist. Recency checks are the caller's job.
	Update(ctx context.Context, t *domain.Token) error

	// List retrieves all tokens, ordered by create_time ASC.
	List(ctx context.Context) ([]*domain.Token, error)

	// ListByStatus retrieves tokens with the given watch status.
	ListByStatus(ctx context.Context, status domain.WatchStatus) ([]*domain.Token, error)

	// DeleteStale removes unwatched tokens whose last_update is before
	// cutoff. Returns the mints removed.
	DeleteStale(ctx context.Context, cutoff int64) ([]string, error)

	// DeleteAll empties the table.
	DeleteAll(ctx context.Context) error
}

// TradeStore provides access to the trades table. Append-only.
type TradeStore interface {
	// Insert appends a trade and assigns its ID.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// GetByMint retrieves all trades for a mint, ordered by timestamp DESC.
	GetByMint(ctx context.Context, mint string) ([]*domain.TradeRecord, error)

	// GetByMintSince retrieves trades for a mint with timestamp > since,
	// ordered by timestamp DESC.
	GetByMintSince(ctx context.Context, mint string, since int64) ([]*domain.TradeRecord, error)

	// DeleteByMints removes all trades for the given mints, returning
	// the number deleted.
	DeleteByMints(ctx context.Context, mints []string) (int, error)

	// DeleteAll empties the table.
	DeleteAll(ctx context.Context) error
}

// SubscriptionStore provides access to the subscriptions table.
type SubscriptionStore interface {
	// Put upserts the subscription row for a mint.
	Put(ctx context.Context, s *domain.Subscription) error

	// GetByMint retrieves a row. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.Subscription, error)

	// ListByStatus retrieves rows with the given status, ordered by
	// subscribe_time ASC.
	ListByStatus(ctx context.Context, status domain.SubscriptionStatus) ([]*domain.Subscription, error)

	// DeleteAll empties the table.
	DeleteAll(ctx context.Context) error
}

// SettingsStore provides access to the singleton settings row.
type SettingsStore interface {
	// Get retrieves the settings row. Returns ErrNotFound before the
	// first Put.
	Get(ctx context.Context) (*domain.Settings, error)

	// Put upserts the settings row.
	Put(ctx context.Context, s *domain.Settings) error
}

// WatchMetricsStore provides access to the watch_metrics table.
type WatchMetricsStore interface {
	// Put upserts the metrics row for a mint.
	Put(ctx context.Context, m *domain.WatchMetrics) error

	// GetByMint retrieves a row. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.WatchMetrics, error)

	// DeleteByMints removes the rows for the given mints. Missing mints
	// are not an error.
	DeleteByMints(ctx context.Context, mints []string) error

	// DeleteAll empties the table.
	DeleteAll(ctx context.Context) error
}

// TriggerGroupStore provides access to user-authored trigger groups.
// Persisted independently of token data; never touched by Wipe.
type TriggerGroupStore interface {
	// Put upserts a group by ID.
	Put(ctx context.Context, g *domain.TriggerGroup) error

	// GetByID retrieves a group. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.TriggerGroup, error)

	// List retrieves all groups, ordered by name ASC.
	List(ctx context.Context) ([]*domain.TriggerGroup, error)

	// Delete removes a group. Missing IDs are not an error.
	Delete(ctx context.Context, id string) error
}

// DB is the persistence sink: the only resource shared across
// components. Each logical unit of work that spans tables runs inside
// WithTx so reads see a consistent snapshot and writes are
// all-or-nothing.
type DB interface {
	Tokens() TokenStore
	Trades() TradeStore
	Subscriptions() SubscriptionStore
	Settings() SettingsStore
	WatchMetrics() WatchMetricsStore
	TriggerGroups() TriggerGroupStore

	// WithTx runs fn against a transactional view of every store.
	// If fn returns an error the transaction rolls back and no effects
	// are observable.
	WithTx(ctx context.Context, fn func(tx DB) error) error

	// Wipe bulk-deletes token, trade, subscription, and watch-metrics
	// data. Settings and trigger groups survive a wipe.
	Wipe(ctx context.Context) error
}
