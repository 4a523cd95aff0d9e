package postgres

import (
	"context"
	"fmt"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/storage"
)

// SubscriptionStore implements storage.SubscriptionStore using PostgreSQL.
type SubscriptionStore struct {
	q querier
}

var _ storage.SubscriptionStore = (*SubscriptionStore)(nil)

// Put upserts the subscription row for a mint.
func (s *SubscriptionStore) Put(ctx context.Context, sub *domain.Subscription) error {
	if sub == nil || sub.Mint == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO subscriptions (mint, subscribe_time, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (mint) DO UPDATE SET
			subscribe_time = EXCLUDED.subscribe_time,
			status = EXCLUDED.status
	`
	if _, err := s.q.Exec(ctx, query, sub.Mint, sub.SubscribeTime, string(sub.Status)); err != nil {
		return fmt.Errorf("put subscription: %w", err)
	}
	return nil
}

// GetByMint retrieves a row. Returns ErrNotFound if not exists.
func (s *SubscriptionStore) GetByMint(ctx context.Context, mint string) (*domain.Subscription, error) {
	var (
		sub    domain.Subscription
		status string
	)
	err := s.q.QueryRow(ctx,
		`SELECT mint, subscribe_time, status FROM subscriptions WHERE mint = $1`, mint,
	).Scan(&sub.Mint, &sub.SubscribeTime, &status)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	sub.Status = domain.SubscriptionStatus(status)
	return &sub, nil
}

// ListByStatus retrieves rows with the given status, oldest first.
func (s *SubscriptionStore) ListByStatus(ctx context.Context, status domain.SubscriptionStatus) ([]*domain.Subscription, error) {
	rows, err := s.q.Query(ctx,
		`SELECT mint, subscribe_time, status FROM subscriptions WHERE status = $1 ORDER BY subscribe_time ASC, mint ASC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var result []*domain.Subscription
	for rows.Next() {
		var (
			sub domain.Subscription
			st  string
		)
		if err := rows.Scan(&sub.Mint, &sub.SubscribeTime, &st); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		sub.Status = domain.SubscriptionStatus(st)
		result = append(result, &sub)
	}
	return result, rows.Err()
}

// DeleteAll empties the table.
func (s *SubscriptionStore) DeleteAll(ctx context.Context) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM subscriptions`); err != nil {
		return fmt.Errorf("delete all subscriptions: %w", err)
	}
	return nil
}
