package memory

import (
	"context"
	"sort"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/storage"
)

// SubscriptionStore is an in-memory implementation of
// storage.SubscriptionStore.
type SubscriptionStore struct {
	view
}

var _ storage.SubscriptionStore = (*SubscriptionStore)(nil)

// Put upserts the subscription row for a mint.
func (s *SubscriptionStore) Put(_ context.Context, sub *domain.Subscription) error {
	if sub == nil || sub.Mint == "" {
		return storage.ErrInvalidInput
	}

	unlock := s.lock()
	defer unlock()

	row := *sub
	s.tables().subscriptions[sub.Mint] = &row
	return nil
}

// GetByMint retrieves a row. Returns ErrNotFound if not exists.
func (s *SubscriptionStore) GetByMint(_ context.Context, mint string) (*domain.Subscription, error) {
	unlock := s.rlock()
	defer unlock()

	sub, exists := s.tables().subscriptions[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}
	row := *sub
	return &row, nil
}

// ListByStatus retrieves rows with the given status, oldest first.
func (s *SubscriptionStore) ListByStatus(_ context.Context, status domain.SubscriptionStatus) ([]*domain.Subscription, error) {
	unlock := s.rlock()
	defer unlock()

	var result []*domain.Subscription
	for _, sub := range s.tables().subscriptions {
		if sub.Status == status {
			row := *sub
			result = append(result, &row)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].SubscribeTime != result[j].SubscribeTime {
			return result[i].SubscribeTime < result[j].SubscribeTime
		}
		return result[i].Mint < result[j].Mint
	})
	return result, nil
}

// DeleteAll empties the table.
func (s *SubscriptionStore) DeleteAll(_ context.Context) error {
	unlock := s.lock()
	defer unlock()

	s.tables().subscriptions = make(map[string]*domain.Subscription)
	return nil
}
