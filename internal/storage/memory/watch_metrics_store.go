package memory

import (
	"context"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/storage"
)

// WatchMetricsStore is an in-memory implementation of
// storage.WatchMetricsStore.
type WatchMetricsStore struct {
	view
}

var _ storage.WatchMetricsStore = (*WatchMetricsStore)(nil)

// Put upserts the metrics row for a mint.
func (s *WatchMetricsStore) Put(_ context.Context, m *domain.WatchMetrics) error {
	if m == nil || m.Mint == "" {
		return storage.ErrInvalidInput
	}

	unlock := s.lock()
	defer unlock()

	s.tables().watchMetrics[m.Mint] = copyWatchMetrics(m)
	return nil
}

// GetByMint retrieves a row. Returns ErrNotFound if not exists.
func (s *WatchMetricsStore) GetByMint(_ context.Context, mint string) (*domain.WatchMetrics, error) {
	unlock := s.rlock()
	defer unlock()

	m, exists := s.tables().watchMetrics[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyWatchMetrics(m), nil
}

// DeleteByMints removes the rows for the given mints.
func (s *WatchMetricsStore) DeleteByMints(_ context.Context, mints []string) error {
	if len(mints) == 0 {
		return nil
	}

	unlock := s.lock()
	defer unlock()

	for _, mint := range mints {
		delete(s.tables().watchMetrics, mint)
	}
	return nil
}

// DeleteAll empties the table.
func (s *WatchMetricsStore) DeleteAll(_ context.Context) error {
	unlock := s.lock()
	defer unlock()

	s.tables().watchMetrics = make(map[string]*domain.WatchMetrics)
	return nil
}
