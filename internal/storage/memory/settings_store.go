package memory

import (
	"context"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/storage"
)

// SettingsStore is an in-memory implementation of storage.SettingsStore.
type SettingsStore struct {
	view
}

var _ storage.SettingsStore = (*SettingsStore)(nil)

// Get retrieves the singleton settings row.
func (s *SettingsStore) Get(_ context.Context) (*domain.Settings, error) {
	unlock := s.rlock()
	defer unlock()

	if s.tables().settings == nil {
		return nil, storage.ErrNotFound
	}
	row := *s.tables().settings
	return &row, nil
}

// Put upserts the singleton settings row.
func (s *SettingsStore) Put(_ context.Context, settings *domain.Settings) error {
	if settings == nil {
		return storage.ErrInvalidInput
	}

	unlock := s.lock()
	defer unlock()

	row := *settings
	s.tables().settings = &row
	return nil
}
