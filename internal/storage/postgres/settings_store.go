package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/storage"
)

// SettingsStore implements storage.SettingsStore using PostgreSQL.
// The settings live in a single JSONB row keyed by domain.SettingsKey.
type SettingsStore struct {
	q querier
}

var _ storage.SettingsStore = (*SettingsStore)(nil)

// Get retrieves the singleton settings row.
func (s *SettingsStore) Get(ctx context.Context) (*domain.Settings, error) {
	var raw []byte
	err := s.q.QueryRow(ctx,
		`SELECT value FROM settings WHERE id = $1`, domain.SettingsKey,
	).Scan(&raw)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}

	var settings domain.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &settings, nil
}

// Put upserts the singleton settings row.
func (s *SettingsStore) Put(ctx context.Context, settings *domain.Settings) error {
	if settings == nil {
		return storage.ErrInvalidInput
	}

	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	query := `
		INSERT INTO settings (id, value)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET value = EXCLUDED.value
	`
	if _, err := s.q.Exec(ctx, query, domain.SettingsKey, raw); err != nil {
		return fmt.Errorf("put settings: %w", err)
	}
	return nil
}
