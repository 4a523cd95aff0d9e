package memory

import (
	"context"
	"sort"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/storage"
)

// TriggerGroupStore is an in-memory implementation of
// storage.TriggerGroupStore.
type TriggerGroupStore struct {
	view
}

var _ storage.TriggerGroupStore = (*TriggerGroupStore)(nil)

// Put upserts a group by ID.
func (s *TriggerGroupStore) Put(_ context.Context, g *domain.TriggerGroup) error {
	if g == nil || g.ID == "" {
		return storage.ErrInvalidInput
	}

	unlock := s.lock()
	defer unlock()

	s.tables().triggerGroups[g.ID] = copyTriggerGroup(g)
	return nil
}

// GetByID retrieves a group. Returns ErrNotFound if not exists.
func (s *TriggerGroupStore) GetByID(_ context.Context, id string) (*domain.TriggerGroup, error) {
	unlock := s.rlock()
	defer unlock()

	g, exists := s.tables().triggerGroups[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyTriggerGroup(g), nil
}

// List retrieves all groups, ordered by name ASC.
func (s *TriggerGroupStore) List(_ context.Context) ([]*domain.TriggerGroup, error) {
	unlock := s.rlock()
	defer unlock()

	result := make([]*domain.TriggerGroup, 0, len(s.tables().triggerGroups))
	for _, g := range s.tables().triggerGroups {
		result = append(result, copyTriggerGroup(g))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Delete removes a group. Missing IDs are not an error.
func (s *TriggerGroupStore) Delete(_ context.Context, id string) error {
	unlock := s.lock()
	defer unlock()

	delete(s.tables().triggerGroups, id)
	return nil
}
