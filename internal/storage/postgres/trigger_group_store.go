package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/storage"
)

// TriggerGroupStore implements storage.TriggerGroupStore using
// PostgreSQL. Conditions are stored as a JSONB array.
type TriggerGroupStore struct {
	q querier
}

var _ storage.TriggerGroupStore = (*TriggerGroupStore)(nil)

// Put upserts a group by ID.
func (s *TriggerGroupStore) Put(ctx context.Context, g *domain.TriggerGroup) error {
	if g == nil || g.ID == "" {
		return storage.ErrInvalidInput
	}

	conditions, err := json.Marshal(g.Conditions)
	if err != nil {
		return fmt.Errorf("encode trigger conditions: %w", err)
	}

	query := `
		INSERT INTO trigger_groups (id, name, enabled, type, operator, conditions)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			enabled = EXCLUDED.enabled,
			type = EXCLUDED.type,
			operator = EXCLUDED.operator,
			conditions = EXCLUDED.conditions
	`
	_, err = s.q.Exec(ctx, query,
		g.ID, g.Name, g.Enabled, string(g.Type), string(g.Operator), conditions,
	)
	if err != nil {
		return fmt.Errorf("put trigger group: %w", err)
	}
	return nil
}

// GetByID retrieves a group. Returns ErrNotFound if not exists.
func (s *TriggerGroupStore) GetByID(ctx context.Context, id string) (*domain.TriggerGroup, error) {
	row := s.q.QueryRow(ctx,
		`SELECT id, name, enabled, type, operator, conditions FROM trigger_groups WHERE id = $1`, id)

	g, err := scanTriggerGroup(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trigger group: %w", err)
	}
	return g, nil
}

// List retrieves all groups, ordered by name ASC.
func (s *TriggerGroupStore) List(ctx context.Context) ([]*domain.TriggerGroup, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, name, enabled, type, operator, conditions FROM trigger_groups ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query trigger groups: %w", err)
	}
	defer rows.Close()

	var result []*domain.TriggerGroup
	for rows.Next() {
		g, err := scanTriggerGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trigger group: %w", err)
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

// Delete removes a group. Missing IDs are not an error.
func (s *TriggerGroupStore) Delete(ctx context.Context, id string) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM trigger_groups WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete trigger group: %w", err)
	}
	return nil
}

func scanTriggerGroup(row rowScanner) (*domain.TriggerGroup, error) {
	var (
		g          domain.TriggerGroup
		gtype      string
		operator   string
		conditions []byte
	)
	if err := row.Scan(&g.ID, &g.Name, &g.Enabled, &gtype, &operator, &conditions); err != nil {
		return nil, err
	}
	g.Type = domain.TriggerType(gtype)
	g.Operator = domain.TriggerOperator(operator)
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &g.Conditions); err != nil {
			return nil, fmt.Errorf("decode trigger conditions: %w", err)
		}
	}
	return &g, nil
}
