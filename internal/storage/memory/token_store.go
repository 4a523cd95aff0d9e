package memory

import (
	"context"
	"sort"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	view
}

var _ storage.TokenStore = (*TokenStore)(nil)

// Insert adds a new token. Returns ErrDuplicateKey if the mint exists.
func (s *TokenStore) Insert(_ context.Context, t *domain.Token) error {
	if t == nil || t.Mint == "" {
		return storage.ErrInvalidInput
	}

	unlock := s.lock()
	defer unlock()

	if _, exists := s.tables().tokens[t.Mint]; exists {
		return storage.ErrDuplicateKey
	}
	s.tables().tokens[t.Mint] = t.Clone()
	return nil
}

// GetByMint retrieves a token. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByMint(_ context.Context, mint string) (*domain.Token, error) {
	unlock := s.rlock()
	defer unlock()

	t, exists := s.tables().tokens[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return t.Clone(), nil
}

// GetByMintForUpdate retrieves a token. The memory sink's transactions
// hold the exclusive DB lock for their whole duration, so the plain
// lookup already has the required isolation.
func (s *TokenStore) GetByMintForUpdate(ctx context.Context, mint string) (*domain.Token, error) {
	return s.GetByMint(ctx, mint)
}

// Update overwrites an existing token row.
func (s *TokenStore) Update(_ context.Context, t *domain.Token) error {
	if t == nil || t.Mint == "" {
		return storage.ErrInvalidInput
	}

	unlock := s.lock()
	defer unlock()

	if _, exists := s.tables().tokens[t.Mint]; !exists {
		return storage.ErrNotFound
	}
	s.tables().tokens[t.Mint] = t.Clone()
	return nil
}

// List retrieves all tokens, ordered by create_time ASC.
func (s *TokenStore) List(_ context.Context) ([]*domain.Token, error) {
	unlock := s.rlock()
	defer unlock()

	result := make([]*domain.Token, 0, len(s.tables().tokens))
	for _, t := range s.tables().tokens {
		result = append(result, t.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreateTime != result[j].CreateTime {
			return result[i].CreateTime < result[j].CreateTime
		}
		return result[i].Mint < result[j].Mint
	})
	return result, nil
}

// ListByStatus retrieves tokens with the given watch status.
func (s *TokenStore) ListByStatus(ctx context.Context, status domain.WatchStatus) ([]*domain.Token, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var result []*domain.Token
	for _, t := range all {
		if t.Status == status {
			result = append(result, t)
		}
	}
	return result, nil
}

// DeleteStale removes unwatched tokens with last_update before cutoff.
func (s *TokenStore) DeleteStale(_ context.Context, cutoff int64) ([]string, error) {
	unlock := s.lock()
	defer unlock()

	var removed []string
	for mint, t := range s.tables().tokens {
		if t.Status == domain.StatusUnwatched && t.LastUpdate < cutoff {
			delete(s.tables().tokens, mint)
			removed = append(removed, mint)
		}
	}
	sort.Strings(removed)
	return removed, nil
}

// DeleteAll empties the table.
func (s *TokenStore) DeleteAll(_ context.Context) error {
	unlock := s.lock()
	defer unlock()

	s.tables().tokens = make(map[string]*domain.Token)
	return nil
}
