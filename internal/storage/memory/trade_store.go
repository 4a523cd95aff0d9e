package memory

import (
	"context"
	"sort"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	view
}

var _ storage.TradeStore = (*TradeStore)(nil)

// Insert appends a trade and assigns its ID.
func (s *TradeStore) Insert(_ context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TokenMint == "" {
		return storage.ErrInvalidInput
	}

	unlock := s.lock()
	defer unlock()

	tbl := s.tables()
	row := *t
	row.ID = tbl.nextTradeID
	tbl.nextTradeID++
	tbl.trades[row.ID] = &row
	t.ID = row.ID
	return nil
}

// GetByMint retrieves all trades for a mint, ordered by timestamp DESC.
func (s *TradeStore) GetByMint(ctx context.Context, mint string) ([]*domain.TradeRecord, error) {
	return s.GetByMintSince(ctx, mint, 0)
}

// GetByMintSince retrieves trades with timestamp > since, newest first.
func (s *TradeStore) GetByMintSince(_ context.Context, mint string, since int64) ([]*domain.TradeRecord, error) {
	unlock := s.rlock()
	defer unlock()

	var result []*domain.TradeRecord
	for _, t := range s.tables().trades {
		if t.TokenMint == mint && t.Timestamp > since {
			row := *t
			result = append(result, &row)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp > result[j].Timestamp
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

// DeleteByMints removes all trades for the given mints.
func (s *TradeStore) DeleteByMints(_ context.Context, mints []string) (int, error) {
	unlock := s.lock()
	defer unlock()

	set := make(map[string]struct{}, len(mints))
	for _, m := range mints {
		set[m] = struct{}{}
	}

	deleted := 0
	for id, t := range s.tables().trades {
		if _, ok := set[t.TokenMint]; ok {
			delete(s.tables().trades, id)
			deleted++
		}
	}
	return deleted, nil
}

// DeleteAll empties the table.
func (s *TradeStore) DeleteAll(_ context.Context) error {
	unlock := s.lock()
	defer unlock()

	s.tables().trades = make(map[int64]*domain.TradeRecord)
	return nil
}
