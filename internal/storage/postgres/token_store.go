package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	q querier
}

var _ storage.TokenStore = (*TokenStore)(nil)

const tokenColumns = `
	mint, symbol, name, watch_status, create_time, last_update,
	v_sol_in_bonding_curve, v_tokens_in_bonding_curve,
	last_price, last_trade_time, metrics
`

// Insert adds a new token. Returns ErrDuplicateKey if the mint exists.
func (s *TokenStore) Insert(ctx context.Context, t *domain.Token) error {
	if t == nil || t.Mint == "" {
		return storage.ErrInvalidInput
	}

	metrics, err := json.Marshal(t.Metrics)
	if err != nil {
		return fmt.Errorf("encode token metrics: %w", err)
	}

	query := `
		INSERT INTO tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.q.Exec(ctx, query,
		t.Mint, t.Symbol, t.Name, string(t.Status), t.CreateTime, t.LastUpdate,
		t.VSolInBondingCurve, t.VTokensInBondingCurve,
		t.LastPrice, t.LastTradeTime, metrics,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// GetByMint retrieves a token. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByMint(ctx context.Context, mint string) (*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE mint = $1`

	t, err := scanToken(s.q.QueryRow(ctx, query, mint))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return t, nil
}

// GetByMintForUpdate retrieves a token holding a row lock for the rest
// of the surrounding transaction. Without the lock a concurrent
// watch-status commit between this read and the write-back would be
// silently overwritten.
func (s *TokenStore) GetByMintForUpdate(ctx context.Context, mint string) (*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE mint = $1 FOR UPDATE`

	t, err := scanToken(s.q.QueryRow(ctx, query, mint))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token for update: %w", err)
	}
	return t, nil
}

// Update overwrites an existing token row.
func (s *TokenStore) Update(ctx context.Context, t *domain.Token) error {
	if t == nil || t.Mint == "" {
		return storage.ErrInvalidInput
	}

	metrics, err := json.Marshal(t.Metrics)
	if err != nil {
		return fmt.Errorf("encode token metrics: %w", err)
	}

	query := `
		UPDATE tokens SET
			symbol = $2, name = $3, watch_status = $4,
			create_time = $5, last_update = $6,
			v_sol_in_bonding_curve = $7, v_tokens_in_bonding_curve = $8,
			last_price = $9, last_trade_time = $10, metrics = $11
		WHERE mint = $1
	`
	tag, err := s.q.Exec(ctx, query,
		t.Mint, t.Symbol, t.Name, string(t.Status), t.CreateTime, t.LastUpdate,
		t.VSolInBondingCurve, t.VTokensInBondingCurve,
		t.LastPrice, t.LastTradeTime, metrics,
	)
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List retrieves all tokens, ordered by create_time ASC.
func (s *TokenStore) List(ctx context.Context) ([]*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens ORDER BY create_time ASC, mint ASC`
	return s.queryTokens(ctx, query)
}

// ListByStatus retrieves tokens with the given watch status.
func (s *TokenStore) ListByStatus(ctx context.Context, status domain.WatchStatus) ([]*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE watch_status = $1 ORDER BY create_time ASC, mint ASC`
	return s.queryTokens(ctx, query, string(status))
}

// DeleteStale removes unwatched tokens with last_update before cutoff.
func (s *TokenStore) DeleteStale(ctx context.Context, cutoff int64) ([]string, error) {
	query := `
		DELETE FROM tokens
		WHERE watch_status = $1 AND last_update < $2
		RETURNING mint
	`
	rows, err := s.q.Query(ctx, query, string(domain.StatusUnwatched), cutoff)
	if err != nil {
		return nil, fmt.Errorf("delete stale tokens: %w", err)
	}
	defer rows.Close()

	var removed []string
	for rows.Next() {
		var mint string
		if err := rows.Scan(&mint); err != nil {
			return nil, fmt.Errorf("scan pruned mint: %w", err)
		}
		removed = append(removed, mint)
	}
	return removed, rows.Err()
}

// DeleteAll empties the table.
func (s *TokenStore) DeleteAll(ctx context.Context) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM tokens`); err != nil {
		return fmt.Errorf("delete all tokens: %w", err)
	}
	return nil
}

func (s *TokenStore) queryTokens(ctx context.Context, query string, args ...any) ([]*domain.Token, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	var result []*domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*domain.Token, error) {
	var (
		t       domain.Token
		status  string
		metrics []byte
	)
	err := row.Scan(
		&t.Mint, &t.Symbol, &t.Name, &status, &t.CreateTime, &t.LastUpdate,
		&t.VSolInBondingCurve, &t.VTokensInBondingCurve,
		&t.LastPrice, &t.LastTradeTime, &metrics,
	)
	if err != nil {
		return nil, err
	}
	t.Status = domain.WatchStatus(status)
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &t.Metrics); err != nil {
			return nil, fmt.Errorf("decode token metrics: %w", err)
		}
	}
	return &t, nil
}
