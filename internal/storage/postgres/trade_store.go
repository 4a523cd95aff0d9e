package postgres

import (
	"context"
	"fmt"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	q querier
}

var _ storage.TradeStore = (*TradeStore)(nil)

// Insert appends a trade and assigns its ID from the sequence.
func (s *TradeStore) Insert(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TokenMint == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trades (
			token_mint, ts, side, price, volume,
			token_amount, new_token_balance, signature, trader, bonding_curve_key,
			v_sol_in_bonding_curve, v_tokens_in_bonding_curve, market_cap_sol
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13
		)
		RETURNING id
	`
	err := s.q.QueryRow(ctx, query,
		t.TokenMint, t.Timestamp, string(t.Side), t.Price, t.Volume,
		t.TokenAmount, t.NewTokenBalance, t.Signature, t.Trader, t.BondingCurveKey,
		t.VSolInBondingCurve, t.VTokensInBondingCurve, t.MarketCapSol,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

const tradeColumns = `
	id, token_mint, ts, side, price, volume,
	token_amount, new_token_balance, signature, trader, bonding_curve_key,
	v_sol_in_bonding_curve, v_tokens_in_bonding_curve, market_cap_sol
`

// GetByMint retrieves all trades for a mint, ordered by timestamp DESC.
func (s *TradeStore) GetByMint(ctx context.Context, mint string) ([]*domain.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE token_mint = $1 ORDER BY ts DESC, id DESC`
	return s.queryTrades(ctx, query, mint)
}

// GetByMintSince retrieves trades with timestamp > since, newest first.
func (s *TradeStore) GetByMintSince(ctx context.Context, mint string, since int64) ([]*domain.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE token_mint = $1 AND ts > $2 ORDER BY ts DESC, id DESC`
	return s.queryTrades(ctx, query, mint, since)
}

// DeleteByMints removes all trades for the given mints.
func (s *TradeStore) DeleteByMints(ctx context.Context, mints []string) (int, error) {
	if len(mints) == 0 {
		return 0, nil
	}

	tag, err := s.q.Exec(ctx, `DELETE FROM trades WHERE token_mint = ANY($1)`, mints)
	if err != nil {
		return 0, fmt.Errorf("delete trades: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteAll empties the table.
func (s *TradeStore) DeleteAll(ctx context.Context) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM trades`); err != nil {
		return fmt.Errorf("delete all trades: %w", err)
	}
	return nil
}

func (s *TradeStore) queryTrades(ctx context.Context, query string, args ...any) ([]*domain.TradeRecord, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var result []*domain.TradeRecord
	for rows.Next() {
		var (
			t    domain.TradeRecord
			side string
		)
		err := rows.Scan(
			&t.ID, &t.TokenMint, &t.Timestamp, &side, &t.Price, &t.Volume,
			&t.TokenAmount, &t.NewTokenBalance, &t.Signature, &t.Trader, &t.BondingCurveKey,
			&t.VSolInBondingCurve, &t.VTokensInBondingCurve, &t.MarketCapSol,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = domain.TradeSide(side)
		result = append(result, &t)
	}
	return result, rows.Err()
}
