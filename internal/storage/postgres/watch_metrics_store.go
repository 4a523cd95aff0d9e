package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/storage"
)

// WatchMetricsStore implements storage.WatchMetricsStore using
// PostgreSQL. Wallet concentration is a JSONB column; the structured
// map is encoded at this boundary only, never carried as a serialized
// string in the domain.
type WatchMetricsStore struct {
	q querier
}

var _ storage.WatchMetricsStore = (*WatchMetricsStore)(nil)

// Put upserts the metrics row for a mint.
func (s *WatchMetricsStore) Put(ctx context.Context, m *domain.WatchMetrics) error {
	if m == nil || m.Mint == "" {
		return storage.ErrInvalidInput
	}

	concentration, err := json.Marshal(m.WalletConcentration)
	if err != nil {
		return fmt.Errorf("encode wallet concentration: %w", err)
	}

	query := `
		INSERT INTO watch_metrics (
			mint, create_time, watch_start_time, peak_volume, peak_price,
			volume_velocity, trade_frequency, buy_wall_strength, last_trade_time,
			manipulation_score, wallet_concentration, last_price, last_update
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		ON CONFLICT (mint) DO UPDATE SET
			watch_start_time = EXCLUDED.watch_start_time,
			peak_volume = EXCLUDED.peak_volume,
			peak_price = EXCLUDED.peak_price,
			volume_velocity = EXCLUDED.volume_velocity,
			trade_frequency = EXCLUDED.trade_frequency,
			buy_wall_strength = EXCLUDED.buy_wall_strength,
			last_trade_time = EXCLUDED.last_trade_time,
			manipulation_score = EXCLUDED.manipulation_score,
			wallet_concentration = EXCLUDED.wallet_concentration,
			last_price = EXCLUDED.last_price,
			last_update = EXCLUDED.last_update
	`
	_, err = s.q.Exec(ctx, query,
		m.Mint, m.CreateTime, m.WatchStartTime, m.PeakVolume, m.PeakPrice,
		m.VolumeVelocity, m.TradeFrequency, m.BuyWallStrength, m.LastTradeTime,
		m.ManipulationScore, concentration, m.LastPrice, m.LastUpdate,
	)
	if err != nil {
		return fmt.Errorf("put watch metrics: %w", err)
	}
	return nil
}

// GetByMint retrieves a row. Returns ErrNotFound if not exists.
func (s *WatchMetricsStore) GetByMint(ctx context.Context, mint string) (*domain.WatchMetrics, error) {
	var (
		m             domain.WatchMetrics
		concentration []byte
	)
	err := s.q.QueryRow(ctx, `
		SELECT mint, create_time, watch_start_time, peak_volume, peak_price,
		       volume_velocity, trade_frequency, buy_wall_strength, last_trade_time,
		       manipulation_score, wallet_concentration, last_price, last_update
		FROM watch_metrics WHERE mint = $1
	`, mint).Scan(
		&m.Mint, &m.CreateTime, &m.WatchStartTime, &m.PeakVolume, &m.PeakPrice,
		&m.VolumeVelocity, &m.TradeFrequency, &m.BuyWallStrength, &m.LastTradeTime,
		&m.ManipulationScore, &concentration, &m.LastPrice, &m.LastUpdate,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get watch metrics: %w", err)
	}

	if len(concentration) > 0 {
		if err := json.Unmarshal(concentration, &m.WalletConcentration); err != nil {
			return nil, fmt.Errorf("decode wallet concentration: %w", err)
		}
	}
	return &m, nil
}

// DeleteByMints removes the rows for the given mints.
func (s *WatchMetricsStore) DeleteByMints(ctx context.Context, mints []string) error {
	if len(mints) == 0 {
		return nil
	}
	if _, err := s.q.Exec(ctx, `DELETE FROM watch_metrics WHERE mint = ANY($1)`, mints); err != nil {
		return fmt.Errorf("delete watch metrics by mints: %w", err)
	}
	return nil
}

// DeleteAll empties the table.
func (s *WatchMetricsStore) DeleteAll(ctx context.Context) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM watch_metrics`); err != nil {
		return fmt.Errorf("delete all watch metrics: %w", err)
	}
	return nil
}
