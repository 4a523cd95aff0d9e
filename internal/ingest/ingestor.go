// Package ingest turns classified feed events into persisted state:
// token rows, trade records, and derived metric snapshots.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/metrics"
	"token-watchdesk/internal/observability"
	"token-watchdesk/internal/storage"
)

// snapshotWindowMs is the window of the embedded token metrics
// snapshot recomputed on every trade.
const snapshotWindowMs = 24 * 60 * 60 * 1000

// Enqueuer accepts subscription intents without a durable write. The
// ingestor's creation transaction has already persisted the row.
type Enqueuer interface {
	Enqueue(mint string, action domain.SubscriptionAction)
}

// Ingestor is the feed sink: one transaction per event, skip-stale
// token updates, drop-and-log for trades referencing unknown mints.
type Ingestor struct {
	db       storage.DB
	enqueuer Enqueuer
	log      *zap.Logger

	// notify, when set, receives a clone of each token written, after
	// the transaction commits. The watchlist uses it to keep its
	// in-memory view current.
	notify func(token *domain.Token)
}

// New creates an ingestor. enqueuer may be nil (no subscriptions are
// requested then, useful in tests).
func New(db storage.DB, enqueuer Enqueuer, log *zap.Logger) *Ingestor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingestor{db: db, enqueuer: enqueuer, log: log}
}

// Notify registers the post-commit token callback.
func (i *Ingestor) Notify(fn func(token *domain.Token)) {
	i.notify = fn
}

// HandleCreate records a newly launched token. The token row and its
// subscription row are written in one transaction; the subscribe
// intent is queued only after the commit. An already-known mint is a
// no-op.
func (i *Ingestor) HandleCreate(ctx context.Context, e *domain.CreateEvent) error {
	token := &domain.Token{
		Mint:                  e.Mint,
		Symbol:                e.Symbol,
		Name:                  e.Name,
		Status:                domain.StatusUnwatched,
		CreateTime:            e.Received,
		LastUpdate:            e.Received,
		VSolInBondingCurve:    e.VSol,
		VTokensInBondingCurve: e.VTokens,
		LastPrice:             domain.CurvePrice(e.VSol, e.VTokens),
		Metrics: domain.TokenMetrics{
			Price:       domain.CurvePrice(e.VSol, e.VTokens),
			LastPrice:   domain.CurvePrice(e.VSol, e.VTokens),
			MarketCap:   e.MarketCapSol,
			LPBalance:   e.VSol,
			TokenSupply: e.VTokens,
		},
	}

	err := i.db.WithTx(ctx, func(tx storage.DB) error {
		if err := tx.Tokens().Insert(ctx, token); err != nil {
			return err
		}
		return tx.Subscriptions().Put(ctx, &domain.Subscription{
			Mint:          e.Mint,
			SubscribeTime: e.Received,
			Status:        domain.SubscriptionActive,
		})
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			i.log.Debug("duplicate create event ignored", zap.String("mint", e.Mint))
			return nil
		}
		observability.RecordIngestionError("create")
		return fmt.Errorf("persist created token %s: %w", e.Mint, err)
	}

	observability.RecordTokenCreated()
	i.log.Info("token created",
		zap.String("mint", e.Mint),
		zap.String("symbol", e.Symbol),
		zap.Float64("market_cap_sol", e.MarketCapSol))

	if i.enqueuer != nil {
		i.enqueuer.Enqueue(e.Mint, domain.ActionSubscribe)
	}
	if i.notify != nil {
		i.notify(token.Clone())
	}
	return nil
}

// HandleTrade appends a trade record and refreshes the owning token's
// embedded 24h snapshot, all in one transaction. A trade for an
// unknown mint is dropped with a log; the system never fabricates a
// token from trade data.
func (i *Ingestor) HandleTrade(ctx context.Context, e *domain.TradeEvent) error {
	price := e.Price()
	record := &domain.TradeRecord{
		TokenMint:             e.Mint,
		Timestamp:             e.Received,
		Side:                  e.Side,
		Price:                 price,
		Volume:                e.TokenAmount * price,
		TokenAmount:           e.TokenAmount,
		NewTokenBalance:       e.NewTokenBalance,
		Signature:             e.Signature,
		Trader:                e.Trader,
		BondingCurveKey:       e.BondingCurveKey,
		VSolInBondingCurve:    e.VSol,
		VTokensInBondingCurve: e.VTokens,
		MarketCapSol:          e.MarketCapSol,
	}

	var (
		updated *domain.Token
		dropped bool
	)
	err := i.db.WithTx(ctx, func(tx storage.DB) error {
		// Locked read: the write-back below carries every column, and a
		// watch-status commit landing between a plain read and that
		// write would be lost.
		token, err := tx.Tokens().GetByMintForUpdate(ctx, e.Mint)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				dropped = true
				return nil
			}
			return err
		}

		if err := tx.Trades().Insert(ctx, record); err != nil {
			return err
		}

		// Incoming events for the same mint may arrive out of order;
		// the token row only ever moves forward in time.
		if e.Received <= token.LastUpdate {
			observability.RecordStaleUpdate()
			return nil
		}

		window, err := tx.Trades().GetByMintSince(ctx, e.Mint, e.Received-snapshotWindowMs)
		if err != nil {
			return err
		}
		snap := metrics.Compute(window, snapshotWindowMs, e.Received)

		token.VSolInBondingCurve = e.VSol
		token.VTokensInBondingCurve = e.VTokens
		token.LastPrice = price
		token.LastTradeTime = e.Received
		token.LastUpdate = e.Received
		token.Metrics = domain.TokenMetrics{
			LastPrice:      price,
			Price:          price,
			PriceChange24h: snap.PriceChangePct,
			Volume24h:      snap.TotalVolume,
			Trades24h:      snap.TradeCount,
			LastTradeTime:  e.Received,
			MarketCap:      e.MarketCapSol,
			LPBalance:      e.VSol,
			TokenSupply:    e.VTokens,
			VolumeRate:     snap.VolumeRate,
			TradeFrequency: snap.TradeFrequency,
		}

		if err := tx.Tokens().Update(ctx, token); err != nil {
			return err
		}
		updated = token
		return nil
	})
	if err != nil {
		observability.RecordIngestionError("trade")
		return fmt.Errorf("persist trade for %s: %w", e.Mint, err)
	}

	if dropped {
		observability.RecordTradeDropped()
		i.log.Warn("trade for unknown mint dropped",
			zap.String("mint", e.Mint),
			zap.String("signature", e.Signature))
		return nil
	}

	observability.RecordTradeRecorded()

	if i.notify != nil && updated != nil {
		i.notify(updated.Clone())
	}
	return nil
}
