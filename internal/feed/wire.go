// Package feed owns the live connection to the token-launch event
// stream: frame parsing, connection lifecycle, and subscription
// batching.
package feed

import (
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"

	"token-watchdesk/internal/domain"
)

// Outbound wire methods understood by the upstream feed.
const (
	MethodSubscribeNewToken     = "subscribeNewToken"
	MethodSubscribeTokenTrade   = "subscribeTokenTrade"
	MethodUnsubscribeTokenTrade = "unsubscribeTokenTrade"

	// Defined by the upstream protocol; the daemon itself only issues
	// token-trade and new-token subscriptions.
	MethodSubscribeAccountTrade   = "subscribeAccountTrade"
	MethodUnsubscribeAccountTrade = "unsubscribeAccountTrade"
)

// OutboundMessage is a wire message to the upstream feed.
type OutboundMessage struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys,omitempty"`
}

// Frame discriminant values.
const (
	txTypeCreate = "create"
	txTypeBuy    = "buy"
	txTypeSell   = "sell"
)

// inboundFrame is the superset of fields across creation and trade
// frames, discriminated by txType.
type inboundFrame struct {
	TxType          string  `json:"txType"`
	Mint            string  `json:"mint"`
	Symbol          string  `json:"symbol"`
	Name            string  `json:"name"`
	BondingCurveKey string  `json:"bondingCurveKey"`
	VTokens         float64 `json:"vTokensInBondingCurve"`
	VSol            float64 `json:"vSolInBondingCurve"`
	MarketCapSol    float64 `json:"marketCapSol"`
	Trader          string  `json:"traderPublicKey"`
	Signature       string  `json:"signature"`
	TokenAmount     float64 `json:"tokenAmount"`
	NewTokenBalance float64 `json:"newTokenBalance"`
}

// ParseFrame decodes an inbound frame into a typed event, stamping it
// with the supplied receipt time. Unknown discriminants come back as an
// UnrecognizedEvent so the caller can count them; a malformed frame
// (bad JSON, undecodable mint) is an error and must be discarded.
func ParseFrame(data []byte, receivedAt int64) (domain.Event, error) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch frame.TxType {
	case txTypeCreate:
		if err := validateMint(frame.Mint); err != nil {
			return nil, err
		}
		return &domain.CreateEvent{
			Mint:            frame.Mint,
			Symbol:          frame.Symbol,
			Name:            frame.Name,
			BondingCurveKey: frame.BondingCurveKey,
			VTokens:         frame.VTokens,
			VSol:            frame.VSol,
			MarketCapSol:    frame.MarketCapSol,
			Trader:          frame.Trader,
			Signature:       frame.Signature,
			Received:        receivedAt,
		}, nil

	case txTypeBuy, txTypeSell:
		if err := validateMint(frame.Mint); err != nil {
			return nil, err
		}
		side := domain.SideBuy
		if frame.TxType == txTypeSell {
			side = domain.SideSell
		}
		return &domain.TradeEvent{
			Mint:            frame.Mint,
			Side:            side,
			TokenAmount:     frame.TokenAmount,
			NewTokenBalance: frame.NewTokenBalance,
			VSol:            frame.VSol,
			VTokens:         frame.VTokens,
			MarketCapSol:    frame.MarketCapSol,
			Trader:          frame.Trader,
			Signature:       frame.Signature,
			BondingCurveKey: frame.BondingCurveKey,
			Received:        receivedAt,
		}, nil

	default:
		return &domain.UnrecognizedEvent{
			TxType:   frame.TxType,
			Raw:      json.RawMessage(data),
			Received: receivedAt,
		}, nil
	}
}

// validateMint checks the mint is a base58-encoded 32-byte key.
func validateMint(mint string) error {
	if mint == "" {
		return fmt.Errorf("empty mint")
	}
	raw, err := base58.Decode(mint)
	if err != nil {
		return fmt.Errorf("decode mint %q: %w", mint, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("mint %q: expected 32 bytes, got %d", mint, len(raw))
	}
	return nil
}
