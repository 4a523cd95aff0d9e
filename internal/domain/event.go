package domain

import "encoding/json"

// EventKind discriminates feed events after classification.
type EventKind string

const (
	KindCreate       EventKind = "create"
	KindTrade        EventKind = "trade"
	KindUnrecognized EventKind = "unrecognized"
)

// TradeSide is the direction of a trade event.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// Event is a classified feed event. Implementations are immutable once
// constructed; ReceivedAt is stamped at parse time because the upstream
// feed carries no trustworthy timestamp.
type Event interface {
	Kind() EventKind
	// EventMint returns the mint the event refers to ("" for unrecognized).
	EventMint() string
	// ReceivedAt is the local receipt timestamp in unix milliseconds.
	ReceivedAt() int64
}

// CreateEvent is a token-creation event from the feed.
type CreateEvent struct {
	Mint            string
	Symbol          string
	Name            string
	BondingCurveKey string
	VTokens         float64 // token-side bonding curve reserve
	VSol            float64 // SOL-side bonding curve reserve
	MarketCapSol    float64
	Trader          string
	Signature       string
	Received        int64
}

func (e *CreateEvent) Kind() EventKind   { return KindCreate }
func (e *CreateEvent) EventMint() string { return e.Mint }
func (e *CreateEvent) ReceivedAt() int64 { return e.Received }

// TradeEvent is a buy or sell against a token's bonding curve.
type TradeEvent struct {
	Mint            string
	Side            TradeSide
	TokenAmount     float64
	NewTokenBalance float64
	VSol            float64
	VTokens         float64
	MarketCapSol    float64
	Trader          string
	Signature       string
	BondingCurveKey string
	Received        int64
}

func (e *TradeEvent) Kind() EventKind   { return KindTrade }
func (e *TradeEvent) EventMint() string { return e.Mint }
func (e *TradeEvent) ReceivedAt() int64 { return e.Received }

// Price returns the spot price implied by the event's reserves.
// A zero token reserve yields price 0, never a division error.
func (e *TradeEvent) Price() float64 {
	return CurvePrice(e.VSol, e.VTokens)
}

// UnrecognizedEvent carries a frame whose discriminant the parser does
// not know. Kept explicit so consumption sites match exhaustively
// instead of silently dropping unknown payloads.
type UnrecognizedEvent struct {
	TxType   string
	Raw      json.RawMessage
	Received int64
}

func (e *UnrecognizedEvent) Kind() EventKind   { return KindUnrecognized }
func (e *UnrecognizedEvent) EventMint() string { return "" }
func (e *UnrecognizedEvent) ReceivedAt() int64 { return e.Received }

// CurvePrice computes the bonding-curve spot price solReserve/tokenReserve.
// Guards divide-by-zero by returning 0.
func CurvePrice(vSol, vTokens float64) float64 {
	if vTokens <= 0 {
		return 0
	}
	return vSol / vTokens
}
