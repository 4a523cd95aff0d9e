package domain

// TradeRecord is an append-only record of a single trade. Identified by
// the (mint, timestamp, signature) composite; ID is storage-assigned.
// A TradeRecord always references a Token that existed at insert time —
// trades for unknown mints are dropped at ingestion, never stored.
type TradeRecord struct {
	ID        int64
	TokenMint string
	Timestamp int64 // unix ms, local receipt time
	Side      TradeSide
	Price     float64
	Volume    float64 // TokenAmount × Price

	TokenAmount     float64
	NewTokenBalance float64
	Signature       string
	Trader          string
	BondingCurveKey string

	VSolInBondingCurve    float64
	VTokensInBondingCurve float64
	MarketCapSol          float64
}
