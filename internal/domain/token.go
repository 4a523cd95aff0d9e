package domain

// WatchStatus marks a token's position relative to the watch-set.
type WatchStatus string

const (
	StatusUnwatched WatchStatus = "unwatched"
	StatusWatched   WatchStatus = "watched"
	StatusTriggered WatchStatus = "triggered"
)

// TokenMetrics is the derived snapshot embedded in a Token row. It is
// overwritten wholesale on every trade; readers must not assume any
// field survives between trades.
type TokenMetrics struct {
	LastPrice      float64 `json:"last_price"`
	PriceChange24h float64 `json:"price_change_24h"`
	Volume24h      float64 `json:"volume_24h"`
	Trades24h      int     `json:"trades_24h"`
	LastTradeTime  int64   `json:"last_trade_time"`
	MarketCap      float64 `json:"market_cap"`
	LPBalance      float64 `json:"lp_balance"`
	TokenSupply    float64 `json:"token_supply"`
	VolumeRate     float64 `json:"volume_rate"`
	TradeFrequency float64 `json:"trade_frequency"`
	Price          float64 `json:"price"`
}

// Token is a launched token keyed by its mint address.
//
// Invariant: LastUpdate is monotonically non-decreasing. Writers must
// skip an update whose derived LastUpdate is not strictly greater than
// the stored value (last-write-wins by recency, not arrival order).
type Token struct {
	Mint       string
	Symbol     string
	Name       string
	Status     WatchStatus
	CreateTime int64 // unix ms
	LastUpdate int64 // unix ms

	// Last-known bonding curve reserves.
	VSolInBondingCurve    float64
	VTokensInBondingCurve float64

	LastPrice     float64
	LastTradeTime int64

	Metrics TokenMetrics
}

// Clone returns a deep copy, safe to hand across component boundaries.
func (t *Token) Clone() *Token {
	c := *t
	return &c
}
