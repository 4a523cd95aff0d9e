package domain

// WatchMetrics tracks a watched token's performance since it entered
// the watch-set. One row per mint. WalletConcentration is a structured
// map (trader → share of traded volume); encoding to the persistence
// sink happens at the storage boundary only.
type WatchMetrics struct {
	Mint            string
	CreateTime      int64
	WatchStartTime  int64
	PeakVolume      float64
	PeakPrice       float64
	VolumeVelocity  []float64
	TradeFrequency  []float64
	BuyWallStrength float64
	LastTradeTime   int64

	ManipulationScore   float64
	WalletConcentration map[string]float64

	LastPrice  float64
	LastUpdate int64
}
