// Package metrics derives rolling-window statistics from trade
// history.
package metrics

import (
	"math"

	"token-watchdesk/internal/domain"
)

// Snapshot is the result of one window aggregation. Rates are
// normalized per minute; PriceChangePct compares the newest trade
// against the oldest trade inside the window, not the previous trade.
type Snapshot struct {
	VolumeRate     float64
	TradeFrequency float64
	PriceChangePct float64
	BuyRatio       float64
	TotalVolume    float64
	TradeCount     int
}

// Compute aggregates trades over [now-windowMs, now]. The input must
// be ordered newest-first; trades outside the window are ignored.
//
// Contract: with zero or one in-window trade every field is 0. No NaN
// or Inf ever escapes; degenerate divisions clamp to 0.
func Compute(trades []*domain.TradeRecord, windowMs, now int64) Snapshot {
	if windowMs <= 0 {
		return Snapshot{}
	}
	cutoff := now - windowMs

	var (
		inWindow    []*domain.TradeRecord
		totalVolume float64
		buys        int
	)
	for _, t := range trades {
		if t.Timestamp < cutoff {
			continue
		}
		inWindow = append(inWindow, t)
		totalVolume += t.Volume
		if t.Side == domain.SideBuy {
			buys++
		}
	}

	n := len(inWindow)
	if n <= 1 {
		// With fewer than two trades every rate and the price delta
		// are defined as 0. The raw totals stay truthful.
		return Snapshot{TotalVolume: totalVolume, TradeCount: n}
	}

	perMinute := 60_000.0 / float64(windowMs)

	newest := inWindow[0]
	oldest := inWindow[n-1]

	var priceChange float64
	if oldest.Price > 0 {
		priceChange = (newest.Price - oldest.Price) / oldest.Price * 100
	}

	return Snapshot{
		VolumeRate:     clamp(totalVolume * perMinute),
		TradeFrequency: clamp(float64(n) * perMinute),
		PriceChangePct: clamp(priceChange),
		BuyRatio:       clamp(float64(buys) / float64(n) * 100),
		TotalVolume:    clamp(totalVolume),
		TradeCount:     n,
	}
}

// clamp maps NaN and infinities to 0.
func clamp(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
