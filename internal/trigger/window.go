// Package trigger evaluates user-authored rule groups against
// streaming metrics and mutates the watch-set on match.
package trigger

import (
	"sync"
	"time"

	"token-watchdesk/internal/domain"
)

// DefaultHorizon is the rolling trade window horizon.
const DefaultHorizon = time.Hour

// RollingWindow keeps a bounded per-mint history of recent trade
// events, pruned to a fixed horizon on every insert. Owned exclusively
// by the evaluator; independent of the persistence sink so condition
// checks never need a storage round-trip.
type RollingWindow struct {
	mu        sync.Mutex
	horizonMs int64
	trades    map[string][]*domain.TradeEvent // oldest first
}

// NewRollingWindow creates a window with the given horizon.
func NewRollingWindow(horizon time.Duration) *RollingWindow {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &RollingWindow{
		horizonMs: horizon.Milliseconds(),
		trades:    make(map[string][]*domain.TradeEvent),
	}
}

// Add appends a trade and prunes entries older than the horizon
// relative to the new trade's receipt time.
func (w *RollingWindow) Add(e *domain.TradeEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	history := append(w.trades[e.Mint], e)
	cutoff := e.Received - w.horizonMs

	start := 0
	for start < len(history) && history[start].Received < cutoff {
		start++
	}
	w.trades[e.Mint] = history[start:]
}

// Get returns a copy of the mint's in-horizon history, oldest first.
func (w *RollingWindow) Get(mint string, now int64) []*domain.TradeEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	history := w.trades[mint]
	cutoff := now - w.horizonMs

	var out []*domain.TradeEvent
	for _, e := range history {
		if e.Received >= cutoff {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the stored (possibly not yet pruned) entry count for a
// mint.
func (w *RollingWindow) Len(mint string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.trades[mint])
}

// Drop removes a mint's history entirely.
func (w *RollingWindow) Drop(mint string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.trades, mint)
}
