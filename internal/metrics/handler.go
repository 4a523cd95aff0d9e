package metrics

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// defaultWindowMs matches the window of the embedded token snapshot.
const defaultWindowMs = 24 * 60 * 60 * 1000

// SnapshotResponse is the JSON shape served by Handler.
type SnapshotResponse struct {
	Mint           string  `json:"mint"`
	WindowMs       int64   `json:"window_ms"`
	VolumeRate     float64 `json:"volume_rate"`
	TradeFrequency float64 `json:"trade_frequency"`
	PriceChangePct float64 `json:"price_change_pct"`
	BuyRatio       float64 `json:"buy_ratio"`
	TotalVolume    float64 `json:"total_volume"`
	TradeCount     int     `json:"trade_count"`
}

// Handler serves per-token window aggregates as JSON. Reads go through
// the calculator's TTL cache, so polling dashboards do not hammer the
// trade store.
type Handler struct {
	calc *Calculator
	log  *zap.Logger
}

// NewHandler creates a handler over the given calculator.
func NewHandler(calc *Calculator, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{calc: calc, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mint := r.URL.Query().Get("mint")
	if mint == "" {
		http.Error(w, "missing mint parameter", http.StatusBadRequest)
		return
	}

	windowMs := int64(defaultWindowMs)
	if raw := r.URL.Query().Get("window_ms"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid window_ms parameter", http.StatusBadRequest)
			return
		}
		windowMs = parsed
	}

	snap, err := h.calc.Snapshot(r.Context(), mint, windowMs)
	if err != nil {
		h.log.Error("aggregate snapshot failed",
			zap.String("mint", mint), zap.Error(err))
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	resp := SnapshotResponse{
		Mint:           mint,
		WindowMs:       windowMs,
		VolumeRate:     snap.VolumeRate,
		TradeFrequency: snap.TradeFrequency,
		PriceChangePct: snap.PriceChangePct,
		BuyRatio:       snap.BuyRatio,
		TotalVolume:    snap.TotalVolume,
		TradeCount:     snap.TradeCount,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
