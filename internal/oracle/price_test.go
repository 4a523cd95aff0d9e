package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func priceServer(t *testing.T, hits *atomic.Int64, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestOracle(t *testing.T, url string, now *int64) *PriceOracle {
	t.Helper()
	o := New(nil, WithURL(url), WithCooldown(30*time.Second))
	o.nowFn = func() int64 { return *now }
	return o
}

func TestPriceOracle_GetPriceCachesInsideCooldown(t *testing.T) {
	var hits atomic.Int64
	srv := priceServer(t, &hits, `{"solana":{"usd":150.5}}`)
	now := int64(1_000_000)
	o := newTestOracle(t, srv.URL, &now)

	price, err := o.GetPrice(context.Background())
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if price != 150.5 {
		t.Fatalf("price = %v, want 150.5", price)
	}

	// Inside the cooldown: served from cache, no second request.
	now += 10_000
	price, err = o.GetPrice(context.Background())
	if err != nil {
		t.Fatalf("cached get price: %v", err)
	}
	if price != 150.5 {
		t.Fatalf("cached price = %v, want 150.5", price)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("upstream hits = %d, want 1", got)
	}

	// Past the cooldown: fetches again.
	now += 25_000
	if _, err := o.GetPrice(context.Background()); err != nil {
		t.Fatalf("refresh get price: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("upstream hits = %d, want 2", got)
	}
}

func TestPriceOracle_ForceUpdateRateLimited(t *testing.T) {
	var hits atomic.Int64
	srv := priceServer(t, &hits, `{"solana":{"usd":150.5}}`)
	now := int64(1_000_000)
	o := newTestOracle(t, srv.URL, &now)

	if _, err := o.ForceUpdate(context.Background()); err != nil {
		t.Fatalf("first force update: %v", err)
	}

	now += 5_000
	_, err := o.ForceUpdate(context.Background())
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
	if rle.Remaining != 25*time.Second {
		t.Errorf("remaining = %v, want 25s", rle.Remaining)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("upstream hits = %d, want 1", got)
	}

	now += 26_000
	if _, err := o.ForceUpdate(context.Background()); err != nil {
		t.Fatalf("force update after cooldown: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("upstream hits = %d, want 2", got)
	}
}

func TestPriceOracle_FetchFailureFallsBackToCache(t *testing.T) {
	var hits atomic.Int64
	fail := atomic.Bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"solana":{"usd":99.0}}`))
	}))
	defer srv.Close()

	now := int64(1_000_000)
	o := newTestOracle(t, srv.URL, &now)

	if _, err := o.GetPrice(context.Background()); err != nil {
		t.Fatalf("seed fetch: %v", err)
	}

	fail.Store(true)
	now += 60_000
	price, err := o.GetPrice(context.Background())
	if err != nil {
		t.Fatalf("expected cached fallback, got %v", err)
	}
	if price != 99.0 {
		t.Fatalf("fallback price = %v, want 99.0", price)
	}
}

func TestPriceOracle_NoCacheFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	now := int64(1_000_000)
	o := newTestOracle(t, srv.URL, &now)
	if _, err := o.GetPrice(context.Background()); err == nil {
		t.Fatal("expected error with no cached price")
	}
	if _, ok := o.CachedPrice(); ok {
		t.Error("failed fetch should not populate the cache")
	}
}
