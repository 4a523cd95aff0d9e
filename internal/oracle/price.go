// Package oracle fetches the SOL/USD reference price from an external
// HTTP source, with a cooldown so bursts of callers share one fetch.
package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"resty.dev/v3"
)

const (
	// DefaultURL is the CoinGecko simple-price endpoint for SOL.
	DefaultURL = "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd"

	// DefaultCooldown is the minimum spacing between upstream fetches.
	DefaultCooldown = 30 * time.Second

	requestTimeout = 10 * time.Second
)

// RateLimitError is returned by ForceUpdate when the cooldown has not
// elapsed. Remaining is how long until the next fetch is allowed.
type RateLimitError struct {
	Remaining time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("price fetch rate limited, retry in %s", e.Remaining.Round(time.Millisecond))
}

// priceResponse is the CoinGecko simple-price payload.
type priceResponse struct {
	Solana struct {
		USD float64 `json:"usd"`
	} `json:"solana"`
}

// PriceOracle caches the SOL/USD price between fetches. Safe for
// concurrent use.
type PriceOracle struct {
	client   *resty.Client
	url      string
	cooldown time.Duration
	log      *zap.Logger

	mu        sync.Mutex
	price     float64
	fetchedAt int64 // unix ms, 0 if never fetched

	nowFn func() int64
}

// Option configures a PriceOracle.
type Option func(*PriceOracle)

func WithURL(url string) Option {
	return func(o *PriceOracle) { o.url = url }
}

func WithCooldown(d time.Duration) Option {
	return func(o *PriceOracle) { o.cooldown = d }
}

func New(log *zap.Logger, opts ...Option) *PriceOracle {
	if log == nil {
		log = zap.NewNop()
	}
	o := &PriceOracle{
		client:   resty.New().SetTimeout(requestTimeout),
		url:      DefaultURL,
		cooldown: DefaultCooldown,
		log:      log,
		nowFn:    func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GetPrice returns the cached price when inside the cooldown and
// fetches otherwise. A fetch failure with a cached price falls back to
// the cache; with no cache it is an error.
func (o *PriceOracle) GetPrice(ctx context.Context) (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.fetchedAt != 0 && o.remainingLocked() > 0 {
		return o.price, nil
	}

	price, err := o.fetch(ctx)
	if err != nil {
		if o.fetchedAt != 0 {
			o.log.Warn("price fetch failed, serving cached", zap.Error(err))
			return o.price, nil
		}
		return 0, err
	}
	o.price = price
	o.fetchedAt = o.nowFn()
	return price, nil
}

// ForceUpdate fetches unconditionally unless the cooldown has not
// elapsed, in which case it fails with a RateLimitError.
func (o *PriceOracle) ForceUpdate(ctx context.Context) (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.fetchedAt != 0 {
		if remaining := o.remainingLocked(); remaining > 0 {
			return 0, &RateLimitError{Remaining: remaining}
		}
	}

	price, err := o.fetch(ctx)
	if err != nil {
		return 0, err
	}
	o.price = price
	o.fetchedAt = o.nowFn()
	return price, nil
}

// CachedPrice returns the last fetched price and whether one exists.
func (o *PriceOracle) CachedPrice() (float64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.price, o.fetchedAt != 0
}

func (o *PriceOracle) remainingLocked() time.Duration {
	elapsed := time.Duration(o.nowFn()-o.fetchedAt) * time.Millisecond
	return o.cooldown - elapsed
}

func (o *PriceOracle) fetch(ctx context.Context) (float64, error) {
	var out priceResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(o.url)
	if err != nil {
		return 0, fmt.Errorf("fetch sol price: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return 0, fmt.Errorf("fetch sol price: status %d", resp.StatusCode())
	}
	if out.Solana.USD <= 0 {
		return 0, fmt.Errorf("fetch sol price: non-positive price %v", out.Solana.USD)
	}
	o.log.Debug("sol price fetched", zap.Float64("usd", out.Solana.USD))
	return out.Solana.USD, nil
}
