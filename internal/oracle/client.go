// Package oracle fetches and caches the two asset prices the coordinator
// needs to quote a trade's escrow daemon: the L1 asset's price in USD and
// the L2 asset's price in USD.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrOracleUnavailable is returned for the current lock attempt only —
// never as a cause to mutate coordinator state — when either price is
// missing, zero, or the derived price is non-positive (spec.md §4.4).
var ErrOracleUnavailable = errors.New("oracle: price snapshot unavailable")

// DefaultTTL is the cache lifetime applied when Config.TTL is zero.
const DefaultTTL = 8 * time.Minute

// Price is a single external rate-provider quote.
type Price struct {
	Value                int64
	Decimals             int
	AggregationTimestamp int64
}

// Snapshot is a paired quote for both assets, as consumed by the L2
// set-in-transit call.
type Snapshot struct {
	AssetAUSD            Price
	AssetBUSD            Price
	AggregationTimestamp int64
}

// Validate rejects a snapshot whose derived price would be non-positive.
func (s Snapshot) Validate() error {
	if s.AssetAUSD.Value <= 0 || s.AssetBUSD.Value <= 0 {
		return fmt.Errorf("%w: non-positive quote", ErrOracleUnavailable)
	}
	if s.PriceAPerB() <= 0 || s.PriceBPerA() <= 0 {
		return fmt.Errorf("%w: non-positive derived price", ErrOracleUnavailable)
	}
	return nil
}

// PriceAPerB returns asset A's price denominated in units of asset B, as
// an integer fixed-point value at s.AssetAUSD.Decimals, matching spec.md's
// "priceA · decimals / priceB" rule.
func (s Snapshot) PriceAPerB() int64 {
	return (s.AssetAUSD.Value * pow10(s.AssetAUSD.Decimals)) / s.AssetBUSD.Value
}

// PriceBPerA is the reciprocal of PriceAPerB, at s.AssetBUSD.Decimals.
func (s Snapshot) PriceBPerA() int64 {
	return (s.AssetBUSD.Value * pow10(s.AssetBUSD.Decimals)) / s.AssetAUSD.Value
}

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

// Client fetches a cached price Snapshot.
type Client interface {
	Get(ctx context.Context) (Snapshot, error)
}

// HTTPClient fetches both legs concurrently via errgroup and caches the
// combined snapshot for TTL. Grounded on the teacher's concurrent-fan-out
// idiom (internal/wallet/utxo_sync.go's sync.WaitGroup-driven refresh),
// adapted to errgroup so the first failing leg short-circuits the other.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	ttl        time.Duration
	httpClient *http.Client

	mu        sync.Mutex
	cached    Snapshot
	expiresAt time.Time
}

// NewHTTPClient constructs a Client. ttl of zero uses DefaultTTL.
func NewHTTPClient(baseURL, apiKey string, ttl time.Duration) *HTTPClient {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		ttl:     ttl,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Get returns the cached snapshot if still fresh, otherwise fetches both
// legs concurrently, validates, caches, and returns the result.
func (c *HTTPClient) Get(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if time.Now().Before(c.expiresAt) {
		snap := c.cached
		c.mu.Unlock()
		return snap, nil
	}
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	var assetA, assetB Price
	g.Go(func() error {
		p, err := c.fetchPrice(gctx, "asset-a")
		if err != nil {
			return err
		}
		assetA = p
		return nil
	})
	g.Go(func() error {
		p, err := c.fetchPrice(gctx, "asset-b")
		if err != nil {
			return err
		}
		assetB = p
		return nil
	})

	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	snap := Snapshot{
		AssetAUSD:            assetA,
		AssetBUSD:            assetB,
		AggregationTimestamp: max64(assetA.AggregationTimestamp, assetB.AggregationTimestamp),
	}
	if err := snap.Validate(); err != nil {
		return Snapshot{}, err
	}

	c.mu.Lock()
	c.cached = snap
	c.expiresAt = time.Now().Add(c.ttl)
	c.mu.Unlock()

	return snap, nil
}

func (c *HTTPClient) fetchPrice(ctx context.Context, symbol string) (Price, error) {
	url := fmt.Sprintf("%s/price/%s", c.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Price{}, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Price{}, fmt.Errorf("oracle: fetching %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Price{}, fmt.Errorf("oracle: %s responded with status %d", symbol, resp.StatusCode)
	}

	var raw struct {
		Price                int64 `json:"price"`
		Decimals             int   `json:"decimals"`
		AggregationTimestamp int64 `json:"aggregationTimestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Price{}, fmt.Errorf("oracle: decoding %s response: %w", symbol, err)
	}
	if raw.Price <= 0 {
		return Price{}, fmt.Errorf("%w: %s price is zero or missing", ErrOracleUnavailable, symbol)
	}

	return Price{Value: raw.Price, Decimals: raw.Decimals, AggregationTimestamp: raw.AggregationTimestamp}, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

var _ Client = (*HTTPClient)(nil)
