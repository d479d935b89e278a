// Package resolver looks up the counterpart address for a trade's other
// ledger, given one side's address, against a remote key-value store this
// repository does not own.
package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/klingon-exchange/barterd/pkg/logging"
)

// Keypair is one resolved L1/L2 address pairing.
type Keypair struct {
	L1Address string
	L2Address string
}

// Client looks up a Keypair by either side's address. Both absence and
// error return (nil, nil) to the caller per spec.md §4.5 — only the log
// line's label distinguishes the two cases.
type Client interface {
	LookupByL1(ctx context.Context, addr string) (*Keypair, error)
	LookupByL2(ctx context.Context, addr string) (*Keypair, error)
}

// HTTPClient is a single-row-GET REST client, grounded on the same
// baseURL+httpClient shape used in internal/l2 and, ultimately, the
// teacher's internal/backend/mempool.go.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *logging.Logger
}

// NewHTTPClient constructs a resolver Client.
func NewHTTPClient(baseURL, apiKey string, log *logging.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		log: log,
	}
}

// LookupByL1 looks up a Keypair by its L1 address.
func (c *HTTPClient) LookupByL1(ctx context.Context, addr string) (*Keypair, error) {
	return c.lookup(ctx, "/by-l1/"+addr, "l1")
}

// LookupByL2 looks up a Keypair by its L2 address.
func (c *HTTPClient) LookupByL2(ctx context.Context, addr string) (*Keypair, error) {
	return c.lookup(ctx, "/by-l2/"+addr, "l2")
}

func (c *HTTPClient) lookup(ctx context.Context, path, side string) (*Keypair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		c.log.Warn("resolver: building lookup request failed", "side", side, "error", err)
		return nil, nil
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("resolver: lookup request failed", "side", side, "error", err)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("resolver: lookup non-2xx", "side", side, "status", resp.StatusCode)
		return nil, nil
	}

	var raw struct {
		L1Address string `json:"l1_address"`
		L2Address string `json:"l2_address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		c.log.Warn("resolver: decoding lookup response failed", "side", side, "error", err)
		return nil, nil
	}

	return &Keypair{L1Address: raw.L1Address, L2Address: raw.L2Address}, nil
}

var _ Client = (*HTTPClient)(nil)
