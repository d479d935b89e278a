package l2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/klingon-exchange/barterd/pkg/logging"
)

// HTTPClient is the escrowd REST client, one instance shared across every
// trade's daemon (the port, not the base URL, distinguishes one trade's
// daemon from another's), grounded on the teacher's
// internal/backend/mempool.go baseURL+httpClient shape.
type HTTPClient struct {
	baseURL     string
	operatorTok string
	allocator   PortAllocator
	httpClient  *http.Client
	log         *logging.Logger
}

// NewHTTPClient constructs a Client. baseURL is the escrowd host without a
// port (e.g. "http://127.0.0.1"); the per-trade port comes from allocator.
func NewHTTPClient(baseURL, operatorToken string, allocator PortAllocator, log *logging.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		operatorTok: operatorToken,
		allocator:   allocator,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

func (c *HTTPClient) urlFor(key, path string) (string, error) {
	port, ok := c.allocator.Get(key)
	if !ok {
		return "", fmt.Errorf("l2: no port allocated for key %s", key)
	}
	return fmt.Sprintf("%s:%d%s", c.baseURL, port, path), nil
}

// GetStatus issues GET /status. A 404 or any other non-2xx is a null
// result, not an error, per spec.md §4.3 — the daemon may simply not be
// up yet.
func (c *HTTPClient) GetStatus(ctx context.Context, key string) (*State, error) {
	url, err := c.urlFor(key, "/status")
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("l2: GetStatus request failed", "key", key, "error", err)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Debug("l2: GetStatus non-2xx", "key", key, "status", resp.StatusCode)
		return nil, nil
	}

	var raw struct {
		Verified       bool   `json:"verified"`
		InTransit      bool   `json:"in_transit"`
		OriginAddress  string `json:"origin_address"`
		ReceivedAmount string `json:"received_amount"`
		Origin         *struct {
			OriginAddress string `json:"origin_address"`
			OriginType    string `json:"origin_type"`
		} `json:"origin"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		c.log.Debug("l2: GetStatus decode failed", "key", key, "error", err)
		return nil, nil
	}

	state := &State{
		Verified:       raw.Verified,
		InTransit:      raw.InTransit,
		OriginAddress:  raw.OriginAddress,
		ReceivedAmount: raw.ReceivedAmount,
	}
	if state.OriginAddress == "" && raw.Origin != nil {
		state.OriginAddress = raw.Origin.OriginAddress
		state.OriginType = raw.Origin.OriginType
	}
	return state, nil
}

// SetInTransit issues POST /set-in-transit with a Bearer-authorized body
// carrying the wire-stable mina_*/zec_* field names (spec.md §6.2).
func (c *HTTPClient) SetInTransit(ctx context.Context, key string, quote OracleQuote) (bool, error) {
	body := map[string]any{
		"mina_tx_hash":         quote.MinaTxHash,
		"expected_mina_amount": quote.ExpectedMinaAmount,
		"mina_usd":             quote.MinaUSD,
		"zec_usd":              quote.ZecUSD,
		"decimals":             quote.Decimals,
		"aggregationTimestamp": quote.AggregationTimestamp,
	}
	return c.postAuthorized(ctx, key, "/set-in-transit", body)
}

// SendToTarget issues POST /send-target.
func (c *HTTPClient) SendToTarget(ctx context.Context, key, targetAddress string) (bool, error) {
	return c.postAuthorized(ctx, key, "/send-target", map[string]any{"target_address": targetAddress})
}

func (c *HTTPClient) postAuthorized(ctx context.Context, key, path string, body map[string]any) (bool, error) {
	url, err := c.urlFor(key, path)
	if err != nil {
		return false, err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return false, fmt.Errorf("l2: encoding %s body: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.operatorTok)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("l2: %s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// GetAddresses issues GET /address.
func (c *HTTPClient) GetAddresses(ctx context.Context, key string) (*Addresses, error) {
	url, err := c.urlFor(key, "/address")
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil
	}

	var raw struct {
		UA          string `json:"ua"`
		Transparent string `json:"transparent"`
		Shielded    string `json:"shielded"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, nil
	}
	return &Addresses{
		Transparent:    raw.Transparent,
		Shielded:       raw.Shielded,
		UnifiedAddress: raw.UA,
	}, nil
}

// Ping is the port-liveness probe used before a key is considered ready to
// lock (spec.md §5 "Port liveness probe: hard timeout ≈ 2s", spec.md §4.1
// step 3). It distinguishes "something is bound to this port" from
// "nothing is listening": any HTTP response at all — even a non-2xx
// status — means the port is occupied; only a transport failure
// (connection refused, timeout) means it's free. GetAddresses cannot be
// reused here because it folds both cases into the same (nil, nil).
func (c *HTTPClient) Ping(ctx context.Context, key string) bool {
	url, err := c.urlFor(key, "/address")
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

var _ Client = (*HTTPClient)(nil)
