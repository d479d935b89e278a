package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGetFetchesAndCaches(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		symbol := strings.TrimPrefix(r.URL.Path, "/price/")
		price := int64(100)
		if symbol == "asset-b" {
			price = 25
		}
		json.NewEncoder(w).Encode(map[string]any{
			"price":                price,
			"decimals":             6,
			"aggregationTimestamp": 1700000000,
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", time.Minute)

	snap, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if snap.AssetAUSD.Value != 100 || snap.AssetBUSD.Value != 25 {
		t.Fatalf("Get() = %+v, want 100/25", snap)
	}
	if calls != 2 {
		t.Fatalf("expected 2 HTTP calls (one per asset), got %d", calls)
	}

	if _, err := c.Get(context.Background()); err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("second Get() within TTL made %d new calls, want 0", calls-2)
	}
}

func TestGetFailsWhenPriceIsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"price": 0, "decimals": 6})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", time.Minute)
	if _, err := c.Get(context.Background()); err == nil {
		t.Error("Get() error = nil, want ErrOracleUnavailable for a zero price")
	}
}

func TestSnapshotPriceAPerB(t *testing.T) {
	snap := Snapshot{
		AssetAUSD: Price{Value: 100, Decimals: 2},
		AssetBUSD: Price{Value: 25, Decimals: 2},
	}
	if got := snap.PriceAPerB(); got != 400 {
		t.Errorf("PriceAPerB() = %d, want 400", got)
	}
}

func TestSnapshotValidateRejectsNonPositive(t *testing.T) {
	snap := Snapshot{AssetAUSD: Price{Value: 0}, AssetBUSD: Price{Value: 10}}
	if err := snap.Validate(); err == nil {
		t.Error("Validate() = nil, want error for zero AssetAUSD")
	}
}
