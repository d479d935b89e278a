package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klingon-exchange/barterd/pkg/logging"
)

func TestLookupByL1Found(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/by-l1/B62qaddr" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"l1_address": "B62qaddr",
			"l2_address": "t1zaddr",
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", logging.Default())
	kp, err := c.LookupByL1(context.Background(), "B62qaddr")
	if err != nil {
		t.Fatalf("LookupByL1() error = %v", err)
	}
	if kp == nil || kp.L2Address != "t1zaddr" {
		t.Fatalf("LookupByL1() = %+v, want matching keypair", kp)
	}
}

func TestLookupByL2NotFoundReturnsNilNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", logging.Default())
	kp, err := c.LookupByL2(context.Background(), "t1zaddr")
	if err != nil {
		t.Fatalf("LookupByL2() error = %v, want nil", err)
	}
	if kp != nil {
		t.Fatalf("LookupByL2() = %+v, want nil on 404", kp)
	}
}
