// Package l2 is the HTTP client for the per-trade Zcash-side escrow daemon
// (escrowd). This repository does not implement escrowd itself, only the
// fixed REST surface it exposes.
package l2

import "context"

// State mirrors the escrow daemon's /status response. Field names follow
// the wire-stable contract (spec.md §6.2) where the daemon itself
// distinguishes verified/in-transit flags from an optional nested origin
// object.
type State struct {
	Verified       bool
	InTransit      bool
	OriginAddress  string
	OriginType     string
	ReceivedAmount string
}

// Addresses mirrors the daemon's /address response.
type Addresses struct {
	Transparent string
	Shielded    string
	// UnifiedAddress is returned by daemons that expose a single `ua`
	// field instead of split transparent/shielded addresses. Ping does not
	// read it: any HTTP response from /address counts as occupied.
	UnifiedAddress string
}

// OracleQuote is the price-snapshot shape set-in-transit forwards to the
// escrow daemon, field names wire-stable per spec.md §6.2.
type OracleQuote struct {
	MinaTxHash           string
	ExpectedMinaAmount   string
	MinaUSD              string
	ZecUSD               string
	Decimals             int
	AggregationTimestamp int64
}

// PortAllocator maps a trade key to the local port its escrow daemon
// listens on. External collaborator: this package only consumes it.
type PortAllocator interface {
	// Get returns the port already allocated to key, if any.
	Get(key string) (port int, ok bool)
	// Allocate assigns and returns a new port for key.
	Allocate(key string) (port int)
}

// Client is the per-trade escrow daemon's HTTP surface.
type Client interface {
	GetStatus(ctx context.Context, key string) (*State, error)
	SetInTransit(ctx context.Context, key string, quote OracleQuote) (bool, error)
	SendToTarget(ctx context.Context, key, targetAddress string) (bool, error)
	GetAddresses(ctx context.Context, key string) (*Addresses, error)
	Ping(ctx context.Context, key string) bool
}
