// Package swap owns the polling control loop, per-trade state machine,
// two-phase lock protocol, clean-slate recovery, and post-claim sweep —
// the Coordinator (component F).
package swap

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/klingon-exchange/barterd/internal/l1"
	"github.com/klingon-exchange/barterd/internal/l2"
	"github.com/klingon-exchange/barterd/internal/oracle"
	"github.com/klingon-exchange/barterd/internal/resolver"
	"github.com/klingon-exchange/barterd/pkg/logging"
)

// Coordinator sentinel errors.
var (
	ErrTradeNotFound     = errors.New("swap: trade not found")
	ErrAlreadyLocking    = errors.New("swap: lock already in progress for this key")
	ErrPortCollision     = errors.New("swap: port occupied by a foreign process")
	ErrNotReadyToLock    = errors.New("swap: trade is not ready to lock")
	ErrOracleUnavailable = errors.New("swap: oracle price unavailable")
)

// maxL2LockAttempts is the number of Phase 2 failures tolerated before the
// coordinator gives up and emergency-unlocks the L1 side (spec.md §4.1).
const maxL2LockAttempts = 5

// l2RetryBackoff is the delay imposed between Phase 2 attempts.
const l2RetryBackoff = 60 * time.Second

// portPingTimeout bounds the L2 daemon liveness probe (spec.md §5).
const portPingTimeout = 2 * time.Second

// lockRetry tracks Phase 2 (L2 lock) backoff state for one trade key.
type lockRetry struct {
	attempts      int
	nextAttemptAt time.Time
}

// Coordinator drives the poll loop described in spec.md §4.1.
type Coordinator struct {
	mu sync.RWMutex

	l1       l1.Client
	l2       l2.Client
	oracle   oracle.Client
	resolver resolver.Client
	tracked  *l1.TrackedKeyStore

	pollInterval time.Duration

	// Coordinator-local maps (process-memory only), spec.md §3.
	lockedTrades      map[string]l1.TradeRecord
	lockRetryState    map[string]*lockRetry
	l1LockTxIds       map[string]string
	lockingInProgress map[string]struct{}

	log *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Config configures a Coordinator.
type Config struct {
	L1           l1.Client
	L2           l2.Client
	Oracle       oracle.Client
	Resolver     resolver.Client
	Tracked      *l1.TrackedKeyStore
	PollInterval time.Duration
}

// DefaultPollInterval applies when Config.PollInterval is zero (spec.md
// §6.3 default 15s).
const DefaultPollInterval = 15 * time.Second

// NewCoordinator constructs a Coordinator. Start still must be called to
// begin the poll loop; Initialize runs clean-slate recovery first.
func NewCoordinator(cfg Config) *Coordinator {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Coordinator{
		l1:                cfg.L1,
		l2:                cfg.L2,
		oracle:            cfg.Oracle,
		resolver:          cfg.Resolver,
		tracked:           cfg.Tracked,
		pollInterval:      interval,
		lockedTrades:      make(map[string]l1.TradeRecord),
		lockRetryState:    make(map[string]*lockRetry),
		l1LockTxIds:       make(map[string]string),
		lockingInProgress: make(map[string]struct{}),
		log:               logging.GetDefault().Component("swap"),
	}
}

// RegisterTrade adds key to the tracked set and persists it.
func (c *Coordinator) RegisterTrade(display string) error {
	if c.tracked == nil {
		return nil
	}
	return c.tracked.RegisterTrade(display)
}

// UnregisterTrade removes key from the tracked set and persists it.
func (c *Coordinator) UnregisterTrade(display string) error {
	if c.tracked == nil {
		return nil
	}
	return c.tracked.UnregisterTrade(display)
}
