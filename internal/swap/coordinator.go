package swap

import (
	"context"
	"fmt"

	"github.com/klingon-exchange/barterd/internal/l1"
)

// Initialize connects the L1 client, then runs clean-slate recovery
// (spec.md §4.1): for every currently in-transit trade, check L2's status
// and emergency-unlock any trade L2 doesn't also consider in-transit.
func (c *Coordinator) Initialize(ctx context.Context) error {
	if err := c.l1.Initialize(ctx); err != nil {
		return fmt.Errorf("swap: initializing l1 client: %w", err)
	}
	c.recoverCleanSlate(ctx)
	return nil
}

// recoverCleanSlate implements spec.md §4.1's "Initialization" step. Every
// error is logged and treated as non-fatal — a restart must never fail to
// start because one trade's recovery check failed.
func (c *Coordinator) recoverCleanSlate(ctx context.Context) {
	trades, err := c.l1.GetActiveTrades(ctx)
	if err != nil {
		c.log.Warn("recovery: fetching active trades failed", "error", err)
		return
	}

	for _, t := range trades {
		if !t.InTransit {
			continue
		}
		key := t.Key

		status, err := c.l2.GetStatus(ctx, key.String())
		l2Locked := err == nil && status != nil && status.InTransit
		if l2Locked {
			continue
		}

		if _, err := c.l1.EmergencyUnlock(ctx, key); err != nil {
			c.log.Warn("recovery: emergencyUnlock failed", "key", key, "error", err)
			continue
		}
		c.log.Info("recovery: emergency-unlocked stale in-transit trade", "key", key)
	}
}

// Start begins the cooperative, single-threaded poll loop.
func (c *Coordinator) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	go c.run()
	c.log.Info("coordinator started", "poll_interval", c.pollInterval)
}

// Stop halts the loop and clears all in-memory maps (spec.md §4.1). It
// does not wait for an in-flight cycle — spec.md §5's "non-interrupting"
// stop contract.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	c.lockedTrades = make(map[string]l1.TradeRecord)
	c.lockRetryState = make(map[string]*lockRetry)
	c.l1LockTxIds = make(map[string]string)
	c.lockingInProgress = make(map[string]struct{})
	c.mu.Unlock()

	c.log.Info("coordinator stopped")
}
