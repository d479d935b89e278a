package swap

import (
	"context"
	"time"

	"github.com/klingon-exchange/barterd/internal/l1"
)

// run is the poll loop: ticker-driven, matching the teacher's
// internal/swap/monitor.go run()/checkAllSwaps() shape.
func (c *Coordinator) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(c.ctx)
		}
	}
}

// pollOnce implements spec.md §4.1's three-step poll cycle.
func (c *Coordinator) pollOnce(ctx context.Context) {
	trades, err := c.l1.GetActiveTrades(ctx)
	if err != nil {
		c.log.Warn("poll: fetching active trades failed", "error", err)
		return
	}

	activeKeys := make(map[string]struct{}, len(trades))
	for _, t := range trades {
		activeKeys[t.Key.String()] = struct{}{}
		if err := c.processTrade(ctx, t); err != nil {
			c.log.Warn("poll: processTrade failed", "key", t.Key, "error", err)
		}
	}

	c.mu.RLock()
	toSweep := make(map[string]l1.TradeRecord, len(c.lockedTrades))
	for k, rec := range c.lockedTrades {
		if _, stillActive := activeKeys[k]; !stillActive {
			toSweep[k] = rec
		}
	}
	c.mu.RUnlock()

	for k, rec := range toSweep {
		if err := c.handlePostClaim(ctx, k, rec); err != nil {
			c.log.Warn("poll: handlePostClaim failed", "key", k, "error", err)
		}
	}
}

// processTrade implements spec.md §4.1's processTrade policy. A trade
// already in lockedTrades with no pending retry state has completed its L2
// lock (or is mid-flight toward one) and step 3 of the poll cycle will
// drive it to completion; one with pending retry state is still working
// through the L2_LOCK_PENDING backoff ladder and must keep being revisited.
func (c *Coordinator) processTrade(ctx context.Context, t l1.TradeRecord) error {
	key := t.Key.String()

	c.mu.RLock()
	_, locked := c.lockedTrades[key]
	_, locking := c.lockingInProgress[key]
	_, hasRetry := c.lockRetryState[key]
	c.mu.RUnlock()

	if locking {
		return nil
	}
	if locked {
		if !hasRetry {
			return nil
		}
		return c.continueL2Lock(ctx, t)
	}

	if c.portOccupiedByForeignProcess(ctx, key) {
		c.log.Warn("poll: port collision, skipping this cycle", "key", key)
		return nil
	}

	combined, err := c.combinedState(ctx, t)
	if err != nil {
		c.log.Debug("poll: could not build combined state", "key", key, "error", err)
		return nil
	}
	if combined == nil || !combined.ReadyToLock() {
		return nil
	}

	return c.lockBothSides(ctx, *combined, t)
}

// portOccupiedByForeignProcess pings the L2 daemon's liveness endpoint. Any
// response at all — even an error status — means a process is listening;
// only a connection failure or timeout means the port is free.
func (c *Coordinator) portOccupiedByForeignProcess(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, portPingTimeout)
	defer cancel()
	return c.l2.Ping(ctx, key)
}
