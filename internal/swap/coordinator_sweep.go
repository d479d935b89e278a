package swap

import (
	"context"

	"github.com/klingon-exchange/barterd/internal/l1"
)

// handlePostClaim implements spec.md §4.1's post-claim sweep: once a trade
// key drops out of L1's active set, its L2 leg is either finished (forward
// the funds to the depositor's resolved L2 address) or was never truly
// locked on L2 (in which case there's nothing to forward). A resolver miss
// or failure leaves the sweep unperformed and lockedTrades[k] in place for
// retry next cycle (spec.md §7: "no funds are lost because the daemon
// continues to hold L2") — the depositor's L1 address is never substituted
// as an L2 send target.
func (c *Coordinator) handlePostClaim(ctx context.Context, key string, cached l1.TradeRecord) error {
	status, err := c.l2.GetStatus(ctx, key)
	if err != nil || status == nil || !status.InTransit {
		c.forgetKey(key)
		return nil
	}

	if c.resolver == nil {
		c.log.Warn("handlePostClaim: no resolver configured, sweep deferred", "key", key)
		return nil
	}
	kp, err := c.resolver.LookupByL1(ctx, cached.Depositor)
	if err != nil {
		c.log.Warn("handlePostClaim: resolver lookup failed, sweep deferred", "key", key, "error", err)
		return nil
	}
	if kp == nil || kp.L2Address == "" {
		c.log.Warn("handlePostClaim: resolver miss, sweep deferred", "key", key)
		return nil
	}

	ok, err := c.l2.SendToTarget(ctx, key, kp.L2Address)
	if err != nil {
		return err
	}
	if !ok {
		c.log.Warn("handlePostClaim: sendToTarget reported failure", "key", key)
		return nil
	}

	c.forgetKey(key)
	return nil
}

// forgetKey drops all coordinator-local bookkeeping for key.
func (c *Coordinator) forgetKey(key string) {
	c.mu.Lock()
	delete(c.lockedTrades, key)
	delete(c.l1LockTxIds, key)
	delete(c.lockRetryState, key)
	c.mu.Unlock()
}
