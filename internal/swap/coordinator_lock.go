package swap

import (
	"context"
	"fmt"
	"time"

	"github.com/klingon-exchange/barterd/internal/l1"
	"github.com/klingon-exchange/barterd/internal/l2"
)

// CombinedState is the join (key, TradeRecord, L2State) plus the derived
// readyToLock predicate (spec.md §3).
type CombinedState struct {
	Key   string
	Trade l1.TradeRecord
	L2    l2.State
}

// ReadyToLock implements spec.md §3's CombinedState.readyToLock predicate.
func (c CombinedState) ReadyToLock() bool {
	return !c.Trade.InTransit && c.L2.Verified && !c.L2.InTransit
}

// combinedState builds a CombinedState for t, or (nil, nil) if either side
// is missing.
func (c *Coordinator) combinedState(ctx context.Context, t l1.TradeRecord) (*CombinedState, error) {
	key := t.Key.String()

	trade, err := c.l1.GetTrade(ctx, t.Key)
	if err != nil {
		return nil, fmt.Errorf("swap: l1.GetTrade: %w", err)
	}
	if trade == nil {
		return nil, nil
	}

	status, err := c.l2.GetStatus(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("swap: l2.GetStatus: %w", err)
	}
	if status == nil {
		return nil, nil
	}

	return &CombinedState{Key: key, Trade: *trade, L2: *status}, nil
}

// acquireLockSlot claims the per-key critical section lockingInProgress
// guards. Returns false if another goroutine already holds it (P3).
func (c *Coordinator) acquireLockSlot(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, already := c.lockingInProgress[key]; already {
		return false
	}
	c.lockingInProgress[key] = struct{}{}
	return true
}

func (c *Coordinator) releaseLockSlot(key string) {
	c.mu.Lock()
	delete(c.lockingInProgress, key)
	c.mu.Unlock()
}

// continueL2Lock resumes the L2_LOCK_PENDING backoff ladder for a trade
// whose L1 lock already succeeded in an earlier poll cycle.
func (c *Coordinator) continueL2Lock(ctx context.Context, t l1.TradeRecord) error {
	key := t.Key.String()

	if !c.acquireLockSlot(key) {
		return nil
	}
	defer c.releaseLockSlot(key)

	c.mu.RLock()
	l1TxID := c.l1LockTxIds[key]
	c.mu.RUnlock()

	snapshot, err := c.oracle.Get(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	return c.lockL2(ctx, t, key, l1TxID, snapshot.PriceAPerB())
}

// lockBothSides is the two-phase lock, serialized per key via
// lockingInProgress (spec.md §4.1).
func (c *Coordinator) lockBothSides(ctx context.Context, combined CombinedState, t l1.TradeRecord) error {
	key := combined.Key

	if !c.acquireLockSlot(key) {
		return ErrAlreadyLocking
	}
	defer c.releaseLockSlot(key)

	// Phase 0: pricing and identity resolution.
	snapshot, err := c.oracle.Get(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	claimant := t.Depositor
	if c.resolver != nil && combined.L2.OriginAddress != "" {
		kp, err := c.resolver.LookupByL2(ctx, combined.L2.OriginAddress)
		if err != nil {
			c.log.Warn("lockBothSides: resolver lookup failed, falling back to depositor", "key", key, "error", err)
		} else if kp != nil && kp.L1Address != "" {
			claimant = kp.L1Address
		}
	}

	// Phase 1: L1 lock, at-most-once.
	txID, err := c.lockL1(ctx, t, key, claimant)
	if err != nil {
		return fmt.Errorf("swap: l1 lock: %w", err)
	}

	// Phase 2: L2 lock, with backoff.
	return c.lockL2(ctx, t, key, txID, snapshot.PriceAPerB())
}

func (c *Coordinator) lockL1(ctx context.Context, t l1.TradeRecord, key, claimant string) (string, error) {
	c.mu.RLock()
	txID, cached := c.l1LockTxIds[key]
	c.mu.RUnlock()
	if cached {
		return txID, nil
	}

	txID, err := c.l1.LockTrade(ctx, t.Key, claimant)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.l1LockTxIds[key] = txID
	if _, already := c.lockedTrades[key]; !already {
		c.lockedTrades[key] = t
	}
	c.mu.Unlock()

	return txID, nil
}

func (c *Coordinator) lockL2(ctx context.Context, t l1.TradeRecord, key, l1TxID string, priceAPerB int64) error {
	c.mu.Lock()
	retry, hasRetry := c.lockRetryState[key]
	if hasRetry && time.Now().Before(retry.nextAttemptAt) {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	expectedL2Amount := int64(t.Amount) * priceAPerB
	if expectedL2Amount <= 0 {
		return fmt.Errorf("swap: computed non-positive L2-equivalent amount for key %s", key)
	}

	snapshot, err := c.oracle.Get(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	ok, err := c.l2.SetInTransit(ctx, key, l2.OracleQuote{
		MinaTxHash:           l1TxID,
		ExpectedMinaAmount:   fmt.Sprintf("%d", t.Amount),
		MinaUSD:              fmt.Sprintf("%d", snapshot.AssetAUSD.Value),
		ZecUSD:               fmt.Sprintf("%d", snapshot.AssetBUSD.Value),
		Decimals:             snapshot.AssetAUSD.Decimals,
		AggregationTimestamp: snapshot.AggregationTimestamp,
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil && ok {
		delete(c.lockRetryState, key)
		return nil
	}

	attempts := 1
	if hasRetry {
		attempts = retry.attempts + 1
	}
	if attempts >= maxL2LockAttempts {
		c.mu.Unlock()
		_, unlockErr := c.l1.EmergencyUnlock(ctx, t.Key)
		if unlockErr != nil {
			c.log.Warn("lockL2: emergencyUnlock after exhausted retries failed", "key", key, "error", unlockErr)
		}
		c.forgetKey(key)
		c.mu.Lock()
		return fmt.Errorf("swap: l2 lock failed after %d attempts, emergency-unlocked", attempts)
	}

	c.lockRetryState[key] = &lockRetry{attempts: attempts, nextAttemptAt: time.Now().Add(l2RetryBackoff)}
	if err != nil {
		return fmt.Errorf("swap: l2 setInTransit: %w", err)
	}
	return fmt.Errorf("swap: l2 setInTransit returned false")
}
