package swap

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/klingon-exchange/barterd/internal/l1"
	"github.com/klingon-exchange/barterd/internal/l2"
	"github.com/klingon-exchange/barterd/internal/oracle"
	"github.com/klingon-exchange/barterd/internal/resolver"
	"github.com/klingon-exchange/barterd/pkg/fieldkey"
)

// fakeL1 is an in-memory stand-in for l1.Client, recording every call the
// coordinator makes so the end-to-end scenarios can assert on it.
type fakeL1 struct {
	mu sync.Mutex

	trades map[string]l1.TradeRecord

	lockCalls            int32
	lockCallKeys         []string
	emergencyUnlockCalls int32
	emergencyUnlockKeys  []string

	nextTxID int
}

func newFakeL1() *fakeL1 {
	return &fakeL1{trades: make(map[string]l1.TradeRecord)}
}

func (f *fakeL1) Initialize(ctx context.Context) error { return nil }

func (f *fakeL1) GetActiveTrades(ctx context.Context) ([]l1.TradeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]l1.TradeRecord, 0, len(f.trades))
	for _, t := range f.trades {
		if !t.Completed {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeL1) GetTrade(ctx context.Context, key fieldkey.Scalar) (*l1.TradeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.trades[key.String()]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeL1) LockTrade(ctx context.Context, key fieldkey.Scalar, claimant string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	atomic.AddInt32(&f.lockCalls, 1)
	f.lockCallKeys = append(f.lockCallKeys, key.String())

	t := f.trades[key.String()]
	t.InTransit = true
	t.Claimant = claimant
	f.trades[key.String()] = t

	f.nextTxID++
	return "l1-tx-" + itoa(f.nextTxID), nil
}

func (f *fakeL1) EmergencyUnlock(ctx context.Context, key fieldkey.Scalar) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	atomic.AddInt32(&f.emergencyUnlockCalls, 1)
	f.emergencyUnlockKeys = append(f.emergencyUnlockKeys, key.String())

	t := f.trades[key.String()]
	t.InTransit = false
	t.Claimant = ""
	f.trades[key.String()] = t

	f.nextTxID++
	return "l1-tx-" + itoa(f.nextTxID), nil
}

func (f *fakeL1) GetPoolBalance(ctx context.Context) (uint64, error) { return 0, nil }

func (f *fakeL1) GetActionState(ctx context.Context) (fieldkey.Scalar, error) {
	return fieldkey.Scalar{}, nil
}

func (f *fakeL1) GetPendingActions(ctx context.Context, since fieldkey.Scalar) ([][][]l1.Action, error) {
	return nil, nil
}

func (f *fakeL1) Settle(ctx context.Context, proof l1.Proof) (string, error) {
	return "l1-settle-tx", nil
}

var _ l1.Client = (*fakeL1)(nil)

// fakeL2 is an in-memory stand-in for l2.Client.
type fakeL2 struct {
	mu sync.Mutex

	status map[string]l2.State

	setInTransitResult bool
	setInTransitCalls  int32

	sendToTargetResult bool
	sendToTargetCalls  int32
	sendToTargetAddr   map[string]string

	pingResult bool
}

func newFakeL2() *fakeL2 {
	return &fakeL2{status: make(map[string]l2.State), sendToTargetAddr: make(map[string]string)}
}

func (f *fakeL2) GetStatus(ctx context.Context, key string) (*l2.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.status[key]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeL2) SetInTransit(ctx context.Context, key string, quote l2.OracleQuote) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	atomic.AddInt32(&f.setInTransitCalls, 1)
	return f.setInTransitResult, nil
}

func (f *fakeL2) SendToTarget(ctx context.Context, key, targetAddress string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	atomic.AddInt32(&f.sendToTargetCalls, 1)
	f.sendToTargetAddr[key] = targetAddress
	return f.sendToTargetResult, nil
}

func (f *fakeL2) GetAddresses(ctx context.Context, key string) (*l2.Addresses, error) {
	return nil, nil
}

func (f *fakeL2) Ping(ctx context.Context, key string) bool {
	return f.pingResult
}

var _ l2.Client = (*fakeL2)(nil)

// fakeOracle always returns the same snapshot.
type fakeOracle struct {
	snapshot oracle.Snapshot
}

func (f *fakeOracle) Get(ctx context.Context) (oracle.Snapshot, error) {
	return f.snapshot, nil
}

var _ oracle.Client = (*fakeOracle)(nil)

// fakeResolver maps L2 origin addresses to L1 claimants and back.
type fakeResolver struct {
	byL2 map[string]string
	byL1 map[string]string
}

func (f *fakeResolver) LookupByL1(ctx context.Context, addr string) (*resolver.Keypair, error) {
	l2addr, ok := f.byL1[addr]
	if !ok {
		return nil, nil
	}
	return &resolver.Keypair{L1Address: addr, L2Address: l2addr}, nil
}

func (f *fakeResolver) LookupByL2(ctx context.Context, addr string) (*resolver.Keypair, error) {
	l1addr, ok := f.byL2[addr]
	if !ok {
		return nil, nil
	}
	return &resolver.Keypair{L1Address: l1addr, L2Address: addr}, nil
}

var _ resolver.Client = (*fakeResolver)(nil)

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func testSnapshot() oracle.Snapshot {
	return oracle.Snapshot{
		AssetAUSD:            oracle.Price{Value: 500000000, Decimals: 9, AggregationTimestamp: 1},
		AssetBUSD:            oracle.Price{Value: 50000000000, Decimals: 9, AggregationTimestamp: 1},
		AggregationTimestamp: 1,
	}
}

func newTestCoordinator(t *testing.T, a *fakeL1, b *fakeL2, o *fakeOracle, r *fakeResolver) *Coordinator {
	t.Helper()
	return NewCoordinator(Config{
		L1:       a,
		L2:       b,
		Oracle:   o,
		Resolver: r,
	})
}

// Scenario 1 (spec.md §8): happy path, L1->L2 lock.
func TestPollOnceHappyPathLocksBothSides(t *testing.T) {
	key, err := fieldkey.FromDisplay(uuid.New().String())
	if err != nil {
		t.Fatalf("FromDisplay: %v", err)
	}

	a := newFakeL1()
	a.trades[key.String()] = l1.TradeRecord{Key: key, Depositor: "Alice", Amount: 10_000_000_000}

	b := newFakeL2()
	b.status[key.String()] = l2.State{Verified: true, InTransit: false, OriginAddress: "t-origin"}
	b.setInTransitResult = true

	o := &fakeOracle{snapshot: testSnapshot()}
	r := &fakeResolver{byL2: map[string]string{"t-origin": "Bob"}, byL1: map[string]string{}}

	c := newTestCoordinator(t, a, b, o, r)
	c.ctx = context.Background()

	c.pollOnce(context.Background())

	if got := atomic.LoadInt32(&a.lockCalls); got != 1 {
		t.Fatalf("lockTrade calls = %d, want 1", got)
	}
	if got := atomic.LoadInt32(&b.setInTransitCalls); got != 1 {
		t.Fatalf("setInTransit calls = %d, want 1", got)
	}

	c.mu.RLock()
	_, locked := c.lockedTrades[key.String()]
	_, retrying := c.lockRetryState[key.String()]
	c.mu.RUnlock()
	if !locked {
		t.Fatalf("lockedTrades[k] not set after a successful lock")
	}
	if retrying {
		t.Fatalf("lockRetryState[k] should be absent after a successful setInTransit")
	}
}

// Scenario 2 (spec.md §8): L2 lock fails five times, emergency-unlock on
// the fifth failure (P5).
func TestLockL2ExhaustsRetriesThenEmergencyUnlocks(t *testing.T) {
	key, err := fieldkey.FromDisplay(uuid.New().String())
	if err != nil {
		t.Fatalf("FromDisplay: %v", err)
	}

	a := newFakeL1()
	a.trades[key.String()] = l1.TradeRecord{Key: key, Depositor: "Alice", Amount: 10_000_000_000}

	b := newFakeL2()
	b.status[key.String()] = l2.State{Verified: true, InTransit: false, OriginAddress: "t-origin"}
	b.setInTransitResult = false

	o := &fakeOracle{snapshot: testSnapshot()}
	r := &fakeResolver{byL2: map[string]string{"t-origin": "Bob"}, byL1: map[string]string{}}

	c := newTestCoordinator(t, a, b, o, r)
	c.ctx = context.Background()

	for i := 0; i < 5; i++ {
		c.pollOnce(context.Background())
		c.mu.Lock()
		if retry, ok := c.lockRetryState[key.String()]; ok {
			retry.nextAttemptAt = time.Time{}
		}
		c.mu.Unlock()
	}

	if got := atomic.LoadInt32(&b.setInTransitCalls); got != 5 {
		t.Fatalf("setInTransit calls = %d, want 5", got)
	}
	if got := atomic.LoadInt32(&a.emergencyUnlockCalls); got != 1 {
		t.Fatalf("emergencyUnlock calls = %d, want 1", got)
	}

	c.mu.RLock()
	_, locked := c.lockedTrades[key.String()]
	_, txIDCached := c.l1LockTxIds[key.String()]
	_, retrying := c.lockRetryState[key.String()]
	c.mu.RUnlock()
	if locked || txIDCached || retrying {
		t.Fatalf("all per-key bookkeeping should be cleared after emergency-unlock")
	}
}

// Scenario 3 (spec.md §8): post-claim sweep.
func TestHandlePostClaimSendsToResolvedTarget(t *testing.T) {
	key, err := fieldkey.FromDisplay(uuid.New().String())
	if err != nil {
		t.Fatalf("FromDisplay: %v", err)
	}

	a := newFakeL1()
	b := newFakeL2()
	b.status[key.String()] = l2.State{Verified: true, InTransit: true}
	b.sendToTargetResult = true

	o := &fakeOracle{snapshot: testSnapshot()}
	r := &fakeResolver{byL1: map[string]string{"Alice": "t-alice"}, byL2: map[string]string{}}

	c := newTestCoordinator(t, a, b, o, r)
	c.lockedTrades[key.String()] = l1.TradeRecord{Key: key, Depositor: "Alice"}

	if err := c.handlePostClaim(context.Background(), key.String(), c.lockedTrades[key.String()]); err != nil {
		t.Fatalf("handlePostClaim: %v", err)
	}

	if got := atomic.LoadInt32(&b.sendToTargetCalls); got != 1 {
		t.Fatalf("sendToTarget calls = %d, want 1", got)
	}
	if b.sendToTargetAddr[key.String()] != "t-alice" {
		t.Fatalf("sendToTarget address = %q, want t-alice", b.sendToTargetAddr[key.String()])
	}

	c.mu.RLock()
	_, stillLocked := c.lockedTrades[key.String()]
	c.mu.RUnlock()
	if stillLocked {
		t.Fatalf("lockedTrades[k] should be cleared after a successful sweep")
	}
}

// Resolver miss on the post-claim sweep path (spec.md §7): the sweep is
// deferred rather than falling back to the L1 depositor address as an L2
// send target, and lockedTrades[k] is retained for retry next cycle.
func TestHandlePostClaimDefersOnResolverMiss(t *testing.T) {
	key, err := fieldkey.FromDisplay(uuid.New().String())
	if err != nil {
		t.Fatalf("FromDisplay: %v", err)
	}

	a := newFakeL1()
	b := newFakeL2()
	b.status[key.String()] = l2.State{Verified: true, InTransit: true}
	b.sendToTargetResult = true

	o := &fakeOracle{snapshot: testSnapshot()}
	r := &fakeResolver{byL1: map[string]string{}, byL2: map[string]string{}}

	c := newTestCoordinator(t, a, b, o, r)
	c.lockedTrades[key.String()] = l1.TradeRecord{Key: key, Depositor: "Alice"}

	if err := c.handlePostClaim(context.Background(), key.String(), c.lockedTrades[key.String()]); err != nil {
		t.Fatalf("handlePostClaim: %v", err)
	}

	if got := atomic.LoadInt32(&b.sendToTargetCalls); got != 0 {
		t.Fatalf("sendToTarget calls = %d, want 0 on a resolver miss", got)
	}

	c.mu.RLock()
	_, stillLocked := c.lockedTrades[key.String()]
	c.mu.RUnlock()
	if !stillLocked {
		t.Fatalf("lockedTrades[k] should be retained for retry after a resolver miss")
	}
}

// Scenario 4 (spec.md §8): clean-slate recovery.
func TestInitializeEmergencyUnlocksStaleInTransitTrades(t *testing.T) {
	key, err := fieldkey.FromDisplay(uuid.New().String())
	if err != nil {
		t.Fatalf("FromDisplay: %v", err)
	}

	a := newFakeL1()
	a.trades[key.String()] = l1.TradeRecord{Key: key, Depositor: "Alice", Amount: 1, InTransit: true, Claimant: "Bob"}

	b := newFakeL2()
	b.status[key.String()] = l2.State{Verified: true, InTransit: false}

	o := &fakeOracle{snapshot: testSnapshot()}
	r := &fakeResolver{byL1: map[string]string{}, byL2: map[string]string{}}

	c := newTestCoordinator(t, a, b, o, r)

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if got := atomic.LoadInt32(&a.emergencyUnlockCalls); got != 1 {
		t.Fatalf("emergencyUnlock calls = %d, want 1", got)
	}
}

// Scenario 5 (spec.md §8): port collision skips the cycle without locking.
func TestProcessTradeSkipsOnPortCollision(t *testing.T) {
	key, err := fieldkey.FromDisplay(uuid.New().String())
	if err != nil {
		t.Fatalf("FromDisplay: %v", err)
	}

	a := newFakeL1()
	a.trades[key.String()] = l1.TradeRecord{Key: key, Depositor: "Alice", Amount: 1}

	b := newFakeL2()
	b.status[key.String()] = l2.State{Verified: true, InTransit: false, OriginAddress: "t-origin"}
	b.pingResult = true // foreign process responds

	o := &fakeOracle{snapshot: testSnapshot()}
	r := &fakeResolver{byL2: map[string]string{}, byL1: map[string]string{}}

	c := newTestCoordinator(t, a, b, o, r)
	c.ctx = context.Background()

	c.pollOnce(context.Background())

	if got := atomic.LoadInt32(&a.lockCalls); got != 0 {
		t.Fatalf("lockTrade calls = %d, want 0 on a port collision", got)
	}
}

// P3: a lockBothSides call for a key already marked in lockingInProgress
// backs off with ErrAlreadyLocking instead of submitting a second
// lockTrade.
func TestLockBothSidesSerializedPerKey(t *testing.T) {
	key, err := fieldkey.FromDisplay(uuid.New().String())
	if err != nil {
		t.Fatalf("FromDisplay: %v", err)
	}

	a := newFakeL1()
	b := newFakeL2()
	o := &fakeOracle{snapshot: testSnapshot()}
	r := &fakeResolver{}

	c := newTestCoordinator(t, a, b, o, r)
	c.lockingInProgress[key.String()] = struct{}{}

	combined := CombinedState{Key: key.String(), Trade: l1.TradeRecord{Key: key, Depositor: "Alice", Amount: 1}}
	err = c.lockBothSides(context.Background(), combined, combined.Trade)
	if err != ErrAlreadyLocking {
		t.Fatalf("lockBothSides error = %v, want ErrAlreadyLocking", err)
	}
	if got := atomic.LoadInt32(&a.lockCalls); got != 0 {
		t.Fatalf("lockTrade should not be called while the key is already locking")
	}
}

// ReadyToLock (P6).
func TestCombinedStateReadyToLock(t *testing.T) {
	cases := []struct {
		name  string
		state CombinedState
		want  bool
	}{
		{"ready", CombinedState{Trade: l1.TradeRecord{InTransit: false}, L2: l2.State{Verified: true, InTransit: false}}, true},
		{"l1 in transit", CombinedState{Trade: l1.TradeRecord{InTransit: true}, L2: l2.State{Verified: true, InTransit: false}}, false},
		{"l2 not verified", CombinedState{Trade: l1.TradeRecord{InTransit: false}, L2: l2.State{Verified: false, InTransit: false}}, false},
		{"l2 in transit", CombinedState{Trade: l1.TradeRecord{InTransit: false}, L2: l2.State{Verified: true, InTransit: true}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.state.ReadyToLock(); got != tc.want {
				t.Fatalf("ReadyToLock() = %v, want %v", got, tc.want)
			}
		})
	}
}
