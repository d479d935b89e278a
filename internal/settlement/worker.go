// Package settlement periodically rolls up pending off-chain actions into
// a new committed L1 root, independent of and sharing no mutable state
// with the trade coordinator.
package settlement

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/klingon-exchange/barterd/internal/l1"
	"github.com/klingon-exchange/barterd/pkg/logging"
)

// DefaultInterval is the check cadence applied when Config.Interval is
// zero (spec.md §4.6 default 60s).
const DefaultInterval = 60 * time.Second

// DefaultMinActions is the minimum pending-action count required to bother
// generating a settlement proof, applied when Config.MinActions is zero.
const DefaultMinActions = 1

// Config configures a Worker.
type Config struct {
	Client     l1.Client
	Proofs     l1.ProofSystem
	Interval   time.Duration
	MinActions int
	Log        *logging.Logger
}

// Worker is the settlement loop: ticker-driven exactly like
// internal/swap/monitor.go's run()/checkAllSwaps(), but single-flight — an
// atomic.Bool suppresses an overlapping tick while a proof is still being
// generated (spec.md §4.6, "overlapping proof generations are forbidden").
type Worker struct {
	client     l1.Client
	proofs     l1.ProofSystem
	interval   time.Duration
	minActions int
	log        *logging.Logger

	running atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker constructs a Worker from cfg, applying defaults for any zero
// fields.
func NewWorker(cfg Config) *Worker {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	minActions := cfg.MinActions
	if minActions <= 0 {
		minActions = DefaultMinActions
	}
	log := cfg.Log
	if log == nil {
		log = logging.GetDefault().Component("settlement")
	}

	return &Worker{
		client:     cfg.Client,
		proofs:     cfg.Proofs,
		interval:   interval,
		minActions: minActions,
		log:        log,
	}
}

// Start runs one check immediately, then begins the recurring ticker loop
// in a background goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go w.run()
	w.log.Info("settlement worker started", "interval", w.interval)
}

// Stop ceases scheduling future checks. An in-flight check is permitted to
// complete (spec.md §4.6) — Stop does not wait for it.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.log.Info("settlement worker stopped")
}

func (w *Worker) run() {
	defer close(w.done)

	w.checkOnce()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.checkOnce()
		}
	}
}

// checkOnce runs a single settlement check, skipping entirely if a prior
// check is still in flight.
func (w *Worker) checkOnce() {
	if !w.running.CompareAndSwap(false, true) {
		w.log.Debug("settlement check skipped: previous check still running")
		return
	}
	defer w.running.Store(false)

	if err := w.check(w.ctx); err != nil {
		w.log.Warn("settlement check failed", "error", err)
	}
}

// check implements spec.md §4.6's five steps.
func (w *Worker) check(ctx context.Context) error {
	if _, err := w.client.GetPoolBalance(ctx); err != nil {
		return fmt.Errorf("settlement: refreshing pool account: %w", err)
	}

	actionState, err := w.client.GetActionState(ctx)
	if err != nil {
		return fmt.Errorf("settlement: fetching action state: %w", err)
	}

	actions, err := w.client.GetPendingActions(ctx, actionState)
	if err != nil {
		return fmt.Errorf("settlement: fetching pending actions: %w", err)
	}

	count := CountActions(actions)
	if count < w.minActions {
		w.log.Debug("settlement: below threshold, skipping", "count", count, "threshold", w.minActions)
		return nil
	}
	w.log.Info("settlement: generating proof", "pending_actions", count)

	proof, err := w.proofs.ProveSettle(actionState, actions)
	if err != nil {
		return fmt.Errorf("settlement: generating proof: %w", err)
	}

	txID, err := w.client.Settle(ctx, proof)
	if err != nil {
		return fmt.Errorf("settlement: submitting settle transaction: %w", err)
	}

	w.log.Info("settlement: submitted", "tx_id", txID, "actions_settled", count)
	return nil
}

// CountActions sums the lengths of the innermost action slices across the
// nested ledger-block/account-update/action response shape (spec.md
// §4.6 step 3).
func CountActions(actions [][][]l1.Action) int {
	count := 0
	for _, block := range actions {
		for _, group := range block {
			count += len(group)
		}
	}
	return count
}
