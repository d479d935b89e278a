// Package l1 wraps the programmable ledger (L1) that holds the shared
// escrow pool: an off-chain Merkle-map of trade records whose root is
// committed on-chain, mutated only through proof-carrying operator
// transactions.
package l1

import (
	"errors"
	"fmt"

	"github.com/klingon-exchange/barterd/pkg/fieldkey"
)

// Errors returned by Client methods. Per spec.md §7, absence is a
// first-class data state (nil, nil), never one of these.
var (
	ErrNoTxID          = errors.New("l1: operator mutation returned no transaction id")
	ErrInvalidRecord   = errors.New("l1: trade record violates an invariant")
	ErrOperatorKey     = errors.New("l1: operator key not configured")
	ErrPoolUnreachable = errors.New("l1: pool account unreachable")
)

// TradeRecord mirrors the on-chain off-chain-map slot for one trade key.
// Fields and invariants (I1-I4) are exactly spec.md §3's TradeRecord, plus
// Key identifying which map slot this record came from — the off-chain
// map read is inherently a (key, value) pair, even though spec.md §3
// describes only the value's fields.
type TradeRecord struct {
	Key                fieldkey.Scalar
	Depositor          string
	Amount             uint64
	InTransit          bool
	Claimant           string
	RefundAddress      string
	DepositBlockHeight uint32
	ExpiryBlockHeight  uint32
	Completed          bool
}

// Validate enforces I2, I3 and I4. I1 (completed records are absent) is
// enforced by the caller filtering them out before a TradeRecord is ever
// constructed — see Client.GetTrade / Client.GetActiveTrades.
func (r *TradeRecord) Validate() error {
	if r.InTransit && r.Claimant == "" {
		return fmt.Errorf("%w: inTransit=true with empty claimant", ErrInvalidRecord)
	}
	if !r.InTransit && r.Claimant != "" {
		return fmt.Errorf("%w: inTransit=false with non-empty claimant", ErrInvalidRecord)
	}
	if r.ExpiryBlockHeight < r.DepositBlockHeight {
		return fmt.Errorf("%w: expiry %d before deposit %d", ErrInvalidRecord, r.ExpiryBlockHeight, r.DepositBlockHeight)
	}
	if r.Amount == 0 {
		return fmt.Errorf("%w: zero amount on an active record", ErrInvalidRecord)
	}
	return nil
}

// Operation is the tagged union of the three operator-only mutations the
// contract exposes (spec.md §6.1 / Design Notes §9).
type Operation interface {
	isOperation()
}

// LockTradeOp marks a trade in-transit with the given claimant.
type LockTradeOp struct {
	Key      fieldkey.Scalar
	Claimant string
}

func (LockTradeOp) isOperation() {}

// EmergencyUnlockOp clears a trade's in-transit lock.
type EmergencyUnlockOp struct {
	Key fieldkey.Scalar
}

func (EmergencyUnlockOp) isOperation() {}

// SettleOp commits a settlement proof, collapsing a batch of pending
// off-chain actions into a new committed root.
type SettleOp struct {
	Proof Proof
}

func (SettleOp) isOperation() {}

// Action is one emitted off-chain-state mutation, not yet reflected in the
// committed on-chain root (spec.md GLOSSARY, "Pending action").
type Action struct {
	Kind string
	Key  fieldkey.Scalar
}

// Proof is an opaque succinct proof collapsing a batch of pending actions
// (or, for lockTrade/emergencyUnlock, authorizing a single mutation) into a
// new committed root. See ProofSystem and DESIGN.md for how it's produced.
type Proof struct {
	// Commitment is the proof's opaque byte payload (a MiMC digest over a
	// domain tag and PublicInputDigest, standing in for a real zkApp
	// proof's serialized form).
	Commitment []byte
	// PublicInputDigest is the MiMC digest of the operation's public
	// inputs, the part of a real proof a verifier checks against on-chain
	// state.
	PublicInputDigest []byte
}
