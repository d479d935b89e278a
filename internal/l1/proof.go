package l1

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"github.com/klingon-exchange/barterd/pkg/fieldkey"
)

// ProofSystem produces the succinct proof a settle/lockTrade/emergencyUnlock
// transaction carries. A real Mina zkApp method compiles its proof with the
// o1js circuit compiler; nothing in this module's dependency graph provides
// a Pasta-curve circuit compiler, so ProofSystem is implemented here as an
// algebraic commitment over gnark-crypto's MiMC hash standing in for the
// real proof (see DESIGN.md).
type ProofSystem interface {
	// ProveSettle produces a proof committing to the new action state that
	// folding in actions over oldState yields.
	ProveSettle(oldState fieldkey.Scalar, actions [][][]Action) (Proof, error)
	// ProveMutation produces a proof authorizing a single lockTrade or
	// emergencyUnlock operator mutation.
	ProveMutation(op Operation) (Proof, error)
}

// MiMCProofSystem is the ProofSystem grounded on gnark-crypto's MiMC
// permutation, the one algebraic hash available anywhere in the example
// pack's dependency graph.
type MiMCProofSystem struct{}

// NewMiMCProofSystem constructs the default ProofSystem.
func NewMiMCProofSystem() *MiMCProofSystem {
	return &MiMCProofSystem{}
}

func (MiMCProofSystem) ProveSettle(oldState fieldkey.Scalar, actions [][][]Action) (Proof, error) {
	h := mimc.NewMiMC()
	old := oldState.Bytes()
	h.Write(old[:])
	for _, batch := range actions {
		for _, group := range batch {
			for _, a := range group {
				h.Write([]byte(a.Kind))
				k := a.Key.Bytes()
				h.Write(k[:])
			}
		}
	}
	digest := h.Sum(nil)

	commit := mimc.NewMiMC()
	commit.Write([]byte("settle"))
	commit.Write(digest)

	return Proof{
		Commitment:        commit.Sum(nil),
		PublicInputDigest: digest,
	}, nil
}

func (MiMCProofSystem) ProveMutation(op Operation) (Proof, error) {
	payload, err := encodeOperation(op)
	if err != nil {
		return Proof{}, fmt.Errorf("l1: proving mutation: %w", err)
	}

	digest := mimc.NewMiMC()
	digest.Write(payload)
	sum := digest.Sum(nil)

	commit := mimc.NewMiMC()
	commit.Write([]byte("mutation"))
	commit.Write(sum)

	return Proof{
		Commitment:        commit.Sum(nil),
		PublicInputDigest: sum,
	}, nil
}

var _ ProofSystem = (*MiMCProofSystem)(nil)
