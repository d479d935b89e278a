package l1

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// KeySigner is a Signer backed by a single secp256k1 keypair, standing in
// for the operator's Pasta-Schnorr Mina account key (no Go implementation
// of Mina's native signature scheme exists anywhere in this module's
// dependency graph; see DESIGN.md).
type KeySigner struct {
	priv *secp256k1.PrivateKey
}

// NewKeySignerFromHex parses a hex-encoded 32-byte secp256k1 private key.
func NewKeySignerFromHex(hexKey string) (*KeySigner, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("l1: invalid operator private key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("l1: operator private key must be 32 bytes, got %d", len(raw))
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	return &KeySigner{priv: priv}, nil
}

// Sign produces a deterministic ECDSA signature over sha256(payload).
func (k *KeySigner) Sign(payload []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	sig := ecdsa.Sign(k.priv, digest[:])
	return sig.Serialize(), nil
}

// PublicKey returns the hex-encoded compressed public key.
func (k *KeySigner) PublicKey() string {
	return hex.EncodeToString(k.priv.PubKey().SerializeCompressed())
}

var _ Signer = (*KeySigner)(nil)
