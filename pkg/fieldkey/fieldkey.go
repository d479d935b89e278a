// Package fieldkey maps trade identifiers between their display form (a
// UUID-like string used as local map keys) and their scalar form (a single
// field element used in on-chain storage and proofs).
//
// The target ledger's native field is Pasta Fp, for which no Go
// implementation exists anywhere in this module's dependency graph. The
// scalar field of the BN254 curve (gnark-crypto's ecc/bn254/fr) is used as
// a stand-in: same shape (a ~254-bit prime field with an algebraic hash
// available), different prime. See DESIGN.md for the rationale.
package fieldkey

import (
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// ByteLen is the canonical byte width of a Scalar's big-endian encoding.
const ByteLen = fr.Bytes

// chunkSize is the width, in hex characters, of the fixed chunks a display
// value is split into before hashing. 16 hex chars = 8 bytes per chunk.
const chunkSize = 16

// Scalar is a single element of the BN254 scalar field, standing in for a
// Pasta field element.
type Scalar struct {
	v fr.Element
}

// String returns the canonical 0x-prefixed, zero-padded hex encoding.
func (s Scalar) String() string {
	b := s.v.Bytes()
	return "0x" + hex.EncodeToString(b[:])
}

// Bytes returns the big-endian byte encoding.
func (s Scalar) Bytes() [ByteLen]byte {
	return s.v.Bytes()
}

// Equal reports whether two scalars are the same field element.
func (s Scalar) Equal(other Scalar) bool {
	return s.v.Equal(&other.v)
}

// IsZero reports whether the scalar is the additive identity.
func (s Scalar) IsZero() bool {
	return s.v.IsZero()
}

// FromHex parses a fully-specified hex scalar (with or without 0x prefix)
// and returns it unchanged as a Scalar, reduced modulo the field order per
// the package's injective-modulo-order contract.
func FromHex(hexStr string) (Scalar, error) {
	clean := strings.TrimPrefix(strings.TrimPrefix(hexStr, "0x"), "0X")
	if clean == "" {
		return Scalar{}, fmt.Errorf("fieldkey: empty hex scalar")
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return Scalar{}, fmt.Errorf("fieldkey: invalid hex scalar %q: %w", hexStr, err)
	}
	var el fr.Element
	el.SetBytes(raw)
	return Scalar{v: el}, nil
}

// looksLikeScalar reports whether s is already a full-width hex scalar
// (i.e. not a display-form UUID-like string), per spec: "a pure hex-scalar
// form must also be accepted and returned unchanged."
func looksLikeScalar(s string) bool {
	clean := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(clean) != ByteLen*2 {
		return false
	}
	_, err := hex.DecodeString(clean)
	return err == nil
}

// FromDisplay maps a display-form trade key (a UUID-like string, or an
// already-scalar hex string passed through unchanged) to its scalar form.
//
// The mapping splits the display value's hex-normalized bytes into
// fixed-width chunks and feeds them through MiMC, the only
// algebraic/arithmetic-friendly hash available in this module's dependency
// graph (gnark-crypto). It is injective modulo the field order only in the
// statistical sense the spec accepts: collisions are not a design concern.
func FromDisplay(display string) (Scalar, error) {
	if display == "" {
		return Scalar{}, fmt.Errorf("fieldkey: empty display key")
	}
	if looksLikeScalar(display) {
		return FromHex(display)
	}

	normalized := strings.ReplaceAll(display, "-", "")
	hFunc := mimc.NewMiMC()
	for _, chunk := range chunks(normalized, chunkSize) {
		if err := writeChunk(hFunc, chunk); err != nil {
			return Scalar{}, fmt.Errorf("fieldkey: hashing display key: %w", err)
		}
	}

	var el fr.Element
	el.SetBytes(hFunc.Sum(nil))
	return Scalar{v: el}, nil
}

// chunks splits s into fixed-width substrings, the final one padded on the
// right with '0' so every chunk is exactly n runes wide.
func chunks(s string, n int) []string {
	var out []string
	for i := 0; i < len(s); i += n {
		end := i + n
		if end > len(s) {
			chunk := s[i:] + strings.Repeat("0", end-len(s))
			out = append(out, chunk)
			break
		}
		out = append(out, s[i:end])
	}
	if len(out) == 0 {
		out = append(out, strings.Repeat("0", n))
	}
	return out
}

// writeChunk feeds one fixed-width hex (or raw ASCII, for non-hex UUID
// segments such as the dashes-stripped UUID text) chunk into the hasher.
func writeChunk(hFunc hash.Hash, chunk string) error {
	if raw, err := hex.DecodeString(chunk); err == nil {
		_, werr := hFunc.Write(raw)
		return werr
	}
	_, err := hFunc.Write([]byte(chunk))
	return err
}
