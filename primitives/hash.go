// Package primitives holds the opaque chain data types the indexer core
// reads fields from: hashes, block/shard identifiers, transaction and
// receipt views, and execution outcomes. It mirrors the subset of NEAR's
// indexer primitives the assembly engine actually touches (see spec.md §3).
package primitives

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// HashSize is the width of a CryptoHash in bytes.
const HashSize = 32

// CryptoHash is an opaque, fixed-size, equality- and hash-comparable
// identifier used for transaction, receipt, block, and chunk hashes. Being a
// plain array (not a slice) it is directly usable as a map key, which both
// C1 and C2 rely on.
type CryptoHash [HashSize]byte

// String renders the hash in its canonical textual form: 0x-prefixed hex.
func (h CryptoHash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero hash.
func (h CryptoHash) IsZero() bool {
	return h == CryptoHash{}
}

// MarshalText implements encoding.TextMarshaler.
func (h CryptoHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *CryptoHash) UnmarshalText(text []byte) error {
	parsed, err := ParseCryptoHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseCryptoHash parses the canonical textual form produced by String. The
// "0x" prefix is optional on input, so bare hex without the prefix also
// parses.
func ParseCryptoHash(s string) (CryptoHash, error) {
	var h CryptoHash
	trimmed := s
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		trimmed = s[2:]
	}
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return h, fmt.Errorf("primitives: invalid hex hash %q: %w", s, err)
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("primitives: hash %q has %d bytes, want %d", s, len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

// BytesToHash copies b (which must be HashSize long) into a CryptoHash.
func BytesToHash(b []byte) (CryptoHash, error) {
	var h CryptoHash
	if len(b) != HashSize {
		return h, fmt.Errorf("primitives: want %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Compare gives a deterministic byte order over hashes.
func Compare(a, b CryptoHash) int {
	return bytes.Compare(a[:], b[:])
}
