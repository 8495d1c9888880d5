// Package hashing provides the hash primitives shared by cache-key construction,
// archive streaming and snapshotting.
//
// Two hash families are used:
//
//  1. Cache keys, and the input file contents folded into them, are SHA-256
//     (see NewKeyHash)
//  2. Output snapshots default to xxHash64 (see DefaultContentHash), which is
//     only used for change detection and never leaves the process as an identifier
package hashing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/cespare/xxhash/v2"
)

// HashFunc creates a fresh hash state
type HashFunc func() hash.Hash

// HashCode is an immutable hash value
type HashCode []byte

// String returns the lower-case hex form, or "" for a nil code
func (h HashCode) String() string {
	return hex.EncodeToString(h)
}

// Equal reports whether both codes hold the same bytes
func (h HashCode) Equal(other HashCode) bool {
	return bytes.Equal(h, other)
}

// IsZero reports whether the code is absent
func (h HashCode) IsZero() bool {
	return len(h) == 0
}

// ParseHashCode decodes a hex string produced by HashCode.String
func ParseHashCode(s string) (HashCode, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hash code %q: %w", s, err)
	}

	return HashCode(b), nil
}

// NewKeyHash returns the hash state used for cache keys
func NewKeyHash() hash.Hash {
	return sha256.New()
}

// DefaultContentHash returns the hash state used for file contents
func DefaultContentHash() hash.Hash {
	return xxhash.New()
}

// Sum hashes a byte slice in one go
func Sum(fn HashFunc, data []byte) HashCode {
	h := fn()
	h.Write(data)

	return HashCode(h.Sum(nil))
}
