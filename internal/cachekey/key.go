// Package cachekey derives build cache keys from the identity of a unit of work.
//
// A key is built from, in this order:
//
//  1. the implementation of the work unit and the origin it was loaded from
//  2. the implementations of its actions, in declaration order
//  3. the hash of every input property, in name order
//  4. the name of every output property, in name order
//
// The builder hashes in call order; callers supply the canonical order.
// If any implementation comes from an unknown origin the key is still built
// but has no hash, and must not be used to load or store results.
package cachekey

import (
	"slices"

	digest "github.com/opencontainers/go-digest"

	"github.com/Norgate-AV/outcache/internal/hashing"
)

// Implementation identifies a piece of code taking part in a unit of work
type Implementation struct {
	// TypeName is the stable name of the implementation (e.g. "compile-go")
	TypeName string

	// OriginHash is the hash of whatever defines the implementation
	// (tool binary, plugin bundle). Nil means the origin is unknown.
	OriginHash hashing.HashCode
}

// Unknown reports whether the origin of the implementation could not be determined
func (i Implementation) Unknown() bool {
	return i.OriginHash.IsZero()
}

// NamedHash pairs an input property name with its hash
type NamedHash struct {
	Name string
	Hash hashing.HashCode
}

// Inputs records the raw components of a key for diagnostics. It is never
// consulted when comparing keys.
type Inputs struct {
	Implementation                   *Implementation
	ActionImplementations            []Implementation
	InputHashes                      []NamedHash
	InputPropertiesFromUnknownOrigin []string
	OutputPropertyNames              []string
}

// clone copies every slice and the implementation so the result shares
// nothing with i
func (i Inputs) clone() Inputs {
	c := Inputs{
		ActionImplementations:            slices.Clone(i.ActionImplementations),
		InputHashes:                      slices.Clone(i.InputHashes),
		InputPropertiesFromUnknownOrigin: slices.Clone(i.InputPropertiesFromUnknownOrigin),
		OutputPropertyNames:              slices.Clone(i.OutputPropertyNames),
	}

	if i.Implementation != nil {
		impl := *i.Implementation
		c.Implementation = &impl
	}

	return c
}

// Key is an immutable build cache key
type Key struct {
	hash   hashing.HashCode
	inputs Inputs
}

// Hash returns the key hash, or nil when the key is not cacheable
func (k Key) Hash() hashing.HashCode {
	return k.hash
}

// Valid reports whether the key may be used to load or store results
func (k Key) Valid() bool {
	return !k.hash.IsZero()
}

// String returns the hex form of the hash, or "INVALID" for a key without one
func (k Key) String() string {
	if !k.Valid() {
		return "INVALID"
	}

	return k.hash.String()
}

// Digest returns the key in OCI digest form ("sha256:<hex>"), or "" when invalid
func (k Key) Digest() digest.Digest {
	if !k.Valid() {
		return ""
	}

	return digest.NewDigestFromEncoded(digest.SHA256, k.hash.String())
}

// Inputs returns a copy of the components the key was built from
func (k Key) Inputs() Inputs {
	return k.inputs.clone()
}

// ParseDigest accepts either a bare hex key or "sha256:<hex>" and returns the hex form
func ParseDigest(s string) (string, error) {
	d, err := digest.Parse(s)
	if err != nil {
		d = digest.NewDigestFromEncoded(digest.SHA256, s)
		if verr := d.Validate(); verr != nil {
			return "", verr
		}
	}

	if d.Algorithm() != digest.SHA256 {
		return "", digest.ErrDigestUnsupported
	}

	return d.Encoded(), nil
}
