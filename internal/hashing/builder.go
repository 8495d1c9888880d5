package hashing

import (
	"encoding/binary"
	"hash"
)

// Builder accumulates values into a hash state in call order.
//
// Every value is framed (strings and byte slices carry their length), so
// ("ab", "c") and ("a", "bc") never collide. The builder never sorts: callers
// that need a canonical order must append in that order.
type Builder struct {
	h   hash.Hash
	buf [binary.MaxVarintLen64]byte
}

// NewBuilder wraps the given hash state
func NewBuilder(h hash.Hash) *Builder {
	return &Builder{h: h}
}

// PutKind writes a single tag byte, used to separate sections of a key
func (b *Builder) PutKind(kind byte) {
	b.h.Write([]byte{kind})
}

// PutInt writes a signed integer
func (b *Builder) PutInt(v int64) {
	n := binary.PutVarint(b.buf[:], v)
	b.h.Write(b.buf[:n])
}

// PutBool writes a boolean as one byte
func (b *Builder) PutBool(v bool) {
	if v {
		b.PutKind(1)
		return
	}

	b.PutKind(0)
}

// PutBytes writes a length-prefixed byte slice
func (b *Builder) PutBytes(data []byte) {
	b.PutInt(int64(len(data)))
	b.h.Write(data)
}

// PutString writes a length-prefixed string
func (b *Builder) PutString(s string) {
	b.PutBytes([]byte(s))
}

// PutHash writes a length-prefixed hash code; a nil code writes length zero
func (b *Builder) PutHash(code HashCode) {
	b.PutBytes(code)
}

// Hash returns the accumulated hash. The builder can keep accepting values.
func (b *Builder) Hash() HashCode {
	return HashCode(b.h.Sum(nil))
}
