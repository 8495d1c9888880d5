// Package archive packs the outputs of a work unit into a single TAR stream
// and unpacks them again.
//
// An archive holds one METADATA entry followed by the entries of every
// declared output property, in declaration order. Within a property, entries
// are depth-first so a single forward pass can rebuild the tree.
package archive

import (
	"io"

	"github.com/spf13/afero"

	"github.com/Norgate-AV/outcache/internal/hashing"
	"github.com/Norgate-AV/outcache/internal/property"
	"github.com/Norgate-AV/outcache/internal/snapshot"
)

// OriginWriter writes origin metadata for the METADATA entry
type OriginWriter func(w io.Writer) error

// OriginReader reads origin metadata back from the METADATA entry
type OriginReader func(r io.Reader) error

// PackResult describes a packed archive
type PackResult struct {
	// EntryCount counts every entry written, metadata included
	EntryCount int
	// Missing counts the missing-property markers among them
	Missing int
	// Snapshots holds the tree hashed while packing, per property
	Snapshots map[string]snapshot.Snapshot
}

// ArtifactEntries returns the number of entries that carry outputs
func (r PackResult) ArtifactEntries() int {
	n := r.EntryCount - r.Missing - 1
	if n < 0 {
		return 0
	}

	return n
}

// UnpackResult describes an unpacked archive
type UnpackResult struct {
	// EntryCount counts every entry read, metadata included
	EntryCount int
	// Snapshots holds the restored tree, per property
	Snapshots map[string]snapshot.Snapshot
}

// EntryPacker converts output properties to and from an archive stream
type EntryPacker interface {
	Pack(props []property.Spec, writeOrigin OriginWriter, w io.Writer) (PackResult, error)
	// Unpack restores props from r. Every path it creates is recorded in
	// journal when one is given, including on failure.
	Unpack(props []property.Spec, r io.Reader, readOrigin OriginReader, journal *Journal) (UnpackResult, error)
}

// TarPacker is the TAR implementation of EntryPacker.
// It holds no per-call state and is safe for concurrent use.
type TarPacker struct {
	fs       afero.Fs
	hashFunc hashing.HashFunc
}

// Option configures a TarPacker
type Option func(*TarPacker)

// WithHashFunc sets the content hash used for snapshots
func WithHashFunc(fn hashing.HashFunc) Option {
	return func(p *TarPacker) {
		p.hashFunc = fn
	}
}

// NewTarPacker creates a packer reading and writing outputs through fs
func NewTarPacker(fs afero.Fs, opts ...Option) *TarPacker {
	p := &TarPacker{
		fs:       fs,
		hashFunc: hashing.DefaultContentHash,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}
