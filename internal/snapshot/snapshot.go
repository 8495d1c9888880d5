// Package snapshot models hash-annotated trees mirroring filesystem subtrees.
//
// A Snapshot is exactly one of *File, *Directory or *Missing. Directories
// carry a Merkle hash over their children so two trees can be compared
// without touching disk again.
package snapshot

import (
	"fmt"
	"io/fs"
	"time"

	"github.com/Norgate-AV/outcache/internal/hashing"
)

// Snapshot is a node of a snapshot tree
type Snapshot interface {
	AbsolutePath() string
	BaseName() string
	// Hash returns the content hash of a file, the Merkle hash of a
	// directory, or nil for a missing node
	Hash() hashing.HashCode

	isSnapshot()
}

// File is a regular file
type File struct {
	Path        string
	Name        string
	ContentHash hashing.HashCode
	ModTime     time.Time
	Mode        fs.FileMode
}

func (f *File) AbsolutePath() string   { return f.Path }
func (f *File) BaseName() string       { return f.Name }
func (f *File) Hash() hashing.HashCode { return f.ContentHash }
func (*File) isSnapshot()              {}

// Directory is a directory with its children in visiting order
type Directory struct {
	Path       string
	Name       string
	Children   []Snapshot
	MerkleHash hashing.HashCode
}

func (d *Directory) AbsolutePath() string   { return d.Path }
func (d *Directory) BaseName() string       { return d.Name }
func (d *Directory) Hash() hashing.HashCode { return d.MerkleHash }
func (*Directory) isSnapshot()              {}

// Missing marks a root that does not exist
type Missing struct {
	Path string
	Name string
}

func (m *Missing) AbsolutePath() string { return m.Path }
func (m *Missing) BaseName() string     { return m.Name }
func (*Missing) Hash() hashing.HashCode { return nil }
func (*Missing) isSnapshot()            {}

// Visitor receives the nodes of a snapshot tree in depth-first pre-order
type Visitor interface {
	PreVisitDirectory(d *Directory) error
	VisitFile(f *File) error
	VisitMissing(m *Missing) error
	PostVisitDirectory(d *Directory) error
}

// Accept walks s and calls v for every node. The first error stops the walk.
func Accept(s Snapshot, v Visitor) error {
	switch node := s.(type) {
	case *File:
		return v.VisitFile(node)
	case *Missing:
		return v.VisitMissing(node)
	case *Directory:
		if err := v.PreVisitDirectory(node); err != nil {
			return err
		}

		for _, child := range node.Children {
			if err := Accept(child, v); err != nil {
				return err
			}
		}

		return v.PostVisitDirectory(node)
	default:
		return fmt.Errorf("unexpected snapshot node %T", s)
	}
}

// Stats summarises a snapshot tree
type Stats struct {
	Files       int
	Directories int
	Missing     int
}

type statsVisitor struct {
	stats Stats
}

func (v *statsVisitor) PreVisitDirectory(*Directory) error {
	v.stats.Directories++
	return nil
}

func (v *statsVisitor) VisitFile(*File) error {
	v.stats.Files++
	return nil
}

func (v *statsVisitor) VisitMissing(*Missing) error {
	v.stats.Missing++
	return nil
}

func (v *statsVisitor) PostVisitDirectory(*Directory) error {
	return nil
}

// Count returns how many nodes of each kind s contains
func Count(s Snapshot) Stats {
	v := &statsVisitor{}
	_ = Accept(s, v)

	return v.stats
}

// Equal reports whether two trees have the same shape, names and hashes.
// Absolute paths and modification times are ignored so trees restored to a
// different location still compare equal.
func Equal(a, b Snapshot) bool {
	switch x := a.(type) {
	case *File:
		y, ok := b.(*File)
		return ok && x.Name == y.Name && x.ContentHash.Equal(y.ContentHash)
	case *Missing:
		y, ok := b.(*Missing)
		return ok && x.Name == y.Name
	case *Directory:
		y, ok := b.(*Directory)
		if !ok || x.Name != y.Name || len(x.Children) != len(y.Children) {
			return false
		}

		for i := range x.Children {
			if !Equal(x.Children[i], y.Children[i]) {
				return false
			}
		}

		return x.MerkleHash.Equal(y.MerkleHash)
	default:
		return a == nil && b == nil
	}
}
