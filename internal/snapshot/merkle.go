package snapshot

import (
	"sort"

	"github.com/Norgate-AV/outcache/internal/hashing"
)

const (
	kindFile byte = iota + 1
	kindDirectory
)

type level struct {
	path     string
	name     string
	children []Snapshot
}

// MerkleBuilder assembles a snapshot tree from enter/visit/leave events.
// Directory hashes are computed when a directory is left.
type MerkleBuilder struct {
	hashFunc hashing.HashFunc
	sorting  bool
	levels   []*level
	result   Snapshot
}

// NewMerkleBuilder creates a builder that keeps children in visiting order.
// Use it when events already arrive name-sorted, as they do from Walk.
func NewMerkleBuilder(fn hashing.HashFunc) *MerkleBuilder {
	return &MerkleBuilder{hashFunc: fn}
}

// NewSortingMerkleBuilder creates a builder that sorts children by name
// before hashing, for event streams of unknown order.
func NewSortingMerkleBuilder(fn hashing.HashFunc) *MerkleBuilder {
	return &MerkleBuilder{hashFunc: fn, sorting: true}
}

// PreVisitDirectory opens a directory
func (b *MerkleBuilder) PreVisitDirectory(path, name string) {
	b.levels = append(b.levels, &level{path: path, name: name})
}

// Visit adds a leaf to the open directory, or makes it the result when no
// directory is open
func (b *MerkleBuilder) Visit(s Snapshot) {
	b.add(s)
}

// PostVisitDirectory closes the innermost open directory and returns it
func (b *MerkleBuilder) PostVisitDirectory() *Directory {
	top := b.levels[len(b.levels)-1]
	b.levels = b.levels[:len(b.levels)-1]

	children := top.children
	if b.sorting {
		sort.SliceStable(children, func(i, j int) bool {
			return children[i].BaseName() < children[j].BaseName()
		})
	}

	dir := &Directory{
		Path:       top.path,
		Name:       top.name,
		Children:   children,
		MerkleHash: b.directoryHash(children),
	}

	b.add(dir)

	return dir
}

// Depth returns the number of open directories
func (b *MerkleBuilder) Depth() int {
	return len(b.levels)
}

// Result returns the finished root, or nil if nothing was visited
func (b *MerkleBuilder) Result() Snapshot {
	return b.result
}

func (b *MerkleBuilder) add(s Snapshot) {
	if len(b.levels) == 0 {
		b.result = s
		return
	}

	top := b.levels[len(b.levels)-1]
	top.children = append(top.children, s)
}

func (b *MerkleBuilder) directoryHash(children []Snapshot) hashing.HashCode {
	hasher := hashing.NewBuilder(b.hashFunc())
	hasher.PutInt(int64(len(children)))

	for _, child := range children {
		switch child.(type) {
		case *Directory:
			hasher.PutKind(kindDirectory)
		default:
			hasher.PutKind(kindFile)
		}

		hasher.PutString(child.BaseName())
		hasher.PutHash(child.Hash())
	}

	return hasher.Hash()
}
