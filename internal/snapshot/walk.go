package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Norgate-AV/outcache/internal/hashing"
)

// ErrUnsupportedFile is returned for entries that are neither regular files
// nor directories, and for symlinks leading back to one of their parents
var ErrUnsupportedFile = errors.New("unsupported file type")

// FSVisitor receives the entries of a directory tree on disk.
// Children are visited in name order.
type FSVisitor interface {
	PreVisitDirectory(path string, info os.FileInfo) error
	VisitFile(path string, info os.FileInfo) error
	PostVisitDirectory(path string, info os.FileInfo) error
}

// WalkFS visits root and everything below it depth-first.
// A missing root is reported as an error satisfying os.IsNotExist.
//
// Symlinks are followed and visited as their target under the link's name.
// A link below root whose target does not exist holds no content and is
// skipped.
func WalkFS(fs afero.Fs, root string, v FSVisitor) error {
	info, err := fs.Stat(root)
	if err != nil {
		return err
	}

	return walk(fs, root, info, nil, v)
}

func walk(fs afero.Fs, path string, info os.FileInfo, parents []os.FileInfo, v FSVisitor) error {
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := fs.Stat(path)
		if os.IsNotExist(err) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("failed to follow symlink %s: %w", path, err)
		}

		info = target
	}

	if info.Mode().IsRegular() {
		return v.VisitFile(path, info)
	}

	if !info.IsDir() {
		return fmt.Errorf("%w: %s (%s)", ErrUnsupportedFile, path, info.Mode().Type())
	}

	for _, parent := range parents {
		if os.SameFile(parent, info) {
			return fmt.Errorf("%w: symlink cycle at %s", ErrUnsupportedFile, path)
		}
	}

	if err := v.PreVisitDirectory(path, info); err != nil {
		return err
	}

	// afero.ReadDir returns entries sorted by name
	entries, err := afero.ReadDir(fs, path)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", path, err)
	}

	parents = append(parents, info)
	for _, entry := range entries {
		if err := walk(fs, filepath.Join(path, entry.Name()), entry, parents, v); err != nil {
			return err
		}
	}

	return v.PostVisitDirectory(path, info)
}

type hashingVisitor struct {
	fs       afero.Fs
	hashFunc hashing.HashFunc
	builder  *MerkleBuilder
}

func (v *hashingVisitor) PreVisitDirectory(path string, info os.FileInfo) error {
	v.builder.PreVisitDirectory(path, info.Name())
	return nil
}

func (v *hashingVisitor) VisitFile(path string, info os.FileInfo) error {
	hash, err := hashing.HashFile(v.fs, path, v.hashFunc)
	if err != nil {
		return fmt.Errorf("failed to hash %s: %w", path, err)
	}

	v.builder.Visit(&File{
		Path:        path,
		Name:        info.Name(),
		ContentHash: hash,
		ModTime:     info.ModTime(),
		Mode:        info.Mode().Perm(),
	})

	return nil
}

func (v *hashingVisitor) PostVisitDirectory(string, os.FileInfo) error {
	v.builder.PostVisitDirectory()
	return nil
}

// Walk snapshots the tree at root by hashing every file.
// A root that does not exist yields a *Missing node.
func Walk(fs afero.Fs, root string, fn hashing.HashFunc) (Snapshot, error) {
	v := &hashingVisitor{fs: fs, hashFunc: fn, builder: NewMerkleBuilder(fn)}

	err := WalkFS(fs, root, v)
	if os.IsNotExist(err) {
		return &Missing{Path: root, Name: filepath.Base(root)}, nil
	}

	if err != nil {
		return nil, err
	}

	return v.builder.Result(), nil
}
