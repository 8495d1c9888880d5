package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Norgate-AV/outcache/internal/hashing"
	"github.com/Norgate-AV/outcache/internal/property"
	"github.com/Norgate-AV/outcache/internal/relpath"
	"github.com/Norgate-AV/outcache/internal/snapshot"
)

// Pack writes the metadata entry and then every property in the given order
func (p *TarPacker) Pack(props []property.Spec, writeOrigin OriginWriter, w io.Writer) (PackResult, error) {
	tw := tar.NewWriter(w)
	result := PackResult{Snapshots: make(map[string]snapshot.Snapshot, len(props))}

	if err := p.packMetadata(tw, writeOrigin); err != nil {
		return result, err
	}

	result.EntryCount++

	for _, spec := range props {
		tree, err := p.packTree(tw, spec)
		result.EntryCount += tree.entries
		if err != nil {
			return result, err
		}

		if tree.missing {
			result.Missing++
		}

		result.Snapshots[spec.Name] = tree.snapshot
	}

	if err := tw.Close(); err != nil {
		return result, fmt.Errorf("failed to finish archive: %w", err)
	}

	return result, nil
}

func (p *TarPacker) packMetadata(tw *tar.Writer, writeOrigin OriginWriter) error {
	// Buffer first so the entry size is known up front
	var buf bytes.Buffer
	if err := writeOrigin(&buf); err != nil {
		return fmt.Errorf("failed to write origin metadata: %w", err)
	}

	hdr := &tar.Header{
		Typeflag:   tar.TypeReg,
		Name:       metadataName,
		Size:       int64(buf.Len()),
		Mode:       fileFlag | defaultFileMode,
		Format:     tar.FormatPAX,
		PAXRecords: map[string]string{formatRecord: formatVersion},
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write metadata header: %w", err)
	}

	if _, err := tw.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

type packedTree struct {
	entries  int
	missing  bool
	snapshot snapshot.Snapshot
}

func (p *TarPacker) packTree(tw *tar.Writer, spec property.Spec) (packedTree, error) {
	v := &packingVisitor{
		packer:   p,
		tw:       tw,
		spec:     spec,
		treePath: treePath(spec.Name),
		builder:  snapshot.NewMerkleBuilder(p.hashFunc),
	}

	if spec.Unset() {
		if err := v.storeMissing(); err != nil {
			return packedTree{entries: v.entries}, err
		}

		return packedTree{entries: v.entries, missing: true, snapshot: &snapshot.Missing{}}, nil
	}

	err := snapshot.WalkFS(p.fs, spec.Root, v)
	switch {
	case os.IsNotExist(err):
		if err := v.storeMissing(); err != nil {
			return packedTree{entries: v.entries}, err
		}

		return packedTree{
			entries:  v.entries,
			missing:  true,
			snapshot: &snapshot.Missing{Path: spec.Root, Name: filepath.Base(spec.Root)},
		}, nil
	case err != nil:
		var propErr *PropertyError
		if !errors.As(err, &propErr) {
			err = &PropertyError{Property: spec.Name, Path: spec.Root, Err: err}
		}

		return packedTree{entries: v.entries}, err
	}

	missing, err := v.finish()
	if err != nil {
		return packedTree{entries: v.entries}, err
	}

	tree := packedTree{entries: v.entries, missing: missing, snapshot: v.builder.Result()}
	if missing {
		tree.snapshot = &snapshot.Missing{Path: spec.Root, Name: filepath.Base(spec.Root)}
	}

	return tree, nil
}

// packingVisitor writes one property while it is walked on disk
type packingVisitor struct {
	packer   *TarPacker
	tw       *tar.Writer
	spec     property.Spec
	treePath string
	tracker  relpath.Tracker
	builder  *snapshot.MerkleBuilder
	entries  int
}

func (v *packingVisitor) PreVisitDirectory(path string, info os.FileInfo) error {
	root := v.tracker.IsRoot()
	v.tracker.Enter(info.Name())

	if err := v.checkType(root, property.Directory, path); err != nil {
		return err
	}

	// The root is stored with a fixed mode so archives do not depend on
	// how the output directory happened to be created
	mode := int64(defaultDirMode)
	if !root {
		mode = int64(info.Mode().Perm())
	}

	hdr := &tar.Header{
		Typeflag: tar.TypeDir,
		Name:     v.targetPath(root) + "/",
		Mode:     dirFlag | mode,
	}

	if err := v.tw.WriteHeader(hdr); err != nil {
		return v.fail(path, fmt.Errorf("failed to write directory entry: %w", err))
	}

	v.builder.PreVisitDirectory(path, info.Name())
	v.entries++

	return nil
}

func (v *packingVisitor) VisitFile(path string, info os.FileInfo) error {
	root := v.tracker.IsRoot()
	v.tracker.Enter(info.Name())
	defer v.tracker.Leave()

	if err := v.checkType(root, property.File, path); err != nil {
		return err
	}

	f, err := v.packer.fs.Open(path)
	if err != nil {
		return v.fail(path, fmt.Errorf("failed to open file: %w", err))
	}

	defer f.Close()

	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     v.targetPath(root),
		Size:     info.Size(),
		Mode:     fileFlag | int64(info.Mode().Perm()),
	}

	if err := v.tw.WriteHeader(hdr); err != nil {
		return v.fail(path, fmt.Errorf("failed to write file entry: %w", err))
	}

	// Hash while streaming so the file is read exactly once
	hash, _, err := hashing.Copy(v.tw, f, v.packer.hashFunc())
	if err != nil {
		return v.fail(path, fmt.Errorf("failed to store file content: %w", err))
	}

	v.builder.Visit(&snapshot.File{
		Path:        path,
		Name:        info.Name(),
		ContentHash: hash,
		ModTime:     info.ModTime(),
		Mode:        info.Mode().Perm(),
	})
	v.entries++

	return nil
}

func (v *packingVisitor) PostVisitDirectory(string, os.FileInfo) error {
	v.tracker.Leave()
	v.builder.PostVisitDirectory()

	return nil
}

// finish guarantees that every property leaves at least one entry behind
func (v *packingVisitor) finish() (bool, error) {
	if v.entries > 0 {
		return false, nil
	}

	return true, v.storeMissing()
}

func (v *packingVisitor) storeMissing() error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     missingPrefix + v.treePath,
		Mode:     fileFlag | defaultFileMode,
	}

	if err := v.tw.WriteHeader(hdr); err != nil {
		return v.fail(v.spec.Root, fmt.Errorf("failed to write missing marker: %w", err))
	}

	v.entries++

	return nil
}

func (v *packingVisitor) targetPath(root bool) string {
	if root {
		return v.treePath
	}

	return v.treePath + "/" + v.tracker.RelativePath()
}

// checkType only looks at the root; nested entries can be anything
func (v *packingVisitor) checkType(root bool, actual property.Type, path string) error {
	if !root || v.spec.Type == actual {
		return nil
	}

	return v.fail(path, fmt.Errorf("%w: expected a %s", ErrTypeMismatch, v.spec.Type))
}

func (v *packingVisitor) fail(path string, err error) error {
	return &PropertyError{Property: v.spec.Name, Path: path, Err: err}
}
