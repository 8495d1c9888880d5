package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/Norgate-AV/outcache/internal/hashing"
	"github.com/Norgate-AV/outcache/internal/property"
	"github.com/Norgate-AV/outcache/internal/relpath"
	"github.com/Norgate-AV/outcache/internal/snapshot"
)

// Unpack restores every declared property from r
func (p *TarPacker) Unpack(props []property.Spec, r io.Reader, readOrigin OriginReader, journal *Journal) (UnpackResult, error) {
	u := &unpacker{
		packer:    p,
		tr:        tar.NewReader(r),
		specs:     property.ByName(props),
		journal:   journal,
		snapshots: make(map[string]snapshot.Snapshot, len(props)),
	}

	err := u.run(readOrigin)

	return UnpackResult{EntryCount: u.entries, Snapshots: u.snapshots}, err
}

type unpacker struct {
	packer    *TarPacker
	tr        *tar.Reader
	specs     map[string]property.Spec
	journal   *Journal
	snapshots map[string]snapshot.Snapshot
	entries   int
}

func (u *unpacker) run(readOrigin OriginReader) error {
	hdr, err := u.next()
	if err != nil {
		return err
	}

	// Metadata must come first so nothing is written for an archive without it
	if hdr == nil || hdr.Name != metadataName {
		return corruptf("no origin metadata")
	}

	if err := u.readMetadata(hdr, readOrigin); err != nil {
		return err
	}

	hdr, err = u.next()
	for err == nil && hdr != nil {
		hdr, err = u.unpackTree(hdr)
	}

	if err != nil {
		return err
	}

	for name := range u.specs {
		if _, ok := u.snapshots[name]; !ok {
			return &PropertyError{Property: name, Err: corruptf("property not found in archive")}
		}
	}

	return nil
}

func (u *unpacker) readMetadata(hdr *tar.Header, readOrigin OriginReader) error {
	if version, ok := hdr.PAXRecords[formatRecord]; ok && version != formatVersion {
		return corruptf("unsupported archive format %q", version)
	}

	if err := readOrigin(u.source()); err != nil {
		return corrupt("invalid origin metadata", err)
	}

	return nil
}

// unpackTree restores the property starting at hdr and returns the first
// entry after it
func (u *unpacker) unpackTree(hdr *tar.Header) (*tar.Header, error) {
	name, ok := parseEntryName(hdr.Name)
	if !ok {
		return nil, corruptf("invalid entry %q", hdr.Name)
	}

	spec, ok := u.specs[name.property]
	if !ok {
		return nil, &PropertyError{Property: name.property, Err: ErrUnknownProperty}
	}

	if _, seen := u.snapshots[spec.Name]; seen {
		return nil, &PropertyError{Property: spec.Name, Path: hdr.Name, Err: corruptf("entry after the property was complete")}
	}

	if name.child != "" {
		return nil, &PropertyError{Property: spec.Name, Path: hdr.Name, Err: corruptf("root needs to be the first entry of a property")}
	}

	if name.missing {
		if err := u.unpackMissing(spec); err != nil {
			return nil, err
		}

		return u.next()
	}

	if spec.Unset() {
		return nil, &PropertyError{Property: spec.Name, Path: hdr.Name, Err: corruptf("content for a property without a root")}
	}

	isDir := isDirEntry(hdr)

	if spec.Type == property.File {
		if isDir {
			return nil, u.typeMismatch(spec, "expected a file")
		}

		if err := u.packer.fs.MkdirAll(filepath.Dir(spec.Root), defaultDirMode); err != nil {
			return nil, &PropertyError{Property: spec.Name, Path: spec.Root, Err: fmt.Errorf("failed to create parent directory: %w", err)}
		}

		file, err := u.unpackFile(spec, hdr, spec.Root)
		if err != nil {
			return nil, err
		}

		u.snapshots[spec.Name] = file

		return u.next()
	}

	if !isDir {
		return nil, u.typeMismatch(spec, "expected a directory")
	}

	return u.unpackDirectoryTree(spec, hdr)
}

func (u *unpacker) unpackDirectoryTree(spec property.Spec, rootHdr *tar.Header) (*tar.Header, error) {
	fs := u.packer.fs

	if err := fs.MkdirAll(spec.Root, defaultDirMode); err != nil {
		return nil, &PropertyError{Property: spec.Name, Path: spec.Root, Err: fmt.Errorf("failed to create directory: %w", err)}
	}

	if err := u.chmod(spec, rootHdr, spec.Root); err != nil {
		return nil, err
	}

	var parser relpath.Parser
	parser.RootPath(rootHdr.Name)

	builder := snapshot.NewSortingMerkleBuilder(u.packer.hashFunc)
	builder.PreVisitDirectory(spec.Root, filepath.Base(spec.Root))

	var next *tar.Header
	for {
		hdr, err := u.next()
		if err != nil {
			return nil, err
		}

		if hdr == nil {
			break
		}

		isDir := isDirEntry(hdr)
		for closed := parser.NextPath(hdr.Name, isDir); closed > 0; closed-- {
			builder.PostVisitDirectory()
		}

		if parser.Depth() == 0 {
			next = hdr
			break
		}

		rel := parser.RelativePath()
		if err := u.checkChildPath(rel, isDir, parser.Depth()); err != nil {
			return nil, &PropertyError{Property: spec.Name, Path: hdr.Name, Err: err}
		}

		path := filepath.Join(spec.Root, filepath.FromSlash(rel))
		if isDir {
			u.journal.Record(path)
			if err := fs.MkdirAll(path, defaultDirMode); err != nil {
				return nil, &PropertyError{Property: spec.Name, Path: path, Err: fmt.Errorf("failed to create directory: %w", err)}
			}

			if err := u.chmod(spec, hdr, path); err != nil {
				return nil, err
			}

			builder.PreVisitDirectory(path, parser.Name())
			continue
		}

		file, err := u.unpackFile(spec, hdr, path)
		if err != nil {
			return nil, err
		}

		builder.Visit(file)
	}

	for builder.Depth() > 0 {
		builder.PostVisitDirectory()
	}

	u.snapshots[spec.Name] = builder.Result()

	return next, nil
}

// checkChildPath rejects paths that climb out of the root or skip a level
func (u *unpacker) checkChildPath(rel string, isDir bool, depth int) error {
	if err := relpath.Check(rel); err != nil {
		return corrupt("invalid entry path", err)
	}

	parentDepth := depth
	if isDir {
		parentDepth--
	}

	if strings.Count(rel, "/")+1 != parentDepth {
		return corruptf("entry %q is not inside its parent directory", rel)
	}

	return nil
}

func (u *unpacker) unpackFile(spec property.Spec, hdr *tar.Header, path string) (*snapshot.File, error) {
	fs := u.packer.fs

	u.journal.Record(path)
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, defaultFileMode)
	if err != nil {
		return nil, &PropertyError{Property: spec.Name, Path: path, Err: fmt.Errorf("failed to create file: %w", err)}
	}

	src := u.source()
	hash, _, copyErr := hashing.Copy(f, src, u.packer.hashFunc())
	closeErr := f.Close()

	switch {
	case copyErr != nil && src.err != nil:
		return nil, &PropertyError{Property: spec.Name, Path: path, Err: corrupt("failed to read file content", copyErr)}
	case copyErr != nil:
		return nil, &PropertyError{Property: spec.Name, Path: path, Err: fmt.Errorf("failed to write file: %w", copyErr)}
	case closeErr != nil:
		return nil, &PropertyError{Property: spec.Name, Path: path, Err: fmt.Errorf("failed to write file: %w", closeErr)}
	}

	if err := u.chmod(spec, hdr, path); err != nil {
		return nil, err
	}

	file := &snapshot.File{
		Path:        path,
		Name:        filepath.Base(path),
		ContentHash: hash,
		Mode:        os.FileMode(hdr.Mode & permMask).Perm(),
	}

	if info, err := fs.Stat(path); err == nil {
		file.ModTime = info.ModTime()
	}

	return file, nil
}

// unpackMissing leaves the root of a missing property absent
func (u *unpacker) unpackMissing(spec property.Spec) error {
	if spec.Unset() {
		u.snapshots[spec.Name] = &snapshot.Missing{}
		return nil
	}

	fs := u.packer.fs
	parent := filepath.Dir(spec.Root)

	existed, err := afero.Exists(fs, parent)
	if err != nil {
		return &PropertyError{Property: spec.Name, Path: parent, Err: err}
	}

	if !existed {
		if err := fs.MkdirAll(parent, defaultDirMode); err != nil {
			return &PropertyError{Property: spec.Name, Path: parent, Err: fmt.Errorf("failed to create parent directory: %w", err)}
		}
	} else if err := fs.RemoveAll(spec.Root); err != nil {
		return &PropertyError{Property: spec.Name, Path: spec.Root, Err: fmt.Errorf("failed to remove stale output: %w", err)}
	}

	u.snapshots[spec.Name] = &snapshot.Missing{Path: spec.Root, Name: filepath.Base(spec.Root)}

	return nil
}

func (u *unpacker) chmod(spec property.Spec, hdr *tar.Header, path string) error {
	if err := u.packer.fs.Chmod(path, os.FileMode(hdr.Mode&permMask).Perm()); err != nil {
		return &PropertyError{Property: spec.Name, Path: path, Err: fmt.Errorf("failed to set permissions: %w", err)}
	}

	return nil
}

func (u *unpacker) typeMismatch(spec property.Spec, msg string) error {
	return &PropertyError{
		Property: spec.Name,
		Path:     spec.Root,
		Err:      fmt.Errorf("%w: %w: %s", ErrCorruptArchive, ErrTypeMismatch, msg),
	}
}

// next returns the next entry header, or nil at the end of the archive
func (u *unpacker) next() (*tar.Header, error) {
	hdr, err := u.tr.Next()
	if err == io.EOF {
		return nil, nil
	}

	if err != nil {
		return nil, corrupt("failed to read entry", err)
	}

	u.entries++

	return hdr, nil
}

func (u *unpacker) source() *sourceReader {
	return &sourceReader{r: u.tr}
}

// sourceReader remembers read failures so they can be told apart from
// failures writing to disk
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}

	return n, err
}

func isDirEntry(hdr *tar.Header) bool {
	return hdr.Typeflag == tar.TypeDir || strings.HasSuffix(hdr.Name, "/")
}
