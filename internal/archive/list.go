package archive

import (
	"archive/tar"
	"io"
	"os"
)

// EntryKind classifies archive entries
type EntryKind string

const (
	KindMetadata  EntryKind = "metadata"
	KindMissing   EntryKind = "missing"
	KindDirectory EntryKind = "directory"
	KindFile      EntryKind = "file"
)

// EntryInfo describes one archive entry
type EntryInfo struct {
	Name     string
	Kind     EntryKind
	Property string
	// Path below the property root; empty for roots, markers and metadata
	Path string
	Mode os.FileMode
	Size int64
}

// List reads the entry headers of an archive without restoring anything
func List(r io.Reader) ([]EntryInfo, error) {
	tr := tar.NewReader(r)

	var entries []EntryInfo
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return entries, corrupt("failed to read entry", err)
		}

		info := EntryInfo{
			Name: hdr.Name,
			Mode: os.FileMode(hdr.Mode & permMask).Perm(),
			Size: hdr.Size,
		}

		if hdr.Name == metadataName {
			info.Kind = KindMetadata
			entries = append(entries, info)
			continue
		}

		name, ok := parseEntryName(hdr.Name)
		if !ok {
			return entries, corruptf("invalid entry %q", hdr.Name)
		}

		info.Property = name.property
		info.Path = name.child

		switch {
		case name.missing:
			info.Kind = KindMissing
		case isDirEntry(hdr):
			info.Kind = KindDirectory
		default:
			info.Kind = KindFile
		}

		entries = append(entries, info)
	}

	return entries, nil
}
