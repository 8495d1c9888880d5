package archive

import (
	"net/url"
	"strings"
)

// Entry naming:
//
//	METADATA                    origin metadata, always first
//	tree-<name>                 root of a file property
//	tree-<name>/                root of a directory property
//	tree-<name>/<path>[/]       entry below a directory property
//	missing-tree-<name>         property whose root does not exist
//
// Property names are query-escaped so they never contain a slash.
const (
	metadataName  = "METADATA"
	treePrefix    = "tree-"
	missingPrefix = "missing-"

	// PAX record carrying the archive format version on the metadata entry
	formatRecord  = "OUTCACHE.format"
	formatVersion = "1"
)

// Unix mode bits used in entry headers
const (
	fileFlag        = 0o100000
	dirFlag         = 0o040000
	defaultFileMode = 0o644
	defaultDirMode  = 0o755
	permMask        = 0o7777
)

func escapeName(name string) string {
	return url.QueryEscape(name)
}

func treePath(property string) string {
	return treePrefix + escapeName(property)
}

func missingPath(property string) string {
	return missingPrefix + treePath(property)
}

// entryName is a parsed archive entry name
type entryName struct {
	property string
	// path below the property root, without a trailing slash; "" for the root
	child   string
	missing bool
}

func parseEntryName(name string) (entryName, bool) {
	var parsed entryName

	rest := name
	if strings.HasPrefix(rest, missingPrefix) {
		parsed.missing = true
		rest = rest[len(missingPrefix):]
	}

	if !strings.HasPrefix(rest, treePrefix) {
		return entryName{}, false
	}

	rest = rest[len(treePrefix):]
	escaped, child, _ := strings.Cut(rest, "/")
	if escaped == "" {
		return entryName{}, false
	}

	property, err := url.QueryUnescape(escaped)
	if err != nil {
		return entryName{}, false
	}

	parsed.property = property
	parsed.child = strings.TrimSuffix(child, "/")

	if parsed.missing && child != "" {
		return entryName{}, false
	}

	return parsed, true
}
