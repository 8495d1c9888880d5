// Package relpath turns flat depth-first path streams into directory
// enter/leave events, and back.
package relpath

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrMalformedPath is returned for relative paths that could escape their root
var ErrMalformedPath = errors.New("malformed relative path")

// Parser follows a stream of slash-separated paths in depth-first pre-order
// and reports how many directories were left between consecutive paths.
//
// Directory paths may carry a trailing slash. The parser keeps one prefix per
// open directory, so memory grows with depth, not with the number of entries.
type Parser struct {
	root    string
	stack   []string
	current string
}

// RootPath starts a new tree at the given directory path
func (p *Parser) RootPath(root string) {
	p.root = withSlash(root)
	p.stack = append(p.stack[:0], p.root)
	p.current = strings.TrimSuffix(root, "/")
}

// NextPath moves to the next path and returns the number of directories that
// were closed to reach it. When the path is outside the root, every directory
// including the root is closed and Depth drops to zero.
func (p *Parser) NextPath(entryPath string, isDir bool) int {
	closed := 0
	for len(p.stack) > 0 && !strings.HasPrefix(entryPath, p.stack[len(p.stack)-1]) {
		p.stack = p.stack[:len(p.stack)-1]
		closed++
	}

	p.current = strings.TrimSuffix(entryPath, "/")
	if len(p.stack) > 0 && isDir {
		p.stack = append(p.stack, withSlash(entryPath))
	}

	return closed
}

// Depth returns the number of open directories, the root included
func (p *Parser) Depth() int {
	return len(p.stack)
}

// RelativePath returns the current path relative to the root
func (p *Parser) RelativePath() string {
	return strings.TrimPrefix(p.current, p.root)
}

// Name returns the last segment of the current path
func (p *Parser) Name() string {
	return path.Base(p.current)
}

// Check rejects relative paths that are empty, absolute, or climb out of the root
func Check(rel string) error {
	if rel == "" || strings.HasPrefix(rel, "/") {
		return fmt.Errorf("%w: %q", ErrMalformedPath, rel)
	}

	for _, segment := range strings.Split(rel, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return fmt.Errorf("%w: %q", ErrMalformedPath, rel)
		}
	}

	return nil
}

func withSlash(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}

	return p + "/"
}
