package relpath

import "strings"

// Tracker builds relative paths while a tree is visited.
// The first entered name is the root and is not part of any relative path.
type Tracker struct {
	segments []string
}

// IsRoot reports whether nothing has been entered yet
func (t *Tracker) IsRoot() bool {
	return len(t.segments) == 0
}

// Enter descends into name
func (t *Tracker) Enter(name string) {
	t.segments = append(t.segments, name)
}

// Leave goes back up one level
func (t *Tracker) Leave() {
	t.segments = t.segments[:len(t.segments)-1]
}

// RelativePath returns the slash-separated path below the root
func (t *Tracker) RelativePath() string {
	if len(t.segments) < 2 {
		return ""
	}

	return strings.Join(t.segments[1:], "/")
}
