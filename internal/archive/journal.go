package archive

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// Journal records the paths an unpack created, in creation order
type Journal struct {
	paths []string
}

// Record adds a created path
func (j *Journal) Record(path string) {
	if j == nil {
		return
	}

	j.paths = append(j.paths, path)
}

// Paths returns the recorded paths in creation order
func (j *Journal) Paths() []string {
	if j == nil {
		return nil
	}

	return append([]string(nil), j.paths...)
}

// Len returns the number of recorded paths
func (j *Journal) Len() int {
	if j == nil {
		return 0
	}

	return len(j.paths)
}

// Rollback removes the recorded paths, newest first, and forgets them.
// Paths that are already gone are ignored.
func (j *Journal) Rollback(fs afero.Fs) error {
	if j == nil {
		return nil
	}

	var errs []error
	for i := len(j.paths) - 1; i >= 0; i-- {
		if err := fs.RemoveAll(j.paths[i]); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", j.paths[i], err))
		}
	}

	j.paths = nil

	return errors.Join(errs...)
}
