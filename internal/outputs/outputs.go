// Package outputs prepares output locations before a cache load and removes
// them again after a failed one.
package outputs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Norgate-AV/outcache/internal/archive"
	"github.com/Norgate-AV/outcache/internal/property"
)

// ErrPreparationFailed is returned when an output location cannot be made ready
var ErrPreparationFailed = errors.New("output preparation failed")

// Preparer brings output roots into a known-empty state
type Preparer struct {
	fs afero.Fs
}

// NewPreparer creates a preparer working on fs
func NewPreparer(fs afero.Fs) *Preparer {
	return &Preparer{fs: fs}
}

// PrepareAll prepares every spec, stopping at the first failure
func (p *Preparer) PrepareAll(specs []property.Spec) error {
	for _, spec := range specs {
		if err := p.Prepare(spec); err != nil {
			return err
		}
	}

	return nil
}

// Prepare readies a single output root.
// Directories end up existing and empty; files end up absent with their
// parent directory in place. A property without a root is left alone.
func (p *Preparer) Prepare(spec property.Spec) error {
	if spec.Unset() {
		return nil
	}

	var err error
	switch spec.Type {
	case property.Directory:
		err = p.prepareDirectory(spec.Root)
	case property.File:
		err = p.prepareFile(spec.Root)
	default:
		err = fmt.Errorf("unknown output type %s", spec.Type)
	}

	if err != nil {
		return fmt.Errorf("%w: output property %q (%s): %w", ErrPreparationFailed, spec.Name, spec.Root, err)
	}

	return nil
}

func (p *Preparer) prepareDirectory(root string) error {
	info, err := p.fs.Stat(root)
	switch {
	case os.IsNotExist(err):
		// Freshly created, nothing to clean
		return p.fs.MkdirAll(root, 0o755)
	case err != nil:
		return err
	case !info.IsDir():
		if err := p.fs.Remove(root); err != nil {
			return fmt.Errorf("failed to remove file in place of directory: %w", err)
		}

		return p.fs.MkdirAll(root, 0o755)
	}

	entries, err := afero.ReadDir(p.fs, root)
	if err != nil {
		return fmt.Errorf("failed to list directory: %w", err)
	}

	for _, entry := range entries {
		if err := p.fs.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			return fmt.Errorf("failed to clean directory: %w", err)
		}
	}

	return nil
}

func (p *Preparer) prepareFile(root string) error {
	parent := filepath.Dir(root)

	existed, err := afero.DirExists(p.fs, parent)
	if err != nil {
		return err
	}

	if !existed {
		// Nothing can be in a directory we are about to create
		return p.fs.MkdirAll(parent, 0o755)
	}

	if err := p.fs.RemoveAll(root); err != nil {
		return fmt.Errorf("failed to remove previous output: %w", err)
	}

	return nil
}

// Remover deletes whatever a failed load left behind
type Remover struct {
	fs afero.Fs
}

// NewRemover creates a remover working on fs
func NewRemover(fs afero.Fs) *Remover {
	return &Remover{fs: fs}
}

// RemoveAll rolls back journal and then deletes every output root.
// It keeps going after failures and reports all of them.
func (r *Remover) RemoveAll(specs []property.Spec, journal *archive.Journal) error {
	var errs []error

	if err := journal.Rollback(r.fs); err != nil {
		errs = append(errs, err)
	}

	for _, spec := range specs {
		if spec.Unset() {
			continue
		}

		if err := r.fs.RemoveAll(spec.Root); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("failed to remove output property %q (%s): %w", spec.Name, spec.Root, err))
		}
	}

	return errors.Join(errs...)
}
