package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptArchive is returned when an archive cannot be read back.
	// Callers treat it as a cache miss.
	ErrCorruptArchive = errors.New("corrupt archive")

	// ErrTypeMismatch is returned when a declared output type disagrees
	// with what is on disk or in the archive
	ErrTypeMismatch = errors.New("output type mismatch")

	// ErrUnknownProperty is returned when an archive names a property that
	// was not declared. It is a kind of ErrCorruptArchive.
	ErrUnknownProperty = fmt.Errorf("%w: unknown output property", ErrCorruptArchive)
)

// PropertyError adds the output property and path to a codec failure
type PropertyError struct {
	Property string
	Path     string
	Err      error
}

func (e *PropertyError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("output property %q: %v", e.Property, e.Err)
	}

	return fmt.Sprintf("output property %q (%s): %v", e.Property, e.Path, e.Err)
}

func (e *PropertyError) Unwrap() error {
	return e.Err
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptArchive, fmt.Sprintf(format, args...))
}

func corrupt(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCorruptArchive, msg, err)
}
