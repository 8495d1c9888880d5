package buildcache

import (
	"errors"
	"fmt"
)

// ErrUnrecoverable marks a failed load whose outputs could not be cleaned up.
// The output locations are in an unknown state, so the build must stop.
var ErrUnrecoverable = errors.New("unrecoverable cache load failure")

// UnrecoverableError carries both the load failure and the cleanup failure
type UnrecoverableError struct {
	Key        string
	Cause      error
	CleanupErr error
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("failed to remove partially loaded outputs of cache entry %s: %v (load failed: %v)", e.Key, e.CleanupErr, e.Cause)
}

func (e *UnrecoverableError) Unwrap() []error {
	return []error{ErrUnrecoverable, e.Cause, e.CleanupErr}
}
