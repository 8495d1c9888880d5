package codes

import (
	"errors"
)

// Exit codes returned by the outcache CLI
const (
	Success       = 0
	Failure       = 1
	Usage         = 2
	CacheMiss     = 3
	NotCacheable  = 4
	CommandFailed = 5
	Unrecoverable = 6
)

// ErrorCodes maps outcache exit codes to their descriptions
var ErrorCodes = map[int]string{
	Success:       "Success",
	Failure:       "General failure",
	Usage:         "Invalid arguments or configuration",
	CacheMiss:     "No cache entry for the work unit",
	NotCacheable:  "Work unit cache key is not cacheable",
	CommandFailed: "Work unit command failed",
	Unrecoverable: "Outputs could not be cleaned up after a failed cache load",
}

// IsSuccess returns true if the exit code indicates success
func IsSuccess(code int) bool {
	return code == Success
}

// GetErrorMessage returns the message for a given exit code, or a generic message if unknown
func GetErrorMessage(code int) string {
	if msg, ok := ErrorCodes[code]; ok {
		return msg
	}

	return "Unknown error"
}

// ExitError carries the exit code the process should end with
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return GetErrorMessage(e.Code)
	}

	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WithCode attaches an exit code to err
func WithCode(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// FromError returns the exit code for err: Success for nil, the attached
// code for an *ExitError, Failure otherwise
func FromError(err error) int {
	if err == nil {
		return Success
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	return Failure
}
