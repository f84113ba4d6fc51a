package batchsign

import (
	"errors"
	"fmt"
)

// Exit statuses that are not a plain failure count.
const (
	// ExitToolNotFound is returned when the signtool executable is missing.
	ExitToolNotFound = -1
	// ExitFatal is returned when the run was aborted by an unrecoverable error.
	ExitFatal = -2
)

// ErrSigntoolNotFound is returned when the configured signtool path does not exist.
var ErrSigntoolNotFound = errors.New("signtool executable not found")

// TerminateError is returned when a timed out signtool process could not be
// killed. The state of the child is unknown, so the whole run is aborted.
type TerminateError struct {
	Path string
	Err  error
}

func (e *TerminateError) Error() string {
	return fmt.Sprintf("execution of %s timed out and the process could not be terminated: %v", e.Path, e.Err)
}

func (e *TerminateError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must abort the whole run rather than a single attempt.
func IsFatal(err error) bool {
	var te *TerminateError
	return errors.As(err, &te)
}
