package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by lookups for keys or ids that do not exist.
	ErrNotFound = errors.New("not found")

	// ErrCompletionFault marks a completion service failure that survived
	// every retry. The current tick is aborted; the agent keeps running.
	ErrCompletionFault = errors.New("completion service fault")

	// ErrStoreFault marks a persistence failure. It is fatal for the
	// affected agent loop.
	ErrStoreFault = errors.New("store fault")
)

// CompletionFaultError wraps the last error returned by a completion client
// after Attempts tries.
type CompletionFaultError struct {
	Attempts int
	Err      error
}

func (e *CompletionFaultError) Error() string {
	return fmt.Sprintf("completion failed after %d attempt(s): %v", e.Attempts, e.Err)
}

// Unwrap returns the underlying error.
func (e *CompletionFaultError) Unwrap() error { return e.Err }

// Is matches ErrCompletionFault.
func (e *CompletionFaultError) Is(target error) bool { return target == ErrCompletionFault }

// StoreFaultError describes a failed store operation.
type StoreFaultError struct {
	Op  string // "get" or "set"
	Key string
	Err error
}

func (e *StoreFaultError) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreFaultError) Unwrap() error { return e.Err }

// Is matches ErrStoreFault.
func (e *StoreFaultError) Is(target error) bool { return target == ErrStoreFault }

// AsCompletionFault returns err unchanged if it already is a completion fault
// and otherwise wraps it as a single-attempt fault. Nil stays nil.
func AsCompletionFault(err error) error {
	if err == nil || errors.Is(err, ErrCompletionFault) {
		return err
	}
	return &CompletionFaultError{Attempts: 1, Err: err}
}
