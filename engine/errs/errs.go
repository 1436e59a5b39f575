// Package errs holds the sentinel errors shared by the scene and frame packages.
// Callers compare with errors.Is; producers wrap with fmt.Errorf("...: %w", err).
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceExhausted reports a full slot pool. Recoverable; nothing partial is left behind.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrInvalidInput reports an expired node handle, a missing or empty model, or an unknown ID.
	ErrInvalidInput = errors.New("invalid input")

	// ErrBackendBuild reports a backend failure while building a buffer or acceleration structure.
	// The last successfully built traversable stays valid.
	ErrBackendBuild = errors.New("backend build failure")

	// ErrNotInitialized reports use of a component before Initialize succeeded.
	ErrNotInitialized = errors.New("not initialized")
)

// Recovered converts a value returned by recover() into an error wrapping ErrBackendBuild.
// Returns nil when r is nil.
//
// Parameters:
//   - r: the recovered value
//
// Returns:
//   - error: the wrapped error, or nil
func Recovered(r any) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		return errors.Join(ErrBackendBuild, err)
	}
	return errors.Join(ErrBackendBuild, fmt.Errorf("panic: %v", r))
}
