package compute

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across drivers and the environment.
var (
	// ErrInvalidKernelName reports that a program has no entry point with
	// the requested name. Drivers wrap it so callers can negative-cache the
	// name permanently; every other kernel-creation failure is considered
	// transient and retried.
	ErrInvalidKernelName = errors.New("compute: invalid kernel name")

	// ErrCallbacksUnsupported is returned by SetEventCallback when the
	// native runtime has no asynchronous callback primitive.
	ErrCallbacksUnsupported = errors.New("compute: event callbacks not supported")

	// ErrDispatcherClosed is returned by Listen after the dispatcher has
	// been closed.
	ErrDispatcherClosed = errors.New("compute: event dispatcher closed")

	// ErrEnvironmentFreed is returned by operations on an environment after
	// Free.
	ErrEnvironmentFreed = errors.New("compute: environment freed")

	// ErrNoDriver is returned when no compute driver is registered or
	// supplied.
	ErrNoDriver = errors.New("compute: no driver available")
)

// Error is a typed failure translated from a native status code.
// Drivers construct it for any native call that reports a non-success
// status; a status is never silently dropped.
type Error struct {
	// Code is the native status code, driver-specific.
	Code int32

	// Message describes the failed operation.
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("compute: %s (status %d)", e.Message, e.Code)
}

// Errorf builds a *Error from a native status code.
func Errorf(code int32, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// InitError reports that environment construction failed. Whatever native
// state was created before the failure has been released; the caller never
// receives a partially constructed environment.
type InitError struct {
	// Op is the construction step that failed ("create context",
	// "create queue").
	Op string

	// Err is the underlying failure.
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("compute: environment init: %s: %v", e.Op, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// CompileError reports a program build failure together with the native
// build log. LoadProgram absorbs it (logging the build log) so that a
// broken shader edit cannot crash a running application; drivers return it
// from BuildProgram.
type CompileError struct {
	// Log is the native compiler's build log, empty if none was produced.
	Log string

	// Err is the underlying failure.
	Err error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compute: program build failed: %v", e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }
