// Panic recovery for tree workers: a panic inside a per-tree goroutine is
// converted into a structured error instead of taking down the forest
// build.

package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError is an error created from a recovered panic. It keeps the
// original panic value and the stack trace at the time of the panic.
type PanicError struct {
	// PanicValue is the original value passed to panic()
	PanicValue interface{}

	// StackTrace contains the stack trace at the time of panic
	StackTrace string

	// Operation identifies where the panic was recovered
	Operation string
}

// Error implements the error interface for PanicError.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.PanicValue)
}

// String provides detailed information including the stack trace.
func (e *PanicError) String() string {
	return fmt.Sprintf("panic in %s: %v\nStack trace:\n%s",
		e.Operation, e.PanicValue, e.StackTrace)
}

// SafeExecute runs fn and converts any panic into a PanicError carrying
// the stack trace. The forest driver wraps each per-tree worker with it,
// so a worker panic surfaces as the fit's error.
func SafeExecute(operation string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{
				PanicValue: r,
				StackTrace: string(debug.Stack()),
				Operation:  operation,
			}
		}
	}()
	return fn()
}
