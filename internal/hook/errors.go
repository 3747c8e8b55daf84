package hook

import (
	"errors"
	"fmt"
)

// ErrHandlerPanic is the sentinel wrapped by PanicError.
var ErrHandlerPanic = errors.New("hook handler panicked")

// ErrScopeClosed is returned when registering through a closed Scope.
var ErrScopeClosed = errors.New("hook scope closed")

// PanicError is recorded in a Result when a handler panics instead of
// returning.
type PanicError struct {
	Event string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("hook handler panicked during %s: %v", e.Event, e.Value)
}

func (e *PanicError) Unwrap() error { return ErrHandlerPanic }
