package lua

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for sandbox failures.
var (
	// ErrEnvClosed is returned by every operation after Close.
	ErrEnvClosed = errors.New("lua environment is closed")

	// ErrBytecode is returned when a chunk starts with the Lua bytecode
	// signature. Only textual source is accepted.
	ErrBytecode = errors.New("precompiled lua bytecode is not accepted")

	// ErrTimeout is the sentinel wrapped by TimeoutError.
	ErrTimeout = errors.New("lua execution exceeded its budget")

	// ErrEscape is the sentinel wrapped by EscapeError.
	ErrEscape = errors.New("lua sandbox escape attempt")
)

// TimeoutError reports a call that ran past its execution budget. The
// interpreter is stopped at its next instruction checkpoint, so actual
// runtime can slightly exceed the budget.
type TimeoutError struct {
	Plugin string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("plugin %s: execution exceeded budget of %s", e.Plugin, e.Budget)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// EscapeError reports script access to a symbol outside the sandboxed
// environment: reading an undefined global or creating a new one.
type EscapeError struct {
	Plugin string
	Symbol string
	Write  bool
}

func (e *EscapeError) Error() string {
	verb := "read of undefined global"
	if e.Write {
		verb = "write to new global"
	}
	return fmt.Sprintf("plugin %s: %s %q", e.Plugin, verb, e.Symbol)
}

func (e *EscapeError) Unwrap() error { return ErrEscape }
