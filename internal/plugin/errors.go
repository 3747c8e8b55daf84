package plugin

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for registry operations.
var (
	// ErrNotFound is returned when a plugin name is not registered.
	ErrNotFound = errors.New("plugin not found")

	// ErrDuplicate is returned when a plugin name is already registered.
	ErrDuplicate = errors.New("plugin already registered")

	// ErrHookFailure is the sentinel wrapped by HookFailureError.
	ErrHookFailure = errors.New("lifecycle hook failed")

	// ErrHasDependents is the sentinel wrapped by DependentsError.
	ErrHasDependents = errors.New("plugin has enabled dependents")

	// ErrRegistryClosed is returned after DestroyAll has torn the
	// registry down.
	ErrRegistryClosed = errors.New("plugin registry closed")
)

// HookFailureError reports a lifecycle hook that returned an error or
// timed out. The plugin is moved to the error state when this is
// returned.
type HookFailureError struct {
	Plugin string
	Hook   string
	Err    error
}

func (e *HookFailureError) Error() string {
	return fmt.Sprintf("plugin %s: hook %s failed: %v", e.Plugin, e.Hook, e.Err)
}

func (e *HookFailureError) Unwrap() error { return ErrHookFailure }

// Cause returns the underlying hook error.
func (e *HookFailureError) Cause() error { return e.Err }

// DependentsError reports an operation blocked because other enabled
// plugins still depend on the target.
type DependentsError struct {
	Plugin     string
	Dependents []string
}

func (e *DependentsError) Error() string {
	return fmt.Sprintf("plugin %s: still required by %s", e.Plugin, strings.Join(e.Dependents, ", "))
}

func (e *DependentsError) Unwrap() error { return ErrHasDependents }
