package resolve

import (
	"errors"
	"fmt"
	"strings"
)

// Resolution errors.
var (
	// ErrMissingDependency is returned when a required plugin is absent
	// from the candidate set.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrVersionMismatch is returned when a dependency is present but its
	// version does not satisfy the declared constraint.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrCycle is returned when the dependency graph contains a cycle.
	ErrCycle = errors.New("dependency cycle")

	// ErrInvalidVersion is returned when a version string is not strict
	// MAJOR.MINOR.PATCH semver.
	ErrInvalidVersion = errors.New("invalid version")

	// ErrInvalidConstraint is returned when a constraint string cannot be
	// parsed.
	ErrInvalidConstraint = errors.New("invalid constraint")
)

// MissingDependencyError names both sides of an unsatisfiable edge.
type MissingDependencyError struct {
	Plugin     string
	Dependency string
}

// Error implements the error interface.
func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("plugin %q depends on %q which is not registered", e.Plugin, e.Dependency)
}

// Unwrap allows errors.Is(err, ErrMissingDependency).
func (e *MissingDependencyError) Unwrap() error {
	return ErrMissingDependency
}

// VersionMismatchError carries the constraint and the version that failed it.
type VersionMismatchError struct {
	Plugin     string
	Dependency string
	Constraint string
	Actual     string
}

// Error implements the error interface.
func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("plugin %q requires %q %s, but %s is registered",
		e.Plugin, e.Dependency, e.Constraint, e.Actual)
}

// Unwrap allows errors.Is(err, ErrVersionMismatch).
func (e *VersionMismatchError) Unwrap() error {
	return ErrVersionMismatch
}

// CycleError reports the exact cycle path, first node repeated at the end.
type CycleError struct {
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

// Unwrap allows errors.Is(err, ErrCycle).
func (e *CycleError) Unwrap() error {
	return ErrCycle
}
