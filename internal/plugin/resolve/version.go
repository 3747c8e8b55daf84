package resolve

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ParseVersion parses a strict MAJOR.MINOR.PATCH version string.
func ParseVersion(s string) (*semver.Version, error) {
	v, err := semver.StrictNewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	return v, nil
}

// probeVersion exists only to exercise constraint parsing.
var probeVersion = semver.MustParse("0.0.0")

// ValidateConstraint checks constraint syntax without evaluating it
// against any particular version.
func ValidateConstraint(constraint string) error {
	_, err := Satisfies(probeVersion, constraint)
	return err
}

// Satisfies reports whether version v meets the constraint.
//
// The constraint grammar is deliberately small: "*" (any), "^X.Y.Z"
// (same major, at least X.Y.Z), "~X.Y.Z" (same major and minor, at
// least X.Y.Z), ">=", ">", "<=", "<", and exact match. Each operator is
// evaluated on its own rather than through a general range parser so
// resolution failures can name the operator that rejected the version.
func Satisfies(v *semver.Version, constraint string) (bool, error) {
	c := strings.TrimSpace(constraint)
	if c == "" || c == "*" {
		return true, nil
	}

	switch {
	case strings.HasPrefix(c, "^"):
		base, err := ParseVersion(strings.TrimSpace(c[1:]))
		if err != nil {
			return false, fmt.Errorf("%w: %q", ErrInvalidConstraint, constraint)
		}
		return v.Major() == base.Major() && !v.LessThan(base), nil

	case strings.HasPrefix(c, "~"):
		base, err := ParseVersion(strings.TrimSpace(c[1:]))
		if err != nil {
			return false, fmt.Errorf("%w: %q", ErrInvalidConstraint, constraint)
		}
		return v.Major() == base.Major() && v.Minor() == base.Minor() && !v.LessThan(base), nil

	case strings.HasPrefix(c, ">="):
		base, err := ParseVersion(strings.TrimSpace(c[2:]))
		if err != nil {
			return false, fmt.Errorf("%w: %q", ErrInvalidConstraint, constraint)
		}
		return !v.LessThan(base), nil

	case strings.HasPrefix(c, "<="):
		base, err := ParseVersion(strings.TrimSpace(c[2:]))
		if err != nil {
			return false, fmt.Errorf("%w: %q", ErrInvalidConstraint, constraint)
		}
		return !v.GreaterThan(base), nil

	case strings.HasPrefix(c, ">"):
		base, err := ParseVersion(strings.TrimSpace(c[1:]))
		if err != nil {
			return false, fmt.Errorf("%w: %q", ErrInvalidConstraint, constraint)
		}
		return v.GreaterThan(base), nil

	case strings.HasPrefix(c, "<"):
		base, err := ParseVersion(strings.TrimSpace(c[1:]))
		if err != nil {
			return false, fmt.Errorf("%w: %q", ErrInvalidConstraint, constraint)
		}
		return v.LessThan(base), nil

	default:
		base, err := ParseVersion(c)
		if err != nil {
			return false, fmt.Errorf("%w: %q", ErrInvalidConstraint, constraint)
		}
		return v.Equal(base), nil
	}
}
