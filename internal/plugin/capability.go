package plugin

import (
	"errors"
	"fmt"
	"sort"
)

// Capability is a permission a plugin must declare before the matching
// host API will serve it.
type Capability string

// The closed capability set. Declarations naming anything else are
// rejected at validation time.
const (
	CapStateRead        Capability = "state:read"
	CapStateWrite       Capability = "state:write"
	CapStateWatch       Capability = "state:watch"
	CapPersistenceRead  Capability = "persistence:read"
	CapPersistenceWrite Capability = "persistence:write"
	CapUIInject         Capability = "ui:inject"
	CapUIStyle          Capability = "ui:style"
	CapUITheme          Capability = "ui:theme"
	CapSystemHTTP       Capability = "system:http"
	CapSystemFile       Capability = "system:file"
)

var knownCapabilities = map[Capability]bool{
	CapStateRead:        true,
	CapStateWrite:       true,
	CapStateWatch:       true,
	CapPersistenceRead:  true,
	CapPersistenceWrite: true,
	CapUIInject:         true,
	CapUIStyle:          true,
	CapUITheme:          true,
	CapSystemHTTP:       true,
	CapSystemFile:       true,
}

// Valid reports whether c is in the capability set.
func (c Capability) Valid() bool {
	return knownCapabilities[c]
}

// Capabilities returns the full capability set, sorted.
func Capabilities() []Capability {
	out := make([]Capability, 0, len(knownCapabilities))
	for c := range knownCapabilities {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ErrCapability is the sentinel wrapped by CapabilityError.
var ErrCapability = errors.New("capability not granted")

// CapabilityError is returned when a plugin invokes a host API without
// having declared the capability that gates it.
type CapabilityError struct {
	Plugin     string
	Capability Capability
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("plugin %s: capability %s not granted", e.Plugin, e.Capability)
}

func (e *CapabilityError) Unwrap() error { return ErrCapability }

// capabilitySet is the granted set attached to a plugin context.
type capabilitySet map[Capability]bool

func newCapabilitySet(caps []Capability) capabilitySet {
	set := make(capabilitySet, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return set
}

func (s capabilitySet) has(c Capability) bool { return s[c] }

func (s capabilitySet) list() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
