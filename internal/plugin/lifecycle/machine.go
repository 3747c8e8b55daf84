package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidTransition is returned when a requested edge is not in the
// transition table.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// InvalidTransitionError carries the rejected edge.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid lifecycle transition %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// Transition is one recorded state change.
type Transition struct {
	From   State
	To     State
	At     time.Time
	Reason string
}

// Machine tracks the lifecycle state of a single plugin. The zero value
// is not usable; construct with NewMachine. All methods are safe for
// concurrent use.
type Machine struct {
	mu      sync.RWMutex
	current State
	history []Transition
	errMsg  string
}

// NewMachine returns a machine in the discovered state.
func NewMachine() *Machine {
	return &Machine{current: StateDiscovered}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// In reports whether the machine is currently in state s.
func (m *Machine) In(s State) bool {
	return m.Current() == s
}

// CanTransitionTo reports whether the edge from the current state to
// `to` is valid.
func (m *Machine) CanTransitionTo(to State) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return IsValidTransition(m.current, to)
}

// TransitionTo moves the machine along a single edge and appends the
// change to the history. Invalid edges leave the machine untouched.
func (m *Machine) TransitionTo(to State) error {
	return m.transition(to, "")
}

// Fail forces the machine into the error state, recording why. Fail from
// a state with no error edge (destroyed) is rejected.
func (m *Machine) Fail(reason string) error {
	return m.transition(StateError, reason)
}

func (m *Machine) transition(to State, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !IsValidTransition(m.current, to) {
		return &InvalidTransitionError{From: m.current, To: to}
	}

	m.history = append(m.history, Transition{
		From:   m.current,
		To:     to,
		At:     time.Now(),
		Reason: reason,
	})
	m.current = to
	if to == StateError {
		m.errMsg = reason
	} else {
		m.errMsg = ""
	}
	return nil
}

// ErrorMessage returns the reason recorded by the most recent Fail. It
// is non-empty exactly while the machine sits in the error state.
func (m *Machine) ErrorMessage() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errMsg
}

// History returns a copy of every recorded transition, oldest first.
func (m *Machine) History() []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}
