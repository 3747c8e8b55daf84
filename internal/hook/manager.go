package hook

import (
	"fmt"
	"sort"
	"sync"
)

// Priority bounds. Lower priorities run first; out-of-range values are
// clamped on registration.
const (
	PriorityMin     = 0
	PriorityMax     = 100
	PriorityDefault = 50
)

// ID identifies a single registration. IDs are unique for the life of a
// Manager and are never reused.
type ID string

// Handler is invoked once per dispatch. For observer events the return
// value is ignored. For transform events a non-nil returned value
// replaces the threaded value; returning nil or an error leaves it
// unchanged.
type Handler func(event string, value any) (any, error)

// Result records the outcome of one handler invocation.
type Result struct {
	Handler ID
	Owner   string
	Err     error
}

// Failed reports whether the handler returned an error or panicked.
func (r Result) Failed() bool { return r.Err != nil }

type registration struct {
	id       ID
	owner    string
	priority int
	seq      uint64
	fn       Handler
}

// Option configures a registration.
type Option func(*registration)

// WithPriority sets the handler's priority, clamped to [0, 100].
func WithPriority(p int) Option {
	return func(r *registration) {
		if p < PriorityMin {
			p = PriorityMin
		}
		if p > PriorityMax {
			p = PriorityMax
		}
		r.priority = p
	}
}

// WithOwner tags the registration with an owner name so it can be
// removed in bulk by ClearOwner.
func WithOwner(owner string) Option {
	return func(r *registration) { r.owner = owner }
}

// EventStats summarizes one event's registrations and activity.
type EventStats struct {
	Handlers int
	Fired    uint64
	Failures uint64
}

// Manager is the hook bus. Handlers for an event run in ascending
// priority order; ties run in registration order. All methods are safe
// for concurrent use, but handlers themselves run while no Manager lock
// is held, so a handler may register or unregister hooks.
type Manager struct {
	mu        sync.RWMutex
	nextID    uint64
	events    map[string][]*registration
	byID      map[ID]string
	paused    map[string]bool
	allPaused bool
	stats     map[string]*EventStats
}

// NewManager returns an empty hook bus.
func NewManager() *Manager {
	return &Manager{
		events: make(map[string][]*registration),
		byID:   make(map[ID]string),
		paused: make(map[string]bool),
		stats:  make(map[string]*EventStats),
	}
}

// Register adds a handler for an event and returns its ID. The default
// priority is 50.
func (m *Manager) Register(event string, fn Handler, opts ...Option) ID {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	reg := &registration{
		id:       ID(fmt.Sprintf("h-%d", m.nextID)),
		priority: PriorityDefault,
		seq:      m.nextID,
		fn:       fn,
	}
	for _, opt := range opts {
		opt(reg)
	}

	handlers := append(m.events[event], reg)
	sort.SliceStable(handlers, func(i, j int) bool {
		if handlers[i].priority != handlers[j].priority {
			return handlers[i].priority < handlers[j].priority
		}
		return handlers[i].seq < handlers[j].seq
	})
	m.events[event] = handlers
	m.byID[reg.id] = event
	return reg.id
}

// Unregister removes a single registration. It reports whether the ID
// was known.
func (m *Manager) Unregister(id ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	event, ok := m.byID[id]
	if !ok {
		return false
	}
	delete(m.byID, id)
	m.events[event] = removeReg(m.events[event], func(r *registration) bool {
		return r.id == id
	})
	return true
}

// ClearEvent removes every handler for an event and returns how many
// were removed.
func (m *Manager) ClearEvent(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	handlers := m.events[event]
	for _, r := range handlers {
		delete(m.byID, r.id)
	}
	delete(m.events, event)
	return len(handlers)
}

// ClearOwner removes every handler registered under an owner, across
// all events, and returns how many were removed.
func (m *Manager) ClearOwner(owner string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for event, handlers := range m.events {
		kept := handlers[:0:0]
		for _, r := range handlers {
			if r.owner == owner {
				delete(m.byID, r.id)
				removed++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(m.events, event)
		} else {
			m.events[event] = kept
		}
	}
	return removed
}

// HandlerCount returns the number of handlers registered for an event.
func (m *Manager) HandlerCount(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events[event])
}

// Pause suspends dispatch for one event. Handlers stay registered;
// Trigger and Transform become no-ops until Resume.
func (m *Manager) Pause(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused[event] = true
}

// Resume lifts a per-event pause.
func (m *Manager) Resume(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.paused, event)
}

// PauseAll suspends dispatch for every event.
func (m *Manager) PauseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allPaused = true
}

// ResumeAll lifts a global pause. Per-event pauses stay in effect.
func (m *Manager) ResumeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allPaused = false
}

// Trigger dispatches an observer event. Every handler runs even when an
// earlier one fails; failures are reported per handler in the results.
// A paused event returns nil.
func (m *Manager) Trigger(event string, value any) []Result {
	handlers, ok := m.snapshot(event)
	if !ok {
		return nil
	}

	results := make([]Result, 0, len(handlers))
	for _, r := range handlers {
		_, err := callHandler(r.fn, event, value)
		results = append(results, Result{Handler: r.id, Owner: r.owner, Err: err})
	}
	m.record(event, results)
	return results
}

// Transform dispatches a transform event, threading the value through
// the handlers in priority order. A handler that fails or returns nil
// leaves the value as it was; the chain continues. A paused event
// returns the input value unchanged with nil results.
func (m *Manager) Transform(event string, value any) (any, []Result) {
	handlers, ok := m.snapshot(event)
	if !ok {
		return value, nil
	}

	results := make([]Result, 0, len(handlers))
	for _, r := range handlers {
		out, err := callHandler(r.fn, event, value)
		if err == nil && out != nil {
			value = out
		}
		results = append(results, Result{Handler: r.id, Owner: r.owner, Err: err})
	}
	m.record(event, results)
	return value, results
}

// Emit dispatches by the event's registered mode: transform events run
// Transform, everything else runs Trigger and returns the input value
// unchanged.
func (m *Manager) Emit(event string, value any) (any, []Result) {
	if ModeOf(event) == ModeTransform {
		return m.Transform(event, value)
	}
	return value, m.Trigger(event, value)
}

// Stats returns a snapshot of per-event statistics for every event that
// has, or has had, handlers or dispatches.
func (m *Manager) Stats() map[string]EventStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]EventStats, len(m.stats))
	for event, s := range m.stats {
		snap := *s
		snap.Handlers = len(m.events[event])
		out[event] = snap
	}
	for event, handlers := range m.events {
		if _, ok := out[event]; !ok {
			out[event] = EventStats{Handlers: len(handlers)}
		}
	}
	return out
}

// snapshot copies the handler slice so dispatch runs without the lock.
// The second return is false when the event is paused or has no
// handlers.
func (m *Manager) snapshot(event string) ([]*registration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.allPaused || m.paused[event] {
		return nil, false
	}
	handlers := m.events[event]
	if len(handlers) == 0 {
		return nil, false
	}
	out := make([]*registration, len(handlers))
	copy(out, handlers)
	return out, true
}

func (m *Manager) record(event string, results []Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stats[event]
	if s == nil {
		s = &EventStats{}
		m.stats[event] = s
	}
	s.Fired++
	for _, r := range results {
		if r.Err != nil {
			s.Failures++
		}
	}
}

// callHandler isolates handler panics so one misbehaving hook cannot
// take down the dispatch loop.
func callHandler(fn Handler, event string, value any) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = &PanicError{Event: event, Value: rec}
		}
	}()
	return fn(event, value)
}

func removeReg(handlers []*registration, match func(*registration) bool) []*registration {
	kept := handlers[:0:0]
	for _, r := range handlers {
		if !match(r) {
			kept = append(kept, r)
		}
	}
	return kept
}
