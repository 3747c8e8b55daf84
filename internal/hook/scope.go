package hook

import "sync/atomic"

// Scope groups registrations under one owner so they can be torn down
// together. A plugin gets one Scope for its lifetime; destroying the
// plugin closes the scope.
type Scope struct {
	manager *Manager
	owner   string
	closed  atomic.Bool
}

// NewScope returns a scope that registers on behalf of owner.
func (m *Manager) NewScope(owner string) *Scope {
	return &Scope{manager: m, owner: owner}
}

// Owner returns the name the scope registers under.
func (s *Scope) Owner() string { return s.owner }

// Register adds a handler tagged with the scope's owner. Options may
// adjust priority; an explicit WithOwner is overridden.
func (s *Scope) Register(event string, fn Handler, opts ...Option) (ID, error) {
	if s.closed.Load() {
		return "", ErrScopeClosed
	}
	opts = append(opts, WithOwner(s.owner))
	return s.manager.Register(event, fn, opts...), nil
}

// Unregister removes a single registration through the scope.
func (s *Scope) Unregister(id ID) bool {
	return s.manager.Unregister(id)
}

// Closed reports whether the scope has been closed.
func (s *Scope) Closed() bool {
	return s.closed.Load()
}

// Close removes every registration made under the scope's owner and
// rejects further registrations. Closing twice is a no-op; the removal
// count is only reported the first time.
func (s *Scope) Close() int {
	if !s.closed.CompareAndSwap(false, true) {
		return 0
	}
	return s.manager.ClearOwner(s.owner)
}
