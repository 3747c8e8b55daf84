// Package lifecycle defines the plugin state machine: the valid state
// transitions, the lifecycle hooks each transition fires, and a
// per-plugin Machine instance with an append-only transition history.
package lifecycle

// State represents the lifecycle state of a plugin.
type State string

// Plugin states. Destroyed is terminal.
const (
	StateDiscovered  State = "discovered"
	StateLoaded      State = "loaded"
	StateInitialized State = "initialized"
	StateEnabled     State = "enabled"
	StateDisabled    State = "disabled"
	StateDestroyed   State = "destroyed"
	StateError       State = "error"
)

// Lifecycle hook names. Each fires exactly once per matching transition.
const (
	HookLoad    = "on_load"
	HookInit    = "on_init"
	HookEnable  = "on_enable"
	HookDisable = "on_disable"
	HookDestroy = "on_destroy"
)

// States returns every state, in declaration order.
func States() []State {
	return []State{
		StateDiscovered, StateLoaded, StateInitialized,
		StateEnabled, StateDisabled, StateDestroyed, StateError,
	}
}

// IsTerminal reports whether no transitions leave the state.
func (s State) IsTerminal() bool {
	return s == StateDestroyed
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

type edge struct {
	from State
	to   State
}

// transitions is the full transition table. Any edge not listed here is
// invalid, including every edge out of destroyed.
var transitions = map[State][]State{
	StateDiscovered:  {StateLoaded, StateError},
	StateLoaded:      {StateInitialized, StateError},
	StateInitialized: {StateEnabled, StateError},
	StateEnabled:     {StateDisabled, StateError},
	StateDisabled:    {StateEnabled, StateDestroyed, StateError},
	StateError:       {StateDestroyed},
	StateDestroyed:   {},
}

// transitionHooks maps each edge to the lifecycle hooks it fires, in
// order, before the new state is committed.
var transitionHooks = map[edge][]string{
	{StateLoaded, StateInitialized}:  {HookLoad, HookInit},
	{StateInitialized, StateEnabled}: {HookEnable},
	{StateDisabled, StateEnabled}:    {HookEnable},
	{StateEnabled, StateDisabled}:    {HookDisable},
	{StateDisabled, StateDestroyed}:  {HookDestroy},
	{StateError, StateDestroyed}:     {HookDestroy},
}

// IsValidTransition reports whether from -> to is a listed edge.
func IsValidTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionHooks returns the lifecycle hooks fired by the edge, in
// invocation order. Edges with no hooks return nil.
func TransitionHooks(from, to State) []string {
	hooks := transitionHooks[edge{from, to}]
	if hooks == nil {
		return nil
	}
	out := make([]string, len(hooks))
	copy(out, hooks)
	return out
}

// TransitionPath returns the shortest sequence of states from `from` to
// `to` (excluding `from` itself), found by breadth-first search over the
// transition graph. The error state is never used as an intermediate
// step; it can only start or end a path. TransitionPath returns an
// empty slice when from == to and nil when `to` is unreachable.
func TransitionPath(from, to State) []State {
	if from == to {
		return []State{}
	}

	type node struct {
		state State
		path  []State
	}

	visited := map[State]bool{from: true}
	queue := []node{{state: from, path: []State{}}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, next := range transitions[cur.state] {
			if visited[next] {
				continue
			}
			if next == StateError && next != to {
				continue
			}
			path := append(append([]State{}, cur.path...), next)
			if next == to {
				return path
			}
			visited[next] = true
			queue = append(queue, node{state: next, path: path})
		}
	}
	return nil
}
