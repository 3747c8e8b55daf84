// Package resolve orders plugins by their declared dependencies.
//
// Resolution is deterministic: given the same candidate set, the load
// order is identical across runs. Failures never silently drop nodes; a
// missing dependency, an unsatisfied version constraint, or a cycle
// aborts resolution with a typed error naming the offenders.
package resolve

import (
	"sort"

	"github.com/Masterminds/semver/v3"
)

// Candidate is one node in the dependency graph.
type Candidate struct {
	Name    string
	Version *semver.Version

	// Dependencies maps dependency name to a version constraint.
	Dependencies map[string]string
}

// Set is the candidate set resolution runs against. The graph is derived
// from it fresh on every call; nothing is cached between resolutions.
type Set map[string]Candidate

// Resolve returns the load order for the set: every dependency precedes
// its dependents, ties broken by lexicographic name order.
func Resolve(set Set) ([]string, error) {
	if err := checkEdges(set); err != nil {
		return nil, err
	}
	if err := checkCycles(set); err != nil {
		return nil, err
	}
	return kahnOrder(set), nil
}

// checkEdges verifies every declared dependency exists and satisfies its
// constraint.
func checkEdges(set Set) error {
	for _, name := range sortedNames(set) {
		c := set[name]
		for _, dep := range sortedDeps(c.Dependencies) {
			target, ok := set[dep]
			if !ok {
				return &MissingDependencyError{Plugin: name, Dependency: dep}
			}
			constraint := c.Dependencies[dep]
			ok, err := Satisfies(target.Version, constraint)
			if err != nil {
				return err
			}
			if !ok {
				return &VersionMismatchError{
					Plugin:     name,
					Dependency: dep,
					Constraint: constraint,
					Actual:     target.Version.String(),
				}
			}
		}
	}
	return nil
}

// DFS colors for cycle detection.
const (
	white = iota // unvisited
	gray         // on the current path
	black        // fully explored
)

// checkCycles runs three-color DFS and reports the exact cycle path.
func checkCycles(set Set) error {
	color := make(map[string]int, len(set))
	var stack []string

	var visit func(name string) *CycleError
	visit = func(name string) *CycleError {
		color[name] = gray
		stack = append(stack, name)

		for _, dep := range sortedDeps(set[name].Dependencies) {
			switch color[dep] {
			case gray:
				// Slice the stack from the first occurrence of dep to
				// close the loop.
				for i, n := range stack {
					if n == dep {
						path := append(append([]string{}, stack[i:]...), dep)
						return &CycleError{Path: path}
					}
				}
			case white:
				if cyc := visit(dep); cyc != nil {
					return cyc
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[name] = black
		return nil
	}

	for _, name := range sortedNames(set) {
		if color[name] == white {
			if cyc := visit(name); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}

// kahnOrder performs Kahn's algorithm over a validated, acyclic set.
//
// In-degree counts dependencies, not dependents. The ready queue is
// re-sorted lexicographically in full after every removal; this is the
// determinism contract for reproducible load order, not an optimization
// target.
func kahnOrder(set Set) []string {
	indegree := make(map[string]int, len(set))
	dependents := make(map[string][]string, len(set))

	for name, c := range set {
		indegree[name] = len(c.Dependencies)
		for dep := range c.Dependencies {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(set))
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	return order
}

// ReverseOrder returns the exact reverse of a previously computed load
// order. Teardown must not re-derive an independent ordering.
func ReverseOrder(order []string) []string {
	out := make([]string, len(order))
	for i, name := range order {
		out[len(order)-1-i] = name
	}
	return out
}

// Dependents returns the names that directly depend on name, sorted.
func Dependents(set Set, name string) []string {
	var out []string
	for _, n := range sortedNames(set) {
		if _, ok := set[n].Dependencies[name]; ok {
			out = append(out, n)
		}
	}
	return out
}

// TransitiveDependencies returns the full dependency closure of name,
// sorted. A visited set makes the walk safe on cyclic input.
func TransitiveDependencies(set Set, name string) []string {
	visited := make(map[string]bool)

	var walk func(n string)
	walk = func(n string) {
		for dep := range set[n].Dependencies {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			if _, ok := set[dep]; ok {
				walk(dep)
			}
		}
	}
	walk(name)

	out := make([]string, 0, len(visited))
	for dep := range visited {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

func sortedNames(set Set) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedDeps(deps map[string]string) []string {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
