// Package dependency decides whether a module may be enabled or disabled given
// the registered descriptors and the current activation state.
//
// Everything here is a pure function of its inputs: no locking, no I/O. The
// registry calls into it while holding its own lock.
package dependency

import (
	"github.com/zero-day-ai/modulekit/descriptor"
)

// Graph is the dependency relation over a fixed descriptor set, keeping
// registration order for deterministic walks.
type Graph struct {
	order      []string
	deps       map[string][]string
	dependents map[string][]string
}

// NewGraph indexes descriptors. Dependencies on ids outside the set are kept
// as edges; use Unknown to report them.
func NewGraph(descriptors []descriptor.Descriptor) *Graph {
	g := &Graph{
		order:      make([]string, 0, len(descriptors)),
		deps:       make(map[string][]string, len(descriptors)),
		dependents: make(map[string][]string, len(descriptors)),
	}
	for _, d := range descriptors {
		g.order = append(g.order, d.ID)
		g.deps[d.ID] = append([]string(nil), d.Dependencies...)
	}
	for _, id := range g.order {
		for _, dep := range g.deps[id] {
			g.dependents[dep] = append(g.dependents[dep], id)
		}
	}
	return g
}

// IDs returns the module ids in registration order.
func (g *Graph) IDs() []string {
	return append([]string(nil), g.order...)
}

// Has reports whether id is part of the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.deps[id]
	return ok
}

// Dependencies returns the direct dependencies of id in declared order.
func (g *Graph) Dependencies(id string) []string {
	return append([]string(nil), g.deps[id]...)
}

// Dependents returns the modules that list id as a direct dependency, in
// registration order.
func (g *Graph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// Edge is a dependency from Module on Dependency.
type Edge struct {
	Module     string
	Dependency string
}

// Unknown returns every edge whose dependency is not part of the graph.
func (g *Graph) Unknown() []Edge {
	var out []Edge
	for _, id := range g.order {
		for _, dep := range g.deps[id] {
			if !g.Has(dep) {
				out = append(out, Edge{Module: id, Dependency: dep})
			}
		}
	}
	return out
}

// FindCycle returns one dependency cycle as a path whose first id is repeated
// at the end (e.g. [a b a]), or nil when the graph is acyclic. The walk
// follows registration order so the reported cycle is stable.
func FindCycle(g *Graph) []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.order))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		stack = append(stack, id)
		for _, dep := range g.deps[id] {
			if !g.Has(dep) {
				continue
			}
			switch color[dep] {
			case grey:
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				cycle = append(append([]string(nil), stack[start:]...), dep)
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range g.order {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}
