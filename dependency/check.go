package dependency

import (
	"fmt"

	"github.com/zero-day-ai/modulekit/activation"
)

// Reason explains a Verdict.
type Reason string

const (
	ReasonOK                 Reason = "ok"
	ReasonAlreadyEnabled     Reason = "already_enabled"
	ReasonAlreadyDisabled    Reason = "already_disabled"
	ReasonUnknownModule      Reason = "unknown_module"
	ReasonMissingDependency  Reason = "missing_dependency"
	ReasonBlockedByDependent Reason = "blocked_by_dependent"
)

// Verdict is the outcome of validating one transition.
type Verdict struct {
	Allowed bool
	Reason  Reason
	// Related lists the disabled dependencies (missing_dependency) or the
	// enabled dependents (blocked_by_dependent) behind a refusal.
	Related []string
}

// Changes reports whether applying the verdict would modify state.
// Idempotent successes are allowed but change nothing.
func (v Verdict) Changes() bool {
	return v.Allowed && v.Reason == ReasonOK
}

// CheckEnable validates enabling id. Only direct dependencies are inspected.
func CheckEnable(g *Graph, state activation.State, id string) Verdict {
	if !g.Has(id) {
		return Verdict{Reason: ReasonUnknownModule}
	}
	if state[id] {
		return Verdict{Allowed: true, Reason: ReasonAlreadyEnabled}
	}
	var missing []string
	for _, dep := range g.deps[id] {
		if !state[dep] {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return Verdict{Reason: ReasonMissingDependency, Related: missing}
	}
	return Verdict{Allowed: true, Reason: ReasonOK}
}

// CheckDisable validates disabling id. It is refused while any enabled module
// depends on id directly; dependencies of id are never touched.
func CheckDisable(g *Graph, state activation.State, id string) Verdict {
	if !g.Has(id) {
		return Verdict{Reason: ReasonUnknownModule}
	}
	if !state[id] {
		return Verdict{Allowed: true, Reason: ReasonAlreadyDisabled}
	}
	var blockers []string
	for _, dependent := range g.dependents[id] {
		if state[dependent] {
			blockers = append(blockers, dependent)
		}
	}
	if len(blockers) > 0 {
		return Verdict{Reason: ReasonBlockedByDependent, Related: blockers}
	}
	return Verdict{Allowed: true, Reason: ReasonOK}
}

// EnableOrder returns the disabled part of id's dependency closure, id
// included, ordered so every module comes after all of its dependencies.
// Applying the ids in order with CheckEnable succeeds at every step.
func EnableOrder(g *Graph, state activation.State, id string) ([]string, error) {
	if !g.Has(id) {
		return nil, fmt.Errorf("dependency: unknown module %s", id)
	}
	visited := make(map[string]bool)
	var ordered []string
	var visit func(string) error
	visit = func(cur string) error {
		if visited[cur] {
			return nil
		}
		visited[cur] = true
		for _, dep := range g.deps[cur] {
			if !g.Has(dep) {
				return fmt.Errorf("dependency: %s requires unregistered module %s", cur, dep)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		if !state[cur] {
			ordered = append(ordered, cur)
		}
		return nil
	}
	if err := visit(id); err != nil {
		return nil, err
	}
	return ordered, nil
}

// DisableOrder returns id plus every enabled module that transitively depends
// on it, ordered so each module comes before everything it depends on.
// Applying the ids in order with CheckDisable succeeds at every step.
func DisableOrder(g *Graph, state activation.State, id string) ([]string, error) {
	if !g.Has(id) {
		return nil, fmt.Errorf("dependency: unknown module %s", id)
	}
	visited := make(map[string]bool)
	var post []string
	var visit func(string)
	visit = func(cur string) {
		if visited[cur] {
			return
		}
		visited[cur] = true
		for _, dependent := range g.dependents[cur] {
			if state[dependent] {
				visit(dependent)
			}
		}
		if state[cur] {
			post = append(post, cur)
		}
	}
	visit(id)
	return post, nil
}

// Inconsistent returns enabled modules that have a disabled dependency,
// directly or through another inconsistent module, in registration order.
// Hand-edited or stale persisted state is the usual source.
func Inconsistent(g *Graph, state activation.State) []string {
	broken := make(map[string]bool)
	changed := true
	for changed {
		changed = false
		for _, id := range g.order {
			if !state[id] || broken[id] {
				continue
			}
			for _, dep := range g.deps[id] {
				if !state[dep] || broken[dep] {
					broken[id] = true
					changed = true
					break
				}
			}
		}
	}
	var out []string
	for _, id := range g.order {
		if broken[id] {
			out = append(out, id)
		}
	}
	return out
}
