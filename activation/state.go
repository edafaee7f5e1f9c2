// Package activation holds the enabled/disabled flag of every registered
// module and the boundary to the collaborator that persists it.
//
// The registry is the only writer of activation state. It reads the store
// once when it opens and writes the complete state after every committed
// transition; stores never see deltas.
package activation

import (
	"sort"
)

// State maps a module id to its enabled flag.
type State map[string]bool

// Seed describes one registered module for hydration purposes.
type Seed struct {
	ID             string
	DefaultEnabled bool
}

// Hydrate builds the state for exactly the seeded ids. Persisted values win;
// ids missing from persisted fall back to their default, and persisted ids that
// are no longer registered are dropped.
func Hydrate(seeds []Seed, persisted State) State {
	state := make(State, len(seeds))
	for _, seed := range seeds {
		if enabled, ok := persisted[seed.ID]; ok {
			state[seed.ID] = enabled
			continue
		}
		state[seed.ID] = seed.DefaultEnabled
	}
	return state
}

// Clone returns a copy of the state. A nil state clones to nil.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	clone := make(State, len(s))
	for id, enabled := range s {
		clone[id] = enabled
	}
	return clone
}

// Enabled returns the sorted ids whose flag is set.
func (s State) Enabled() []string {
	ids := make([]string, 0, len(s))
	for id, enabled := range s {
		if enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Equal reports whether both states hold the same ids with the same flags.
func (s State) Equal(other State) bool {
	if len(s) != len(other) {
		return false
	}
	for id, enabled := range s {
		v, ok := other[id]
		if !ok || v != enabled {
			return false
		}
	}
	return true
}
