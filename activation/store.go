package activation

import (
	"context"
	"errors"
	"sync"
)

// ErrStoreClosed is returned by stores used after Close.
var ErrStoreClosed = errors.New("activation: store is closed")

// Store persists activation state on behalf of a registry.
//
// Implementations must be safe for concurrent use. The registry never retries
// a failed call; retry and backoff belong to the implementation.
type Store interface {
	// Load returns the persisted state. A nil state with a nil error means
	// nothing has been persisted yet.
	Load(ctx context.Context) (State, error)

	// Save replaces the persisted state with the complete state given.
	Save(ctx context.Context, state State) error
}

// MemoryStore keeps state in process memory. It is the default store of a
// registry and the one used by tests.
type MemoryStore struct {
	mu     sync.RWMutex
	state  State
	saves  int
	closed bool

	// SaveHook, when set, runs before every Save and can veto it by
	// returning an error. Tests use it to simulate a failing backend.
	SaveHook func(State) error
}

// NewMemoryStore returns a store preloaded with initial (which may be nil).
func NewMemoryStore(initial State) *MemoryStore {
	return &MemoryStore{state: initial.Clone()}
}

// Load returns a copy of the stored state.
func (m *MemoryStore) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	return m.state.Clone(), nil
}

// Save stores a copy of state.
func (m *MemoryStore) Save(ctx context.Context, state State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	if m.SaveHook != nil {
		if err := m.SaveHook(state); err != nil {
			return err
		}
	}
	m.state = state.Clone()
	m.saves++
	return nil
}

// Saves returns how many successful Save calls the store has accepted.
func (m *MemoryStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Close marks the store closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
