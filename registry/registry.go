package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/modulekit"
	"github.com/zero-day-ai/modulekit/activation"
	"github.com/zero-day-ai/modulekit/dependency"
	"github.com/zero-day-ai/modulekit/descriptor"
)

// Registry holds the registered descriptors and the activation state.
type Registry struct {
	mu          sync.RWMutex
	descriptors []descriptor.Descriptor
	index       map[string]int
	graph       *dependency.Graph
	sealed      bool
	state       activation.State // nil until Open succeeds
	generation  uint64

	store   activation.Store
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *otelMetrics

	// notifyMu serializes listener delivery so changes arrive in commit order.
	notifyMu  sync.Mutex
	lmu       sync.Mutex
	listeners []listenerEntry
	nextID    int
}

// New creates an empty registry.
func New(opts ...Option) (*Registry, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.store == nil {
		cfg.store = activation.NewMemoryStore(nil)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer(instrumentationName)
	}
	if cfg.meter == nil {
		cfg.meter = otel.Meter(instrumentationName)
	}

	metrics, err := newOTelMetrics(cfg.meter)
	if err != nil {
		return nil, modulekit.NewConfigurationError("registry.New", err)
	}

	return &Registry{
		index:   make(map[string]int),
		store:   cfg.store,
		logger:  cfg.logger.With("component", "module-registry"),
		tracer:  cfg.tracer,
		metrics: metrics,
	}, nil
}

// Register adds a descriptor. It fails with *modulekit.DuplicateModuleError
// when the id is taken, with modulekit.ErrInvalidDescriptor when the
// descriptor is malformed, and with modulekit.ErrSealed after Seal.
func (r *Registry) Register(d descriptor.Descriptor) error {
	if err := d.Validate(); err != nil {
		return modulekit.NewValidationError("Registry.Register", err).
			WithContext(map[string]any{"module": d.ID})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("register %s: %w", d.ID, modulekit.ErrSealed)
	}
	if _, exists := r.index[d.ID]; exists {
		return &modulekit.DuplicateModuleError{ID: d.ID}
	}
	r.index[d.ID] = len(r.descriptors)
	r.descriptors = append(r.descriptors, d.Clone())
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(d descriptor.Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Seal closes registration and validates the dependency graph once: every
// dependency must be registered and the graph must be acyclic. Sealing an
// already sealed registry is a no-op. A failed Seal leaves the registry
// unsealed and without activation state.
func (r *Registry) Seal() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealLocked()
}

func (r *Registry) sealLocked() error {
	if r.sealed {
		return nil
	}
	graph := dependency.NewGraph(r.descriptors)
	if unknown := graph.Unknown(); len(unknown) > 0 {
		return &modulekit.UnknownDependencyError{Module: unknown[0].Module, Dependency: unknown[0].Dependency}
	}
	if cycle := dependency.FindCycle(graph); cycle != nil {
		return &modulekit.CyclicDependencyError{Cycle: cycle}
	}
	r.graph = graph
	r.sealed = true
	return nil
}

// Open seals the registry if needed, loads persisted state once and hydrates
// activation state for every registered module. Modules without a persisted
// value start at their DefaultEnabled. Enabled modules whose dependencies are
// not all enabled (stale or hand-edited state) are switched off, the repaired
// state is saved once and the change is logged. If that save fails Open
// returns the error and the registry stays unopened. Opening an open registry
// is a no-op.
func (r *Registry) Open(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "modulekit.open")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != nil {
		return nil
	}
	if err := r.sealLocked(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	persisted, err := r.store.Load(ctx)
	if err != nil {
		err = modulekit.NewStorageError("Registry.Open", fmt.Errorf("%w: %w", modulekit.ErrStoreUnavailable, err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	seeds := make([]activation.Seed, len(r.descriptors))
	for i, d := range r.descriptors {
		seeds[i] = activation.Seed{ID: d.ID, DefaultEnabled: d.DefaultEnabled}
	}
	state := activation.Hydrate(seeds, persisted)

	// Repair once and write it back, so other nodes sharing the store see
	// the same state. A failed write leaves the registry unopened.
	if broken := dependency.Inconsistent(r.graph, state); len(broken) > 0 {
		for _, id := range broken {
			state[id] = false
		}
		if err := r.store.Save(ctx, state.Clone()); err != nil {
			err = modulekit.NewStorageError("Registry.Open", fmt.Errorf("%w: %w", modulekit.ErrStoreUnavailable, err)).
				WithContext(map[string]any{"repaired": broken})
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		r.logger.Warn("disabled modules with unsatisfied dependencies",
			"modules", broken,
		)
		span.SetAttributes(attribute.StringSlice("modulekit.repaired", broken))
	}

	r.state = state
	r.generation = 1
	span.SetAttributes(
		attribute.Int("modulekit.registered", len(r.descriptors)),
		attribute.Bool("modulekit.persisted", persisted != nil),
	)
	r.logger.Info("module registry opened",
		"registered", len(r.descriptors),
		"enabled", state.Enabled(),
		"persisted", persisted != nil,
	)
	return nil
}

// IsOpen reports whether Open has succeeded.
func (r *Registry) IsOpen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state != nil
}

// All returns every registered descriptor in registration order.
func (r *Registry) All() []descriptor.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]descriptor.Descriptor, len(r.descriptors))
	for i, d := range r.descriptors {
		out[i] = d.Clone()
	}
	return out
}

// Enabled returns the enabled descriptors in registration order. It is empty
// before Open.
func (r *Registry) Enabled() []descriptor.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []descriptor.Descriptor
	for _, d := range r.descriptors {
		if r.state[d.ID] {
			out = append(out, d.Clone())
		}
	}
	return out
}

// IsEnabled reports whether id is enabled. Unknown ids report false.
func (r *Registry) IsEnabled(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state[id]
}

// Module returns the descriptor registered under id.
func (r *Registry) Module(id string) (descriptor.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return descriptor.Descriptor{}, false
	}
	return r.descriptors[i].Clone(), true
}

// State returns a copy of the activation state, nil before Open.
func (r *Registry) State() activation.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone()
}

// Generation increases with every committed transition. It is 0 before Open
// and 1 right after.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Snapshot returns the enabled descriptors together with the generation they
// belong to, read under one lock.
func (r *Registry) Snapshot() (uint64, []descriptor.Descriptor, activation.State) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var enabled []descriptor.Descriptor
	for _, d := range r.descriptors {
		if r.state[d.ID] {
			enabled = append(enabled, d.Clone())
		}
	}
	return r.generation, enabled, r.state.Clone()
}

// Enable turns on id when every direct dependency is already enabled.
func (r *Registry) Enable(ctx context.Context, id string) Result {
	return r.apply(ctx, OpEnable, id, func(g *dependency.Graph, s activation.State) ([]string, dependency.Verdict) {
		v := dependency.CheckEnable(g, s, id)
		if !v.Changes() {
			return nil, v
		}
		return []string{id}, v
	})
}

// Disable turns off id when no enabled module depends on it. Dependencies of
// id stay enabled.
func (r *Registry) Disable(ctx context.Context, id string) Result {
	return r.apply(ctx, OpDisable, id, func(g *dependency.Graph, s activation.State) ([]string, dependency.Verdict) {
		v := dependency.CheckDisable(g, s, id)
		if !v.Changes() {
			return nil, v
		}
		return []string{id}, v
	})
}

// EnableWithDependencies enables id together with every disabled module in
// its dependency closure, dependencies first, as one commit: either the whole
// closure is enabled and persisted or nothing changes.
func (r *Registry) EnableWithDependencies(ctx context.Context, id string) Result {
	return r.apply(ctx, OpEnableWithDependencies, id, func(g *dependency.Graph, s activation.State) ([]string, dependency.Verdict) {
		v := dependency.CheckEnable(g, s, id)
		if v.Reason == ReasonUnknownModule || v.Reason == ReasonAlreadyEnabled {
			return nil, v
		}
		order, err := dependency.EnableOrder(g, s, id)
		if err != nil {
			return nil, dependency.Verdict{Reason: ReasonUnknownModule}
		}
		return order, dependency.Verdict{Allowed: true, Reason: ReasonOK}
	})
}

// DisableWithDependents disables id and every enabled module that depends on
// it transitively, dependents first, as one commit.
func (r *Registry) DisableWithDependents(ctx context.Context, id string) Result {
	return r.apply(ctx, OpDisableWithDependents, id, func(g *dependency.Graph, s activation.State) ([]string, dependency.Verdict) {
		v := dependency.CheckDisable(g, s, id)
		if v.Reason == ReasonUnknownModule || v.Reason == ReasonAlreadyDisabled {
			return nil, v
		}
		order, err := dependency.DisableOrder(g, s, id)
		if err != nil {
			return nil, dependency.Verdict{Reason: ReasonUnknownModule}
		}
		return order, dependency.Verdict{Allowed: true, Reason: ReasonOK}
	})
}

// planFunc decides which modules a transition flips. It runs under the write
// lock and must not retain s.
type planFunc func(g *dependency.Graph, s activation.State) ([]string, dependency.Verdict)

// apply validates, persists and commits one transition. The candidate state
// is built on a copy and only swapped in after the store accepted it, so a
// failed write leaves memory exactly as before the call.
func (r *Registry) apply(ctx context.Context, op Op, id string, plan planFunc) Result {
	ctx, span := r.tracer.Start(ctx, "modulekit."+string(op),
		trace.WithAttributes(attribute.String("modulekit.module", id)),
	)
	defer span.End()

	r.mu.Lock()
	if r.state == nil {
		r.mu.Unlock()
		res := Result{Op: op, Module: id, Reason: ReasonNotOpen, Err: modulekit.ErrNotOpen}
		r.record(ctx, span, res, -1)
		return res
	}

	changed, verdict := plan(r.graph, r.state)
	res := Result{
		OK:      verdict.Allowed,
		Op:      op,
		Module:  id,
		Reason:  verdict.Reason,
		Related: verdict.Related,
	}
	if res.Reason == ReasonUnknownModule {
		res.Err = modulekit.NewNotFoundError(op.method(), modulekit.ErrUnknownModule).
			WithContext(map[string]any{"module": id})
	}
	if !verdict.Allowed || len(changed) == 0 {
		enabledCount := len(r.state.Enabled())
		r.mu.Unlock()
		if !res.OK {
			r.logger.Info("module transition refused",
				"op", op,
				"module", id,
				"reason", res.Reason,
				"related", res.Related,
			)
		}
		r.record(ctx, span, res, enabledCount)
		return res
	}

	next := r.state.Clone()
	for _, m := range changed {
		next[m] = op.enables()
	}

	if err := r.store.Save(ctx, next.Clone()); err != nil {
		enabledCount := len(r.state.Enabled())
		r.mu.Unlock()
		res.OK = false
		res.Reason = ReasonPersistFailed
		res.Err = modulekit.NewStorageError("Store.Save", fmt.Errorf("%w: %w", modulekit.ErrStoreUnavailable, err))
		r.logger.Error("failed to persist module transition",
			"op", op,
			"module", id,
			"error", err,
		)
		r.record(ctx, span, res, enabledCount)
		return res
	}

	r.state = next
	r.generation++
	res.Changed = changed
	change := Change{
		ID:         uuid.NewString(),
		Op:         op,
		Module:     id,
		Changed:    append([]string(nil), changed...),
		Enabled:    next.Enabled(),
		Generation: r.generation,
		At:         time.Now().UTC(),
	}

	// Take the delivery lock before releasing the state lock so listeners
	// see changes in commit order.
	r.notifyMu.Lock()
	r.mu.Unlock()

	r.logger.Info("module transition committed",
		"op", op,
		"module", id,
		"changed", changed,
		"generation", change.Generation,
	)
	r.record(ctx, span, res, len(change.Enabled))
	r.deliver(change)
	r.notifyMu.Unlock()
	return res
}
