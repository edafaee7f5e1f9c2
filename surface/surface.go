package surface

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/zero-day-ai/modulekit"
	"github.com/zero-day-ai/modulekit/activation"
	"github.com/zero-day-ai/modulekit/descriptor"
	"github.com/zero-day-ai/modulekit/registry"
)

// Source is the read side of a module registry. *registry.Registry
// implements it.
type Source interface {
	All() []descriptor.Descriptor
	Generation() uint64
	Snapshot() (uint64, []descriptor.Descriptor, activation.State)
	Subscribe(fn registry.Listener) func()
}

// Route is a router entry of an enabled module.
type Route struct {
	Module    string `json:"module"`
	Path      string `json:"path"`
	Component string `json:"component"`
}

// NavItem is a sidebar entry of an enabled module.
type NavItem struct {
	Module string `json:"module"`
	ID     string `json:"id"`
	Label  string `json:"label"`
	Path   string `json:"path"`
	Icon   string `json:"icon,omitempty"`
}

// Widget is a dashboard widget of an enabled module.
type Widget struct {
	Module    string `json:"module"`
	ID        string `json:"id"`
	Title     string `json:"title"`
	Component string `json:"component"`
}

// Snapshot is the full composed surface at one registry generation.
type Snapshot struct {
	Generation uint64    `json:"generation"`
	Routes     []Route   `json:"routes"`
	Nav        []NavItem `json:"nav"`
	Widgets    []Widget  `json:"widgets"`

	// Settings maps enabled module ids to their settings path.
	Settings map[string]string `json:"settings"`
}

// Option configures a Composer.
type Option func(*Composer)

// WithLogger sets the logger used to report condition evaluation failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) {
		c.logger = logger
	}
}

// Composer turns activation state into consumable surfaces.
type Composer struct {
	src    Source
	logger *slog.Logger

	// conditions maps conditionKey results to compiled When programs.
	conditions map[string]cel.Program

	mu     sync.Mutex
	cached *Snapshot

	smu         sync.Mutex
	subscribers []subscriber
	nextID      int
	published   uint64
	unsubscribe func()
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

// New compiles every When condition of the registered descriptors and
// subscribes to registry changes. Call Close to detach from the registry.
func New(src Source, opts ...Option) (*Composer, error) {
	c := &Composer{
		src:        src,
		conditions: make(map[string]cel.Program),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "surface-composer")

	env, err := cel.NewEnv(cel.Variable("enabled", cel.MapType(cel.StringType, cel.BoolType)))
	if err != nil {
		return nil, modulekit.NewInternalError("surface.New", err)
	}
	for _, d := range src.All() {
		for _, n := range d.Nav {
			if err := c.compile(env, conditionKey(d.ID, "nav", n.ID), n.When); err != nil {
				return nil, invalidCondition(d.ID, "nav", n.ID, err)
			}
		}
		for _, w := range d.Widgets {
			if err := c.compile(env, conditionKey(d.ID, "widget", w.ID), w.When); err != nil {
				return nil, invalidCondition(d.ID, "widget", w.ID, err)
			}
		}
	}

	c.unsubscribe = src.Subscribe(c.onChange)
	return c, nil
}

func (c *Composer) compile(env *cel.Env, key, expr string) error {
	if expr == "" {
		return nil
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return iss.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return fmt.Errorf("condition %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return err
	}
	c.conditions[key] = prg
	return nil
}

func invalidCondition(module, kind, id string, err error) error {
	return modulekit.NewValidationError("surface.New",
		fmt.Errorf("%w: module %s %s %s: %w", modulekit.ErrInvalidDescriptor, module, kind, id, err),
	).WithContext(map[string]any{"module": module, kind: id})
}

func conditionKey(module, kind, id string) string {
	return module + "/" + kind + "/" + id
}

// Close stops following registry changes. Subscribers receive nothing after
// Close returns.
func (c *Composer) Close() {
	c.smu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.subscribers = nil
	c.smu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Routes returns the routes of every enabled module, in registration order
// then per-module declaration order.
func (c *Composer) Routes() []Route {
	return append([]Route(nil), c.current().Routes...)
}

// Nav returns the visible navigation entries of every enabled module. Within
// one module entries are sorted by Order, keeping declaration order on ties.
func (c *Composer) Nav() []NavItem {
	return append([]NavItem(nil), c.current().Nav...)
}

// Widgets returns the visible dashboard widgets of every enabled module.
func (c *Composer) Widgets() []Widget {
	return append([]Widget(nil), c.current().Widgets...)
}

// SettingsLink returns the settings path of id when id is registered,
// enabled and declares one.
func (c *Composer) SettingsLink(id string) (string, bool) {
	path, ok := c.current().Settings[id]
	return path, ok
}

// Snapshot returns every surface at once, consistent with one generation.
func (c *Composer) Snapshot() Snapshot {
	return c.current().copy()
}

// Subscribe registers fn to receive a new Snapshot after every committed
// transition, in commit order. The returned function removes fn.
func (c *Composer) Subscribe(fn func(Snapshot)) (cancel func()) {
	c.smu.Lock()
	id := c.nextID
	c.nextID++
	c.subscribers = append(c.subscribers, subscriber{id: id, fn: fn})
	c.smu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.smu.Lock()
			defer c.smu.Unlock()
			for i, s := range c.subscribers {
				if s.id == id {
					c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// onChange runs on the registry's delivery path after each commit.
func (c *Composer) onChange(registry.Change) {
	snap := c.current()

	c.smu.Lock()
	if snap.Generation <= c.published {
		c.smu.Unlock()
		return
	}
	c.published = snap.Generation
	subs := make([]subscriber, len(c.subscribers))
	copy(subs, c.subscribers)
	c.smu.Unlock()

	for _, s := range subs {
		s.fn(snap.copy())
	}
}

// current returns the cached snapshot, recomposing it when the registry
// generation moved.
func (c *Composer) current() *Snapshot {
	gen := c.src.Generation()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != nil && c.cached.Generation == gen {
		return c.cached
	}
	c.cached = c.compose()
	return c.cached
}

func (c *Composer) compose() *Snapshot {
	gen, enabled, state := c.src.Snapshot()
	vars := map[string]any{"enabled": map[string]bool(state)}

	snap := &Snapshot{
		Generation: gen,
		Routes:     []Route{},
		Nav:        []NavItem{},
		Widgets:    []Widget{},
		Settings:   make(map[string]string),
	}
	for _, d := range enabled {
		for _, r := range d.Routes {
			snap.Routes = append(snap.Routes, Route{Module: d.ID, Path: r.Path, Component: r.Component})
		}

		nav := append([]descriptor.NavEntry(nil), d.Nav...)
		sort.SliceStable(nav, func(i, j int) bool { return nav[i].Order < nav[j].Order })
		for _, n := range nav {
			if !c.visible(conditionKey(d.ID, "nav", n.ID), vars) {
				continue
			}
			snap.Nav = append(snap.Nav, NavItem{Module: d.ID, ID: n.ID, Label: n.Label, Path: n.Path, Icon: n.Icon})
		}

		for _, w := range d.Widgets {
			if !c.visible(conditionKey(d.ID, "widget", w.ID), vars) {
				continue
			}
			snap.Widgets = append(snap.Widgets, Widget{Module: d.ID, ID: w.ID, Title: w.Title, Component: w.Component})
		}

		if d.SettingsPath != "" {
			snap.Settings[d.ID] = d.SettingsPath
		}
	}
	return snap
}

func (c *Composer) visible(key string, vars map[string]any) bool {
	prg, ok := c.conditions[key]
	if !ok {
		return true
	}
	out, _, err := prg.Eval(vars)
	if err != nil {
		c.logger.Warn("hiding entry after condition failed", "entry", key, "error", err)
		return false
	}
	shown, ok := out.Value().(bool)
	return ok && shown
}

func (s *Snapshot) copy() Snapshot {
	out := Snapshot{
		Generation: s.Generation,
		Routes:     append([]Route(nil), s.Routes...),
		Nav:        append([]NavItem(nil), s.Nav...),
		Widgets:    append([]Widget(nil), s.Widgets...),
		Settings:   make(map[string]string, len(s.Settings)),
	}
	for k, v := range s.Settings {
		out.Settings[k] = v
	}
	return out
}

// SettingsLink reports the settings path of an enabled module in the
// snapshot.
func (s Snapshot) SettingsLink(id string) (string, bool) {
	path, ok := s.Settings[id]
	return path, ok
}
