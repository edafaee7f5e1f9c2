package descriptor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/zero-day-ai/modulekit"
)

var idPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Descriptor is the immutable metadata for one feature module.
type Descriptor struct {
	// ID is the stable identifier used as the join key everywhere
	// (activation state, dependencies, settings links).
	ID string `yaml:"id" json:"id"`

	// Name and Description are display metadata only.
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Version is an informational semantic version (e.g. "1.2.0").
	Version string `yaml:"version" json:"version"`

	// Dependencies lists the ids that must be enabled before this module can be.
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`

	// DefaultEnabled seeds activation state when nothing was persisted for this id.
	DefaultEnabled bool `yaml:"default_enabled,omitempty" json:"default_enabled,omitempty"`

	Routes  []Route    `yaml:"routes,omitempty" json:"routes,omitempty"`
	Nav     []NavEntry `yaml:"nav,omitempty" json:"nav,omitempty"`
	Widgets []Widget   `yaml:"widgets,omitempty" json:"widgets,omitempty"`

	// SettingsPath is the route of the module's own settings screen, if any.
	SettingsPath string `yaml:"settings_path,omitempty" json:"settings_path,omitempty"`
}

// Route is a router entry contributed by an enabled module.
type Route struct {
	Path      string `yaml:"path" json:"path"`
	Component string `yaml:"component" json:"component"`
}

// NavEntry is a sidebar entry contributed by an enabled module.
type NavEntry struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
	Path  string `yaml:"path" json:"path"`
	Icon  string `yaml:"icon,omitempty" json:"icon,omitempty"`
	// Order sorts entries inside one module; lower values come first.
	// Entries with equal Order keep declaration order.
	Order int `yaml:"order,omitempty" json:"order,omitempty"`
	// When is an optional CEL expression over `enabled` (map of module id to
	// bool). The entry is shown only when it evaluates to true.
	When string `yaml:"when,omitempty" json:"when,omitempty"`
}

// Widget is a dashboard widget contributed by an enabled module.
type Widget struct {
	ID        string `yaml:"id" json:"id"`
	Title     string `yaml:"title" json:"title"`
	Component string `yaml:"component" json:"component"`
	// When has the same meaning as NavEntry.When.
	When string `yaml:"when,omitempty" json:"when,omitempty"`
}

// Validate ensures the descriptor is well-formed on its own. Cross-descriptor
// rules (unknown dependencies, cycles) are checked by the registry.
func (d Descriptor) Validate() error {
	if err := d.validate(); err != nil {
		return fmt.Errorf("%w: %w", modulekit.ErrInvalidDescriptor, err)
	}
	return nil
}

func (d Descriptor) validate() error {
	if d.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !idPattern.MatchString(d.ID) {
		return fmt.Errorf("id %q must be lowercase kebab-case", d.ID)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("name is required for %s", d.ID)
	}
	if d.Version == "" {
		return fmt.Errorf("version is required for %s", d.ID)
	}
	if _, err := semver.StrictNewVersion(strings.TrimPrefix(d.Version, "v")); err != nil {
		return fmt.Errorf("version %q of %s is not a semantic version: %w", d.Version, d.ID, err)
	}

	seen := make(map[string]struct{}, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		if dep == "" {
			return fmt.Errorf("%s has an empty dependency", d.ID)
		}
		if dep == d.ID {
			return fmt.Errorf("%s depends on itself", d.ID)
		}
		if _, dup := seen[dep]; dup {
			return fmt.Errorf("%s has duplicate dependency on %s", d.ID, dep)
		}
		seen[dep] = struct{}{}
	}

	for i, r := range d.Routes {
		if !strings.HasPrefix(r.Path, "/") {
			return fmt.Errorf("%s route[%d]: path %q must start with /", d.ID, i, r.Path)
		}
		if r.Component == "" {
			return fmt.Errorf("%s route[%d]: component is required", d.ID, i)
		}
	}

	navIDs := make(map[string]struct{}, len(d.Nav))
	for i, n := range d.Nav {
		if n.ID == "" || n.Label == "" {
			return fmt.Errorf("%s nav[%d]: id and label are required", d.ID, i)
		}
		if !strings.HasPrefix(n.Path, "/") {
			return fmt.Errorf("%s nav %s: path %q must start with /", d.ID, n.ID, n.Path)
		}
		if _, dup := navIDs[n.ID]; dup {
			return fmt.Errorf("%s has duplicate nav entry %s", d.ID, n.ID)
		}
		navIDs[n.ID] = struct{}{}
	}

	widgetIDs := make(map[string]struct{}, len(d.Widgets))
	for i, w := range d.Widgets {
		if w.ID == "" || w.Component == "" {
			return fmt.Errorf("%s widget[%d]: id and component are required", d.ID, i)
		}
		if _, dup := widgetIDs[w.ID]; dup {
			return fmt.Errorf("%s has duplicate widget %s", d.ID, w.ID)
		}
		widgetIDs[w.ID] = struct{}{}
	}

	if d.SettingsPath != "" && !strings.HasPrefix(d.SettingsPath, "/") {
		return fmt.Errorf("%s settings path %q must start with /", d.ID, d.SettingsPath)
	}
	return nil
}

// Clone returns a deep copy of the descriptor.
func (d Descriptor) Clone() Descriptor {
	clone := d
	clone.Dependencies = cloneSlice(d.Dependencies)
	clone.Routes = cloneSlice(d.Routes)
	clone.Nav = cloneSlice(d.Nav)
	clone.Widgets = cloneSlice(d.Widgets)
	return clone
}

// DependsOn reports whether id is a direct dependency of d.
func (d Descriptor) DependsOn(id string) bool {
	for _, dep := range d.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

func cloneSlice[T any](values []T) []T {
	if len(values) == 0 {
		return nil
	}
	clone := make([]T, len(values))
	copy(clone, values)
	return clone
}
