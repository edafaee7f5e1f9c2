// Package catalog holds the built-in feature modules of the business
// application and helpers to register them.
package catalog

import (
	_ "embed"
	"fmt"

	"github.com/zero-day-ai/modulekit/descriptor"
)

//go:embed default.yaml
var defaultCatalog []byte

// Registrar accepts descriptors. *registry.Registry implements it.
type Registrar interface {
	Register(d descriptor.Descriptor) error
}

// Default returns the built-in modules: assets, depreciation (requires
// assets), subscriptions, payments (requires subscriptions), crm and hr.
func Default() []descriptor.Descriptor {
	mods, err := descriptor.Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("catalog: built-in catalog is invalid: %v", err))
	}
	return mods
}

// Load reads a catalog file. See descriptor.Load for the format.
func Load(path string) ([]descriptor.Descriptor, error) {
	return descriptor.Load(path)
}

// Merge returns base with every descriptor of overrides applied by id: a
// matching id is replaced in place, a new id is appended.
func Merge(base, overrides []descriptor.Descriptor) []descriptor.Descriptor {
	out := make([]descriptor.Descriptor, 0, len(base)+len(overrides))
	index := make(map[string]int, len(base))
	for _, d := range base {
		index[d.ID] = len(out)
		out = append(out, d.Clone())
	}
	for _, d := range overrides {
		if i, ok := index[d.ID]; ok {
			out[i] = d.Clone()
			continue
		}
		index[d.ID] = len(out)
		out = append(out, d.Clone())
	}
	return out
}

// RegisterAll registers ds in order and stops at the first error.
func RegisterAll(r Registrar, ds []descriptor.Descriptor) error {
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			return fmt.Errorf("register module %s: %w", d.ID, err)
		}
	}
	return nil
}
