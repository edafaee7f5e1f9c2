package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/modulekit"
	"github.com/zero-day-ai/modulekit/activation"
	"github.com/zero-day-ai/modulekit/descriptor"
	"github.com/zero-day-ai/modulekit/registry"
	"github.com/zero-day-ai/modulekit/surface"
)

func TestDefault(t *testing.T) {
	mods := Default()

	var ids []string
	for _, m := range mods {
		ids = append(ids, m.ID)
		assert.NoError(t, m.Validate())
	}
	assert.Equal(t, []string{"assets", "depreciation", "subscriptions", "payments", "crm", "hr"}, ids)
	assert.Equal(t, []string{"assets"}, mods[1].Dependencies)
	assert.Equal(t, []string{"subscriptions"}, mods[3].Dependencies)

	mods[0].Name = "mutated"
	assert.Equal(t, "Assets", Default()[0].Name, "each call parses a fresh copy")
}

func TestDefaultCatalogEndToEnd(t *testing.T) {
	ctx := context.Background()
	reg, err := registry.New(registry.WithStore(activation.NewMemoryStore(nil)))
	require.NoError(t, err)
	require.NoError(t, RegisterAll(reg, Default()))
	require.NoError(t, reg.Open(ctx))

	composer, err := surface.New(reg)
	require.NoError(t, err)
	defer composer.Close()

	assert.True(t, reg.IsEnabled("assets"))
	assert.True(t, reg.IsEnabled("crm"))
	assert.False(t, reg.IsEnabled("payments"))

	res := reg.Enable(ctx, "payments")
	assert.False(t, res.OK)
	assert.Equal(t, "module payments requires subscriptions to be enabled first", res.Message())

	res = reg.EnableWithDependencies(ctx, "payments")
	require.True(t, res.OK)
	assert.Equal(t, []string{"subscriptions", "payments"}, res.Changed)

	var navIDs []string
	for _, n := range composer.Nav() {
		navIDs = append(navIDs, n.ID)
	}
	assert.Contains(t, navIDs, "crm-subscribers")

	link, ok := composer.SettingsLink("payments")
	assert.True(t, ok)
	assert.Equal(t, "/settings/payments", link)
}

func TestMerge(t *testing.T) {
	base := Default()
	override := base[5].Clone()
	override.DefaultEnabled = true
	extra := descriptor.Descriptor{ID: "inventory", Name: "Inventory", Version: "0.1.0", Dependencies: []string{"assets"}}

	merged := Merge(base, []descriptor.Descriptor{override, extra})
	require.Len(t, merged, 7)
	assert.Equal(t, "hr", merged[5].ID)
	assert.True(t, merged[5].DefaultEnabled)
	assert.False(t, base[5].DefaultEnabled)
	assert.Equal(t, "inventory", merged[6].ID)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
modules:
  - id: inventory
    name: Inventory
    version: 0.1.0
`), 0o644))

	mods, err := Load(path)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, "inventory", mods[0].ID)
}

func TestRegisterAllStopsAtFirstError(t *testing.T) {
	reg, err := registry.New()
	require.NoError(t, err)

	mods := Default()
	mods = append(mods, mods[0])

	err = RegisterAll(reg, mods)
	require.Error(t, err)
	assert.ErrorIs(t, err, modulekit.ErrDuplicateModule)
	assert.Contains(t, err.Error(), "register module assets")
	assert.Len(t, reg.All(), 6)
}
