package northward

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLoader_LoadPopulatesIdentity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "module1", "migrations", "20240410093757_migration.go")
	mustWrite(t, path, "//")

	reg := NewRegistry()
	reg.Add("20240410093757_migration", Definition{
		Dependencies: []string{"20240410093700_other"},
		Up:           func(ctx context.Context) error { return nil },
		Down:         func(ctx context.Context) error { return nil },
	})

	script, err := NewRegistryLoader(reg).Load(dir, path)
	require.NoError(t, err)
	assert.Equal(t, "module1/migrations/20240410093757_migration", script.Filename)
	assert.Equal(t, "module1/migrations/20240410093757_migration", script.DependencyPath)
	assert.Equal(t, []string{"20240410093700_other"}, script.Dependencies)
	require.NotNil(t, script.Up)
	require.NotNil(t, script.Down)
}

func TestRegistryLoader_LoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := NewRegistryLoader(NewRegistry()).Load(dir, filepath.Join(dir, "20240410093757_migration.go"))
	require.ErrorIs(t, err, ErrScriptNotFound)
}

func TestRegistryLoader_LoadUnregistered(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "20240410093757_migration.go")
	mustWrite(t, path, "//")

	_, err := NewRegistryLoader(NewRegistry()).Load(dir, path)
	require.ErrorIs(t, err, ErrScriptNotRegistered)
}

func TestRegister_DefaultRegistry(t *testing.T) {
	name := "19991231235959_register_smoke"
	Register(name, Definition{
		Up:   func(ctx context.Context) error { return nil },
		Down: func(ctx context.Context) error { return nil },
	})

	def, ok := defaultRegistry.Lookup(name)
	require.True(t, ok)
	assert.NotNil(t, def.Up)
}
