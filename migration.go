package northward

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ScriptExt is the file extension migration scripts carry on disk.
const ScriptExt = ".go"

// ActionFn is a migration action. Actions are opaque, side-effecting and
// idempotent by convention; a returned error aborts the whole run.
type ActionFn func(ctx context.Context) error

// Script is a single loaded migration unit.
type Script struct {
	// Filename is the root-relative identifier, extension stripped.
	Filename string
	// DependencyPath is the root-relative identifier used as the storage
	// key. It matches Filename and is kept separate because dependency
	// references resolve against it.
	DependencyPath string
	// Dependencies holds references to other units in declaration order.
	// A reference is either "<module>/migrations/<name>" or "<name>".
	Dependencies []string
	// Up applies the migration.
	Up ActionFn
	// Down reverses the migration.
	Down ActionFn
}

// Definition is the registered body of a migration script: its dependency
// references and up/down actions. The identity fields of the resulting
// Script are derived from the file path at load time, not from here.
type Definition struct {
	Dependencies []string
	Up           ActionFn
	Down         ActionFn
}

// Registry maps migration names (timestamped basenames without extension)
// to their registered definitions.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry returns a new empty Registry.
//
// Returns:
//   - *Registry: A new Registry instance.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Add registers a definition under the given name. Re-registering a name
// replaces the previous definition.
//
// Parameters:
//   - name: The migration name, e.g. "20240410094004_migration".
//   - def: The definition to register.
func (r *Registry) Add(name string, def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[name] = def
}

// Lookup returns the definition registered under the given name.
//
// Parameters:
//   - name: The migration name to look up.
//
// Returns:
//   - Definition: The registered definition.
//   - bool: Whether the name was registered.
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

var defaultRegistry = NewRegistry()

// Register adds a definition to the package-level registry. Migration
// script files call this from init().
//
// Parameters:
//   - name: The migration name, matching the file's basename sans extension.
//   - def: The definition to register.
func Register(name string, def Definition) {
	defaultRegistry.Add(name, def)
}

// ScriptLoader materializes a Script from a file path. Loading is
// stateless: every call re-materializes the referenced unit.
type ScriptLoader interface {
	// Load returns the Script at path with identity fields populated
	// relative to root. It fails if path does not exist on disk.
	Load(root string, path string) (*Script, error)
}

// RegistryLoader loads scripts by looking their basenames up in a Registry.
// The file on disk is the source of truth for identity and existence; the
// registry supplies dependencies and the up/down actions.
type RegistryLoader struct {
	Registry *Registry
}

// NewRegistryLoader returns a new RegistryLoader.
// If registry is nil, it defaults to the package-level registry.
//
// Parameters:
//   - registry: The registry to resolve definitions against.
//
// Returns:
//   - *RegistryLoader: A new RegistryLoader instance.
func NewRegistryLoader(registry *Registry) *RegistryLoader {
	if registry == nil {
		registry = defaultRegistry
	}
	return &RegistryLoader{Registry: registry}
}

// Load loads the migration script at path.
//
// Parameters:
//   - root: The effective migration root directory.
//   - path: The script file path.
//
// Returns:
//   - *Script: The loaded script with Filename and DependencyPath set.
//   - error: ErrScriptNotFound if path is absent, ErrScriptNotRegistered
//     if no definition exists for the basename.
func (l *RegistryLoader) Load(root string, path string) (*Script, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrScriptNotFound, path)
		}
		return nil, fmt.Errorf("stat migration script %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), ScriptExt)
	def, ok := l.Registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScriptNotRegistered, name)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, fmt.Errorf("relativize %s against %s: %w", path, root, err)
	}
	id := strings.TrimSuffix(filepath.ToSlash(rel), ScriptExt)

	return &Script{
		Filename:       id,
		DependencyPath: id,
		Dependencies:   def.Dependencies,
		Up:             def.Up,
		Down:           def.Down,
	}, nil
}
