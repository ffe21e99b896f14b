package northward

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Migrator resolves and applies migration scripts against a storage
// engine. It is not safe for concurrent use against the same storage
// table; run one migrator process at a time.
type Migrator struct {
	// Directory is the migration root. Discovery rebinds it once to the
	// "migrations" subfolder when that layout is detected.
	Directory           string
	Storage             StorageEngine
	Loader              ScriptLoader
	Logger              *zap.Logger
	DryRun              bool
	MigrateDependencies bool
}

// MigrationStatus is one line of a status report.
type MigrationStatus struct {
	Filename string
	Applied  bool
}

// NewMigrator returns a new Migrator with dependency auto-migration
// enabled, a no-op logger, and the package-level script registry.
//
// Parameters:
//   - directory: The migration root directory.
//   - storage: The storage engine recording applied migrations.
//
// Returns:
//   - *Migrator: A new Migrator instance.
func NewMigrator(directory string, storage StorageEngine) *Migrator {
	return &Migrator{
		Directory:           directory,
		Storage:             storage,
		Loader:              NewRegistryLoader(nil),
		Logger:              zap.NewNop(),
		MigrateDependencies: true,
	}
}

// WithLoader returns a new Migrator with the given script loader.
//
// Parameters:
//   - loader: The ScriptLoader to use.
//
// Returns:
//   - *Migrator: A new Migrator instance.
func (m *Migrator) WithLoader(loader ScriptLoader) *Migrator {
	new := *m
	new.Loader = loader
	return &new
}

// WithLogger returns a new Migrator with the given logger.
//
// Parameters:
//   - logger: The logger to use.
//
// Returns:
//   - *Migrator: A new Migrator instance.
func (m *Migrator) WithLogger(logger *zap.Logger) *Migrator {
	new := *m
	new.Logger = logger
	return &new
}

// WithDryRun returns a new Migrator with the dry-run flag set. A dry run
// performs discovery and dependency resolution but executes no script
// body and issues no storage mutation.
//
// Parameters:
//   - dryRun: Whether to dry-run.
//
// Returns:
//   - *Migrator: A new Migrator instance.
func (m *Migrator) WithDryRun(dryRun bool) *Migrator {
	new := *m
	new.DryRun = dryRun
	return &new
}

// WithMigrateDependencies returns a new Migrator with the dependency
// auto-migration flag set. When false, a script with an unapplied
// dependency is skipped with an error log instead of recursing.
//
// Parameters:
//   - migrateDependencies: Whether to auto-migrate dependencies.
//
// Returns:
//   - *Migrator: A new Migrator instance.
func (m *Migrator) WithMigrateDependencies(migrateDependencies bool) *Migrator {
	new := *m
	new.MigrateDependencies = migrateDependencies
	return &new
}

// Up runs the script's up action if its dependencies are satisfied,
// recursing into unapplied dependencies first when dependency
// auto-migration is enabled.
//
// A script whose dependency is unapplied while auto-migration is disabled
// is skipped cleanly: the block is logged and Up returns nil so sibling
// scripts keep processing.
//
// Parameters:
//   - ctx: Context to use for storage operations.
//   - script: The script to apply.
//
// Returns:
//   - error: An error if resolution, the up action, or storage fails.
func (m *Migrator) Up(ctx context.Context, script *Script) error {
	return m.up(ctx, script, map[string]bool{})
}

// up is Up with the set of identifiers on the current resolution stack,
// used to fail fast on dependency cycles.
func (m *Migrator) up(ctx context.Context, script *Script, resolving map[string]bool) error {
	applied, err := m.Storage.HasRun(ctx, script.DependencyPath)
	if err != nil {
		return fmt.Errorf("checking %s: %w", script.DependencyPath, err)
	}
	if applied {
		m.Logger.Debug("Migration has already been run", zap.String("migration", script.Filename))
		return nil
	}

	resolving[script.DependencyPath] = true
	defer delete(resolving, script.DependencyPath)

	for _, dependency := range script.Dependencies {
		dependencyPath := resolveDependencyPath(m.Directory, dependency)
		dependencyScript, err := m.Loader.Load(m.Directory, dependencyPath)
		if err != nil {
			return err
		}

		dependencyApplied, err := m.Storage.HasRun(ctx, dependencyScript.DependencyPath)
		if err != nil {
			return fmt.Errorf("checking %s: %w", dependencyScript.DependencyPath, err)
		}
		if dependencyApplied {
			continue
		}

		if !m.MigrateDependencies {
			m.Logger.Error("Migration blocked by unapplied dependency",
				zap.String("migration", script.Filename),
				zap.String("dependency", dependencyScript.DependencyPath))
			return nil
		}
		if resolving[dependencyScript.DependencyPath] {
			return fmt.Errorf("%w: %s depends on %s",
				ErrDependencyCycle, script.Filename, dependencyScript.DependencyPath)
		}
		if err := m.up(ctx, dependencyScript, resolving); err != nil {
			return err
		}
	}

	if m.DryRun {
		m.Logger.Debug("Would run migration", zap.String("migration", script.Filename))
		return nil
	}

	m.Logger.Info("Running up()", zap.String("migration", script.Filename))
	if script.Up == nil {
		return fmt.Errorf("migration %s: no up action defined", script.Filename)
	}
	if err := script.Up(ctx); err != nil {
		return err
	}
	return m.Storage.Store(ctx, script.DependencyPath)
}

// Down runs the script's down action and removes it from the storage
// engine. A script not recorded as applied is a no-op.
//
// Reversal does not cascade: scripts depending on this one are left
// untouched. Callers order reversals via Rollback.
//
// Parameters:
//   - ctx: Context to use for storage operations.
//   - script: The script to reverse.
//
// Returns:
//   - error: An error if the down action or storage fails.
func (m *Migrator) Down(ctx context.Context, script *Script) error {
	applied, err := m.Storage.HasRun(ctx, script.DependencyPath)
	if err != nil {
		return fmt.Errorf("checking %s: %w", script.DependencyPath, err)
	}
	if !applied {
		m.Logger.Debug("Migration has not been run", zap.String("migration", script.Filename))
		return nil
	}

	if m.DryRun {
		m.Logger.Debug("Would rollback migration", zap.String("migration", script.Filename))
		return nil
	}

	m.Logger.Info("Running down()", zap.String("migration", script.Filename))
	if script.Down == nil {
		return fmt.Errorf("migration %s: no down action defined", script.Filename)
	}
	if err := script.Down(ctx); err != nil {
		return err
	}
	return m.Storage.Delete(ctx, script.DependencyPath)
}

// Migrate discovers every migration file under the root and applies them
// in ascending path order. Timestamp prefixes are fixed-width, so the
// lexicographic sort is chronological.
//
// Parameters:
//   - ctx: Context to use for storage operations.
//
// Returns:
//   - error: An error if discovery, loading, or application fails.
func (m *Migrator) Migrate(ctx context.Context) error {
	files, err := m.discover()
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, path := range files {
		m.Logger.Debug("Migrating", zap.String("path", path))
		script, err := m.Loader.Load(m.Directory, path)
		if err != nil {
			return err
		}
		if err := m.Up(ctx, script); err != nil {
			return err
		}
	}
	return nil
}

// MigrateScript applies the single migration file at path, bypassing
// discovery. The migration root becomes the file's directory.
//
// Parameters:
//   - ctx: Context to use for storage operations.
//   - path: The script file path.
//
// Returns:
//   - error: An error if loading or application fails.
func (m *Migrator) MigrateScript(ctx context.Context, path string) error {
	m.Directory = filepath.Dir(path)
	script, err := m.Loader.Load(m.Directory, path)
	if err != nil {
		return err
	}
	return m.Up(ctx, script)
}

// Rollback reverses the last n applied migrations, most recently applied
// first. It stops after n reversals even if the storage engine returns
// more identifiers than requested.
//
// Parameters:
//   - ctx: Context to use for storage operations.
//   - n: The number of migrations to reverse. Must be at least 1.
//
// Returns:
//   - error: An error if discovery, loading, or reversal fails.
func (m *Migrator) Rollback(ctx context.Context, n int) error {
	if n < 1 {
		return fmt.Errorf("invalid number of migrations to rollback: %d", n)
	}

	files, err := m.discover()
	if err != nil {
		return err
	}
	byName := make(map[string]string, len(files))
	for _, path := range files {
		byName[strings.TrimSuffix(filepath.Base(path), ScriptExt)] = path
	}

	applied, err := m.Storage.GetLastN(ctx, n)
	if err != nil {
		return fmt.Errorf("fetching last %d applied migrations: %w", n, err)
	}

	count := 0
	for _, id := range applied {
		name := filepath.Base(id)
		path, ok := byName[name]
		if !ok {
			return fmt.Errorf("%w: applied migration %s has no file under %s",
				ErrScriptNotFound, name, m.Directory)
		}
		script, err := m.Loader.Load(m.Directory, path)
		if err != nil {
			return err
		}
		if err := m.Down(ctx, script); err != nil {
			return err
		}

		count++
		if count == n {
			break
		}
	}
	return nil
}

// Status reports every discovered migration in ascending path order along
// with whether it is recorded as applied. Status never mutates storage.
//
// Parameters:
//   - ctx: Context to use for storage operations.
//
// Returns:
//   - []MigrationStatus: One entry per discovered migration.
//   - error: An error if discovery, loading, or the storage check fails.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	files, err := m.discover()
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	statuses := make([]MigrationStatus, 0, len(files))
	for _, path := range files {
		script, err := m.Loader.Load(m.Directory, path)
		if err != nil {
			return nil, err
		}
		applied, err := m.Storage.HasRun(ctx, script.DependencyPath)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", script.DependencyPath, err)
		}
		statuses = append(statuses, MigrationStatus{
			Filename: script.Filename,
			Applied:  applied,
		})
	}
	return statuses, nil
}

// discover runs discovery from the configured root and rebinds Directory
// to the effective root for the remainder of the run.
func (m *Migrator) discover() ([]string, error) {
	effectiveRoot, files, err := discoverMigrationFiles(m.Directory)
	if err != nil {
		return nil, err
	}
	m.Directory = effectiveRoot
	return files, nil
}
