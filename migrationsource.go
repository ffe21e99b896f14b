package northward

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// migrationFilePattern matches timestamped migration files, e.g.
// "20240410094004_create_users.go".
var migrationFilePattern = regexp.MustCompile(`^\d{14}_.+\.go$`)

// timestampLen is the length of the leading timestamp prefix
// (YYYYMMDDHHMMSS).
const timestampLen = 14

// isMigrationFile reports whether a basename matches the migration file
// pattern.
func isMigrationFile(name string) bool {
	return migrationFilePattern.MatchString(name)
}

// listMigrationFiles returns the full paths of migration files directly
// inside dir. Subdirectories are not descended into.
func listMigrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migration directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !isMigrationFile(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

// findModulesWithMigrations returns the paths of immediate subdirectories
// of root that contain a migrations folder.
func findModulesWithMigrations(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading root directory %s: %w", root, err)
	}

	var modules []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		modulePath := filepath.Join(root, entry.Name())
		if info, err := os.Stat(filepath.Join(modulePath, "migrations")); err == nil && info.IsDir() {
			modules = append(modules, modulePath)
		}
	}
	return modules, nil
}

// discoverMigrationFiles finds every migration file reachable from root.
//
// Three layouts are tried in order until one yields results: files directly
// in root, files in a "migrations" subfolder of root (in which case the
// returned effective root is that subfolder), and files in per-module
// "migrations" folders one level below root.
//
// Parameters:
//   - root: The configured migration root directory.
//
// Returns:
//   - string: The effective root to resolve dependency references against.
//   - []string: Full paths of the discovered migration files, unsorted.
//   - error: ErrDuplicateName or ErrDuplicateTimestamp on identity
//     collisions, or an I/O error.
func discoverMigrationFiles(root string) (string, []string, error) {
	effectiveRoot := root
	files, err := listMigrationFiles(root)
	if err != nil {
		return "", nil, err
	}

	if len(files) == 0 {
		migrationsDir := filepath.Join(root, "migrations")
		if info, err := os.Stat(migrationsDir); err == nil && info.IsDir() {
			effectiveRoot = migrationsDir
			files, err = listMigrationFiles(migrationsDir)
			if err != nil {
				return "", nil, err
			}
		} else {
			modules, err := findModulesWithMigrations(root)
			if err != nil {
				return "", nil, err
			}
			for _, modulePath := range modules {
				moduleFiles, err := listMigrationFiles(filepath.Join(modulePath, "migrations"))
				if err != nil {
					return "", nil, err
				}
				files = append(files, moduleFiles...)
			}
		}
	}

	// Names and timestamps must be unique across the whole set, module
	// folders included.
	names := make(map[string]bool)
	timestamps := make(map[string]bool)
	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), ScriptExt)
		if names[name] {
			return "", nil, fmt.Errorf("%w: %s", ErrDuplicateName, f)
		}
		names[name] = true

		timestamp := name[:timestampLen]
		if timestamps[timestamp] {
			return "", nil, fmt.Errorf("%w: %s", ErrDuplicateTimestamp, f)
		}
		timestamps[timestamp] = true
	}

	return effectiveRoot, files, nil
}

// resolveDependencyPath translates a dependency reference into a script
// file path under root. References of the form
// "<module>/migrations/<name>" resolve into the module's migrations
// folder; anything else resolves directly under root. No existence check
// happens here; the loader raises if the path is absent.
func resolveDependencyPath(root string, dependency string) string {
	parts := strings.Split(dependency, "/")
	if len(parts) == 3 && parts[1] == "migrations" {
		return filepath.Join(root, parts[0], parts[1], parts[2]+ScriptExt)
	}
	return filepath.Join(root, dependency+ScriptExt)
}
