package northward

import "errors"

var (
	// ErrScriptNotFound is returned when a migration script path does not
	// exist on disk during loading or dependency resolution.
	ErrScriptNotFound = errors.New("migration script not found")

	// ErrScriptNotRegistered is returned when a migration file exists on
	// disk but no definition was registered for its name.
	ErrScriptNotRegistered = errors.New("migration script not registered")

	// ErrDuplicateName is returned by discovery when two migration files
	// share a basename, extension ignored.
	ErrDuplicateName = errors.New("duplicate migration file name used")

	// ErrDuplicateTimestamp is returned by discovery when two migration
	// files share the leading 14-digit timestamp.
	ErrDuplicateTimestamp = errors.New("duplicate migration timestamp used")

	// ErrDependencyCycle is returned when a dependency reference reappears
	// on the current resolution stack.
	ErrDependencyCycle = errors.New("migration dependency cycle detected")
)
