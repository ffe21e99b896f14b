package northward

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// emptyMigrationTemplate is the body of a freshly generated migration
// script: an init-time registration with empty up/down actions, seeded
// with the most recent existing migration as its dependency.
var emptyMigrationTemplate = template.Must(template.New("migration").Parse(
	`package {{.Package}}

import (
	"context"

	northward "github.com/dparlevliet/northward"
)

func init() {
	northward.Register("{{.Name}}", northward.Definition{
		Dependencies: []string{
{{- if .Dependency}}
			"{{.Dependency}}",
{{- end}}
		},
		Up: func(ctx context.Context) error {
			// Write the migration code here.
			return nil
		},
		Down: func(ctx context.Context) error {
			// Write the rollback code here.
			return nil
		},
	})
}
`))

// MakeEmpty creates an empty, timestamped migration script in the
// migrator's directory. The most recently created existing migration
// (by reverse lexicographic listing) is seeded as its sole dependency.
//
// Returns:
//   - string: The path of the created file.
//   - error: An error if listing or writing fails.
func (m *Migrator) MakeEmpty() (string, error) {
	name := time.Now().UTC().Format("20060102150405") + "_migration"
	path := filepath.Join(m.Directory, name+ScriptExt)

	dependency, err := latestMigrationName(m.Directory)
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating migration file %s: %w", path, err)
	}
	defer f.Close()

	data := struct {
		Package    string
		Name       string
		Dependency string
	}{
		Package:    packageNameFor(m.Directory),
		Name:       name,
		Dependency: dependency,
	}
	if err := emptyMigrationTemplate.Execute(f, data); err != nil {
		return "", fmt.Errorf("writing migration file %s: %w", path, err)
	}

	m.Logger.Info("Created migration", zap.String("path", path))
	return path, nil
}

// latestMigrationName returns the name (sans extension) of the last
// migration file in reverse lexicographic directory order, or empty when
// the directory holds none.
func latestMigrationName(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading migration directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && isMigrationFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return strings.TrimSuffix(names[0], ScriptExt), nil
}

// packageNameFor derives a Go package name from the directory basename.
func packageNameFor(dir string) string {
	base := filepath.Base(dir)
	var b strings.Builder
	for _, r := range base {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name == "" || unicode.IsDigit(rune(name[0])) {
		name = "migrations"
	}
	return name
}
