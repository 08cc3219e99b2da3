package db

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const migrationsLogPrefix = "db:migrations"

const downSuffix = ".down.sql"

// Migration is one forward SQL file and, when present, its "<name>.down.sql" companion.
type Migration struct {
	Name string
	SQL  string
	Down string
}

// LoadMigrationFiles reads the .sql files in dir, sorted by name. Down files are
// attached to their forward migration rather than returned on their own.
func LoadMigrationFiles(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" || strings.HasSuffix(e.Name(), downSuffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, path, err)
		}
		m := Migration{Name: name, SQL: string(data)}

		downPath := filepath.Join(dir, strings.TrimSuffix(name, ".sql")+downSuffix)
		down, err := os.ReadFile(downPath)
		switch {
		case err == nil:
			m.Down = string(down)
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, downPath, err)
		}
		out = append(out, m)
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d migration files from %s", migrationsLogPrefix, len(out), dir))
	return out, nil
}
