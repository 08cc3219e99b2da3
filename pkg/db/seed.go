package db

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/morezero/cephapi/pkg/catalog"
)

const seedLogPrefix = "db:seed"

// SeedCatalog stores a catalog in the schema store. source is either the name of an
// embedded release or a path to a catalog file; an empty source stores every embedded release.
func SeedCatalog(ctx context.Context, repo *Repository, source string) ([]string, error) {
	var cats []*catalog.Catalog
	switch {
	case source == "":
		for _, release := range catalog.Releases() {
			cat, err := catalog.Load(release)
			if err != nil {
				return nil, err
			}
			cats = append(cats, cat)
		}
	case isFile(source):
		cat, err := catalog.LoadFile(source)
		if err != nil {
			return nil, err
		}
		cats = append(cats, cat)
	default:
		cat, err := catalog.Load(source)
		if err != nil {
			return nil, err
		}
		cats = append(cats, cat)
	}

	seeded := make([]string, 0, len(cats))
	for _, cat := range cats {
		if err := repo.SaveCatalog(ctx, cat); err != nil {
			return seeded, fmt.Errorf("%s - seed %s: %w", seedLogPrefix, cat.Release, err)
		}
		slog.Info(fmt.Sprintf("%s - Seeded %s (%d commands)", seedLogPrefix, cat.Release, len(cat.Commands)))
		seeded = append(seeded, cat.Release)
	}
	return seeded, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
