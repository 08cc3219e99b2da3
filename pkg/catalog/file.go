package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a catalog from a .json, .yaml or .yml file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s - read %s: %w", logPrefix, path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		cat, err := DecodeJSON(data)
		if err != nil {
			return nil, err
		}
		return withRelease(cat, path), nil
	case ".yaml", ".yml":
		cat, err := DecodeYAML(data)
		if err != nil {
			return nil, err
		}
		return withRelease(cat, path), nil
	default:
		return nil, fmt.Errorf("%s - unsupported catalog extension %q", logPrefix, ext)
	}
}

// DecodeYAML parses a YAML catalog document and checks it.
func DecodeYAML(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("%s - decode yaml catalog: %w", logPrefix, err)
	}
	if err := cat.Check(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// withRelease names an unnamed catalog after its file.
func withRelease(cat *Catalog, path string) *Catalog {
	if cat.Release == "" {
		base := filepath.Base(path)
		cat.Release = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return cat
}
