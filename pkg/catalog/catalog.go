// Package catalog provides per-release Ceph command sets and loaders for them.
package catalog

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/morezero/cephapi/pkg/schema"
)

const logPrefix = "catalog:catalog"

//go:embed releases/*.json
var releaseFS embed.FS

// Catalog is a named set of command schemas, usually one Ceph release.
type Catalog struct {
	Release string `json:"release" yaml:"release"`
	// Version is the lowest Ceph version the catalog was generated from.
	Version  string                 `json:"version,omitempty" yaml:"version,omitempty"`
	Commands []schema.CommandSchema `json:"commands" yaml:"commands"`
}

// Command returns the schema named name.
func (c *Catalog) Command(name string) (*schema.CommandSchema, bool) {
	for i := range c.Commands {
		if c.Commands[i].Name == name {
			return &c.Commands[i], true
		}
	}
	return nil, false
}

// Check verifies every schema and that names are unique.
func (c *Catalog) Check() error {
	seen := make(map[string]bool, len(c.Commands))
	for i := range c.Commands {
		s := &c.Commands[i]
		if err := s.Check(); err != nil {
			return fmt.Errorf("%s - release %s: %w", logPrefix, c.Release, err)
		}
		if seen[s.Name] {
			return fmt.Errorf("%s - release %s: duplicate command %s", logPrefix, c.Release, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// Releases returns the names of the embedded release catalogs, sorted.
func Releases() []string {
	entries, err := releaseFS.ReadDir("releases")
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".json" {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(out)
	return out
}

// Load returns the embedded catalog for release (e.g. "jewel").
func Load(release string) (*Catalog, error) {
	release = strings.ToLower(strings.TrimSpace(release))
	data, err := releaseFS.ReadFile("releases/" + release + ".json")
	if err != nil {
		return nil, fmt.Errorf("%s - unknown release %q (have %s)", logPrefix, release, strings.Join(Releases(), ", "))
	}
	return DecodeJSON(data)
}

// DecodeJSON parses a catalog document and checks it.
func DecodeJSON(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("%s - decode catalog: %w", logPrefix, err)
	}
	if err := cat.Check(); err != nil {
		return nil, err
	}
	return &cat, nil
}
