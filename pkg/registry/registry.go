// Package registry holds the command schemas known to a dispatcher.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/morezero/cephapi/pkg/catalog"
	"github.com/morezero/cephapi/pkg/schema"
)

const logPrefix = "registry:registry"

// Registry maps command names to schemas. It is filled during initialization,
// sealed, and then only read; lookups are safe from any goroutine.
type Registry struct {
	mu       sync.RWMutex
	release  string
	commands map[string]*schema.CommandSchema
	sealed   bool
}

// New creates an empty Registry. release labels the command set (e.g. "jewel")
// and may be empty.
func New(release string) *Registry {
	return &Registry{
		release:  release,
		commands: make(map[string]*schema.CommandSchema),
	}
}

// NewFromCatalog registers every command in cat and seals the result.
func NewFromCatalog(cat *catalog.Catalog) (*Registry, error) {
	r := New(cat.Release)
	for i := range cat.Commands {
		if err := r.Register(cat.Commands[i]); err != nil {
			return nil, fmt.Errorf("%s - catalog %s: %w", logPrefix, cat.Release, err)
		}
	}
	r.Seal()
	slog.Debug(fmt.Sprintf("%s - loaded release=%s commands=%d", logPrefix, cat.Release, r.Len()))
	return r, nil
}

// Register adds s under s.Name. The registry keeps its own copy.
func (r *Registry) Register(s schema.CommandSchema) error {
	if err := s.Check(); err != nil {
		return &CommandError{Code: CodeInvalidSchema, Message: err.Error(), Cause: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return NewCommandError(CodeRegistrySealed, fmt.Sprintf("cannot register %s: registry is sealed", s.Name))
	}
	if _, exists := r.commands[s.Name]; exists {
		return ErrDuplicateCommand(s.Name)
	}
	r.commands[s.Name] = s.Clone()
	return nil
}

// Lookup returns a copy of the schema registered under name.
func (r *Registry) Lookup(name string) (*schema.CommandSchema, error) {
	r.mu.RLock()
	s, ok := r.commands[name]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownCommand(name)
	}
	return s.Clone(), nil
}

// List returns copies of the registered schemas sorted by name. A non-empty
// module restricts the result to that command family.
func (r *Registry) List(module string) []schema.CommandSchema {
	r.mu.RLock()
	out := make([]schema.CommandSchema, 0, len(r.commands))
	for _, s := range r.commands {
		if module != "" && s.Module != module {
			continue
		}
		out = append(out, *s.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Modules returns the distinct command families, sorted.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	seen := make(map[string]bool)
	for _, s := range r.commands {
		if s.Module != "" {
			seen[s.Module] = true
		}
	}
	r.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

func (r *Registry) Release() string { return r.release }

// Seal makes the registry read-only. Further Register calls fail with REGISTRY_SEALED.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}
