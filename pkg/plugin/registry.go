package plugin

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/harunnryd/pluma/pkg/errorsx"
	"github.com/harunnryd/pluma/pkg/llm"
)

// Entry binds a declaration to its type and handler. Entries are copied
// out of the registry and never change after registration.
type Entry struct {
	Declaration llm.ToolDeclaration
	Type        ToolType
	Handler     Handler
}

// Registrar is the registration half of a Registry, which is all a plugin sees.
type Registrar interface {
	Register(name string, decl llm.ToolDeclaration, typ ToolType, h Handler) error
}

// Registry maps tool names to entries and remembers registration order.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]Entry),
		logger:  logger,
	}
}

// Register adds a tool. A second registration of the same name fails with
// a DuplicateToolError and leaves the first in place.
func (r *Registry) Register(name string, decl llm.ToolDeclaration, typ ToolType, h Handler) error {
	entry, err := newEntry(name, decl, typ, h)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entry.Declaration.Name]; ok {
		return &errorsx.DuplicateToolError{Name: entry.Declaration.Name}
	}
	r.insertLocked(entry)
	return nil
}

func (r *Registry) insertLocked(entry Entry) {
	name := entry.Declaration.Name
	r.entries[name] = entry
	r.order = append(r.order, name)
	r.logger.Debug("tool_registered", "tool", name, "tool_type", entry.Type.String())
}

func newEntry(name string, decl llm.ToolDeclaration, typ ToolType, h Handler) (Entry, error) {
	name = strings.TrimSpace(name)
	if strings.TrimSpace(decl.Name) == "" {
		decl.Name = name
	}
	if name == "" {
		name = decl.Name
	}
	if decl.Name != name {
		return Entry{}, &errorsx.ValidationError{Tool: name, Field: "name", Problem: fmt.Sprintf("declaration is named %q", decl.Name)}
	}
	if err := decl.Validate(); err != nil {
		return Entry{}, err
	}
	if !typ.Valid() {
		return Entry{}, &errorsx.ValidationError{Tool: name, Field: "type", Problem: typ.String()}
	}
	if h == nil {
		return Entry{}, &errorsx.ValidationError{Tool: name, Field: "handler", Problem: "is nil"}
	}
	return Entry{Declaration: decl.Normalized(), Type: typ, Handler: h}, nil
}

// Resolve returns the entry for name or an UnknownToolError.
func (r *Registry) Resolve(name string) (Entry, error) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return Entry{}, &errorsx.UnknownToolError{Name: name}
	}
	return entry, nil
}

// Declarations returns every declaration in registration order.
func (r *Registry) Declarations() []llm.ToolDeclaration {
	return r.Enabled(nil)
}

// Enabled returns declarations for the listed names, in registration order.
// An empty list means every registered tool.
func (r *Registry) Enabled(names []string) []llm.ToolDeclaration {
	var allow map[string]struct{}
	if len(names) > 0 {
		allow = make(map[string]struct{}, len(names))
		for _, n := range names {
			allow[strings.TrimSpace(n)] = struct{}{}
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolDeclaration, 0, len(r.order))
	for _, name := range r.order {
		if allow != nil {
			if _, ok := allow[name]; !ok {
				continue
			}
		}
		out = append(out, r.entries[name].Declaration.Normalized())
	}
	return out
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// commit adds a batch atomically: either every entry is added or none.
func (r *Registry) commit(batch []Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range batch {
		if _, ok := r.entries[e.Declaration.Name]; ok {
			return &errorsx.DuplicateToolError{Name: e.Declaration.Name}
		}
	}
	for _, e := range batch {
		r.insertLocked(e)
	}
	return nil
}
