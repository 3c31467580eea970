package tools

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/stagehand-ai/stagehand/pkg/models"
)

var nameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Registry is the catalog of built-in tools. It is populated at startup
// and read-only afterwards.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, compiling its input schema for argument
// validation. Names must match [a-z][a-z0-9_]* and be unique.
func (r *Registry) Register(tool Tool) error {
	spec := tool.Spec()
	if !nameRe.MatchString(spec.Name) {
		return fmt.Errorf("invalid tool name: %q", spec.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("duplicate tool name: %q", spec.Name)
	}

	if len(spec.InputSchema) > 0 {
		schema, err := jsonschema.CompileString(spec.Name+".schema.json", string(spec.InputSchema))
		if err != nil {
			return fmt.Errorf("compile schema for %s: %w", spec.Name, err)
		}
		r.schemas[spec.Name] = schema
	}

	r.tools[spec.Name] = tool
	r.order = append(r.order, spec.Name)
	return nil
}

// MustRegister registers a slice of tools, panicking on any error. Meant
// for the static catalog built at startup.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Schema returns the compiled input schema for a tool, if any.
func (r *Registry) Schema(name string) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// All returns every spec in registration order.
func (r *Registry) All() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Spec())
	}
	return out
}

// ForRole returns the specs callable by the role, excluding tools that
// are not production-safe when safe mode is on.
func (r *Registry) ForRole(role models.Role, safeMode bool) []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Spec
	for _, name := range r.order {
		spec := r.tools[name].Spec()
		if !spec.AllowsRole(role) {
			continue
		}
		if safeMode && !spec.SafeForProduction {
			continue
		}
		out = append(out, spec)
	}
	return out
}

// Names returns all tool names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	sort.Strings(out)
	return out
}

// IsFederatedName reports whether a tool name addresses an external
// server rather than the built-in catalog.
func IsFederatedName(name string) bool {
	return strings.HasPrefix(name, "mcp__")
}
