package capability

import (
	"fmt"
	"sort"
)

type registryEntry struct {
	module     *Module
	definition *ActionDefinition
}

// Registry maps action names to their definitions and owning modules. It is
// built once at startup and is read-only afterwards, so it is safe for
// concurrent use.
type Registry struct {
	modules []*Module
	actions map[string]registryEntry
}

// NewRegistry builds a registry from modules. Module order is preserved and
// determines the order of pinned text in the introduction. Action names must
// be unique across all modules.
func NewRegistry(modules ...*Module) (*Registry, error) {
	r := &Registry{actions: make(map[string]registryEntry)}
	seen := make(map[string]bool, len(modules))

	for _, m := range modules {
		if m == nil || m.Name == "" {
			return nil, fmt.Errorf("capability module without name")
		}
		if seen[m.Name] {
			return nil, fmt.Errorf("duplicate capability module %q", m.Name)
		}
		seen[m.Name] = true

		for name, def := range m.Actions {
			if def == nil || def.Handler == nil {
				return nil, fmt.Errorf("action %q of module %q has no handler", name, m.Name)
			}
			if existing, ok := r.actions[name]; ok {
				return nil, fmt.Errorf("action %q declared by both %q and %q", name, existing.module.Name, m.Name)
			}
			d := *def
			d.Name = name
			r.actions[name] = registryEntry{module: m, definition: &d}
		}
		r.modules = append(r.modules, m)
	}

	return r, nil
}

// MustRegistry is like NewRegistry but panics on error. Intended for static,
// process-built tables.
func MustRegistry(modules ...*Module) *Registry {
	r, err := NewRegistry(modules...)
	if err != nil {
		panic(err)
	}
	return r
}

// Modules returns the registered modules in registration order.
func (r *Registry) Modules() []*Module {
	return append([]*Module(nil), r.modules...)
}

// Action looks up an action definition by name.
func (r *Registry) Action(name string) (*ActionDefinition, bool) {
	e, ok := r.actions[name]
	if !ok {
		return nil, false
	}
	return e.definition, true
}

// Owner returns the module that declares the named action.
func (r *Registry) Owner(name string) (*Module, bool) {
	e, ok := r.actions[name]
	if !ok {
		return nil, false
	}
	return e.module, true
}

// ActionNames returns every registered action name, sorted.
func (r *Registry) ActionNames() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Actions returns every action definition sorted by name.
func (r *Registry) Actions() []*ActionDefinition {
	names := r.ActionNames()
	defs := make([]*ActionDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.actions[name].definition)
	}
	return defs
}
