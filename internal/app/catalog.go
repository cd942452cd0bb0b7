package app

import (
	"sort"
	"sync"
)

// EnvironmentHook adjusts a context during the environment-definition step.
type EnvironmentHook func(c *Context) error

type concrete struct {
	factory Factory
	shared  bool
}

// Catalog names everything an override may refer to: abstracts that accept
// replacement bindings, concretes that can be bound, providers and
// environment hooks. Overrides refer to entries by name; the catalog turns
// names into typed values.
type Catalog struct {
	mu           sync.RWMutex
	abstracts    map[Abstract]struct{}
	concretes    map[string]concrete
	providers    map[string]func() Provider
	environments map[string]EnvironmentHook
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		abstracts:    make(map[Abstract]struct{}),
		concretes:    make(map[string]concrete),
		providers:    make(map[string]func() Provider),
		environments: make(map[string]EnvironmentHook),
	}
}

// DefaultCatalog returns a catalog holding the built-in loaders, exception
// handler, kernels and the legacy provider.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	registerBuiltins(c)
	return c
}

// Clone returns an independent copy.
func (cat *Catalog) Clone() *Catalog {
	cat.mu.RLock()
	defer cat.mu.RUnlock()

	out := NewCatalog()
	for k, v := range cat.abstracts {
		out.abstracts[k] = v
	}
	for k, v := range cat.concretes {
		out.concretes[k] = v
	}
	for k, v := range cat.providers {
		out.providers[k] = v
	}
	for k, v := range cat.environments {
		out.environments[k] = v
	}
	return out
}

// DeclareAbstract marks a as replaceable by binding overrides.
func (cat *Catalog) DeclareAbstract(a Abstract) {
	cat.mu.Lock()
	defer cat.mu.Unlock()
	cat.abstracts[a] = struct{}{}
}

// Declared reports whether a accepts binding overrides.
func (cat *Catalog) Declared(a Abstract) bool {
	cat.mu.RLock()
	defer cat.mu.RUnlock()
	_, ok := cat.abstracts[a]
	return ok
}

// RegisterConcrete adds a named concrete.
func (cat *Catalog) RegisterConcrete(name string, f Factory, shared bool) {
	cat.mu.Lock()
	defer cat.mu.Unlock()
	cat.concretes[name] = concrete{factory: f, shared: shared}
}

// BindingFor builds a binding of abstract to the named concrete.
func (cat *Catalog) BindingFor(abstract Abstract, name string) (Binding, bool) {
	cat.mu.RLock()
	defer cat.mu.RUnlock()
	c, ok := cat.concretes[name]
	if !ok {
		return Binding{}, false
	}
	return Binding{Abstract: abstract, Concrete: name, Factory: c.factory, Shared: c.shared}, true
}

// RegisterProvider adds a named provider constructor.
func (cat *Catalog) RegisterProvider(name string, ctor func() Provider) {
	cat.mu.Lock()
	defer cat.mu.Unlock()
	cat.providers[name] = ctor
}

// Provider constructs the named provider.
func (cat *Catalog) Provider(name string) (Provider, bool) {
	cat.mu.RLock()
	ctor, ok := cat.providers[name]
	cat.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return ctor(), true
}

// RegisterEnvironment adds a named environment hook.
func (cat *Catalog) RegisterEnvironment(name string, hook EnvironmentHook) {
	cat.mu.Lock()
	defer cat.mu.Unlock()
	cat.environments[name] = hook
}

// Environment returns the named environment hook.
func (cat *Catalog) Environment(name string) (EnvironmentHook, bool) {
	cat.mu.RLock()
	defer cat.mu.RUnlock()
	h, ok := cat.environments[name]
	return h, ok
}

// ProviderNames lists registered provider names, sorted.
func (cat *Catalog) ProviderNames() []string {
	cat.mu.RLock()
	defer cat.mu.RUnlock()
	names := make([]string, 0, len(cat.providers))
	for n := range cat.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
