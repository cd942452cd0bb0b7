// Package app holds the application context the bootstrap pipeline builds
// for each test.
//
// A Context owns its configuration store, binding table, alias table,
// provider list, global registry and teardown tracker. Nothing is shared
// between contexts, so two tests may bootstrap concurrently as long as they
// do not both mutate the process environment.
//
// The binding and alias tables accept replacements until Seal is called,
// which the pipeline does right after provider registration. Mutations
// after that return ErrSealed.
package app

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/testbench/internal/config"
	"github.com/roach88/testbench/internal/teardown"
)

// Provider registers services into a context.
type Provider interface {
	Name() string
	Register(c *Context) error
}

// Booter is implemented by providers that need a boot phase after every
// provider has registered.
type Booter interface {
	Boot(c *Context) error
}

// AliasEntry is one row of the alias table.
type AliasEntry struct {
	Name   string
	Target string
}

// RequestContext is the request state seeded before providers run.
type RequestContext struct {
	URL string
}

// Context is the application under construction.
type Context struct {
	mu sync.Mutex

	basePath string
	config   *config.Store
	logger   *slog.Logger

	bindings     map[Abstract]Binding
	bindingOrder []Abstract
	instances    map[Abstract]any

	aliases    map[string]string
	aliasOrder []string

	providers []Provider
	booted    bool

	env      string
	envBound bool
	location *time.Location

	globals *Globals
	routes  *RouteTable
	request *RequestContext
	tracker *teardown.Tracker

	sealed    bool
	destroyed bool
}

// New creates an empty context rooted at basePath.
func New(basePath string, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		basePath:  basePath,
		config:    config.NewStore(),
		logger:    logger,
		bindings:  make(map[Abstract]Binding),
		instances: make(map[Abstract]any),
		aliases:   make(map[string]string),
		location:  time.UTC,
		globals:   NewGlobals(),
		routes:    NewRouteTable(),
		tracker:   teardown.New(),
	}
}

// BasePath returns the filesystem root the context was created at.
func (c *Context) BasePath() string {
	return c.basePath
}

// Configuration returns the configuration store.
func (c *Context) Configuration() *config.Store {
	return c.config
}

// Logger returns the context logger.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// Tracker returns the stage outcome tracker.
func (c *Context) Tracker() *teardown.Tracker {
	return c.tracker
}

// OnTeardown registers an undo callback with the tracker.
func (c *Context) OnTeardown(fn func() error) {
	c.tracker.OnTeardown(fn)
}

// Globals returns the global registry.
func (c *Context) Globals() *Globals {
	return c.globals
}

// ClearGlobalBindings resets the global registry.
func (c *Context) ClearGlobalBindings() {
	c.globals.Clear()
}

// Routes returns the route table.
func (c *Context) Routes() *RouteTable {
	return c.routes
}

// SeedRequest installs the request context.
func (c *Context) SeedRequest(r RequestContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.request = &r
}

// Request returns the seeded request context, or nil.
func (c *Context) Request() *RequestContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.request
}

// Environment returns the current environment name.
func (c *Context) Environment() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.env
}

// EnvironmentBound reports whether SetEnvironment has been called.
func (c *Context) EnvironmentBound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.envBound
}

// SetEnvironment binds the environment name. The context does not know the
// pipeline position; the pipeline rejects late changes.
func (c *Context) SetEnvironment(env string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.env = env
	c.envBound = true
}

// Location returns the application timezone.
func (c *Context) Location() *time.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.location
}

// SetLocation sets the application timezone.
func (c *Context) SetLocation(loc *time.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.location = loc
}

// SetBinding installs or replaces the binding for b.Abstract. Any cached
// shared instance of the previous binding is dropped.
func (c *Context) SetBinding(b Binding) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return &SealedError{Op: "bind", Target: string(b.Abstract)}
	}
	if _, exists := c.bindings[b.Abstract]; !exists {
		c.bindingOrder = append(c.bindingOrder, b.Abstract)
	}
	c.bindings[b.Abstract] = b
	delete(c.instances, b.Abstract)
	return nil
}

// Binding returns the binding for abstract.
func (c *Context) Binding(abstract Abstract) (Binding, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bindings[abstract]
	return b, ok
}

// Bound reports whether abstract has a binding.
func (c *Context) Bound(abstract Abstract) bool {
	_, ok := c.Binding(abstract)
	return ok
}

// Bindings returns the binding table in first-bound order.
func (c *Context) Bindings() []Binding {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Binding, 0, len(c.bindingOrder))
	for _, a := range c.bindingOrder {
		out = append(out, c.bindings[a])
	}
	return out
}

// Make resolves abstract through its binding. Shared bindings are built
// once and cached.
func (c *Context) Make(abstract Abstract) (any, error) {
	c.mu.Lock()
	b, ok := c.bindings[abstract]
	if ok && b.Shared {
		if inst, cached := c.instances[abstract]; cached {
			c.mu.Unlock()
			return inst, nil
		}
	}
	c.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("make %q: %w", abstract, ErrUnbound)
	}

	inst, err := b.Factory(c)
	if err != nil {
		return nil, fmt.Errorf("make %q (%s): %w", abstract, b.Concrete, err)
	}

	if b.Shared {
		c.mu.Lock()
		c.instances[abstract] = inst
		c.mu.Unlock()
	}
	return inst, nil
}

// SetAlias maps name to target, replacing an existing alias.
func (c *Context) SetAlias(name, target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return &SealedError{Op: "alias", Target: name}
	}
	if _, exists := c.aliases[name]; !exists {
		c.aliasOrder = append(c.aliasOrder, name)
	}
	c.aliases[name] = target
	return nil
}

// Alias returns the target name is aliased to.
func (c *Context) Alias(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.aliases[name]
	return t, ok
}

// Aliases returns the alias table in first-set order.
func (c *Context) Aliases() []AliasEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AliasEntry, 0, len(c.aliasOrder))
	for _, n := range c.aliasOrder {
		out = append(out, AliasEntry{Name: n, Target: c.aliases[n]})
	}
	return out
}

// SetProviders replaces the provider list.
func (c *Context) SetProviders(providers []Provider) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return &SealedError{Op: "providers", Target: fmt.Sprintf("%d providers", len(providers))}
	}
	c.providers = append([]Provider(nil), providers...)
	return nil
}

// Providers returns the provider list.
func (c *Context) Providers() []Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Provider(nil), c.providers...)
}

// ProviderNames returns the names of the provider list, in order.
func (c *Context) ProviderNames() []string {
	providers := c.Providers()
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}
	return names
}

// RegisterProviders calls Register on every provider in order. The first
// failure stops registration.
func (c *Context) RegisterProviders() error {
	for _, p := range c.Providers() {
		if err := p.Register(c); err != nil {
			return fmt.Errorf("register provider %s: %w", p.Name(), err)
		}
	}
	return nil
}

// RegisterProvider registers one extra provider and appends it to the
// list. Used for providers that sit outside the configured list.
func (c *Context) RegisterProvider(p Provider) error {
	if err := p.Register(c); err != nil {
		return fmt.Errorf("register provider %s: %w", p.Name(), err)
	}
	c.mu.Lock()
	c.providers = append(c.providers, p)
	c.mu.Unlock()
	return nil
}

// BootProviders runs the boot phase of every provider implementing Booter.
// Booting twice is a no-op.
func (c *Context) BootProviders() error {
	c.mu.Lock()
	if c.booted {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	for _, p := range c.Providers() {
		b, ok := p.(Booter)
		if !ok {
			continue
		}
		if err := b.Boot(c); err != nil {
			return fmt.Errorf("boot provider %s: %w", p.Name(), err)
		}
	}

	c.mu.Lock()
	c.booted = true
	c.mu.Unlock()
	return nil
}

// Booted reports whether BootProviders has completed.
func (c *Context) Booted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.booted
}

// Seal makes the binding and alias tables read-only.
func (c *Context) Seal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
}

// Sealed reports whether Seal has been called.
func (c *Context) Sealed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sealed
}

// Destroy runs the teardown callbacks and releases the context's state.
// The returned error is the teardown failure report, if any. Destroying
// twice is a no-op.
func (c *Context) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.mu.Unlock()

	err := c.tracker.RunTeardown()

	c.globals.Clear()
	c.mu.Lock()
	c.instances = make(map[Abstract]any)
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("teardown failed", "error", err)
	}
	return err
}

// Destroyed reports whether Destroy has been called.
func (c *Context) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}
