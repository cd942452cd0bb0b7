package harness

import (
	"errors"
	"sync"

	"github.com/roach88/testbench/internal/app"
	"github.com/roach88/testbench/internal/bootstrap"
	"github.com/roach88/testbench/internal/canonical"
	"github.com/roach88/testbench/internal/override"
)

// eventLog collects fixture events in the order they happen.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// fixtureProvider is a provider scripted by a ProviderFixture.
type fixtureProvider struct {
	script ProviderFixture
	log    *eventLog
}

func (p *fixtureProvider) Name() string { return p.script.Name }

func (p *fixtureProvider) Register(*app.Context) error {
	p.log.add("register:" + p.script.Name)
	if p.script.RegisterError != "" {
		return errors.New(p.script.RegisterError)
	}
	return nil
}

func (p *fixtureProvider) Boot(c *app.Context) error {
	p.log.add("boot:" + p.script.Name)
	for _, name := range p.script.Routes {
		c.Routes().Add(app.Route{Method: "GET", Path: "/" + name, Name: name})
	}
	if p.script.BootError != "" {
		return errors.New(p.script.BootError)
	}
	return nil
}

// buildCatalog extends the default catalog with the scenario's fixtures.
func buildCatalog(f CatalogFixture, log *eventLog) *app.Catalog {
	cat := app.DefaultCatalog()

	for _, a := range f.Abstracts {
		cat.DeclareAbstract(app.Abstract(a))
	}
	for _, name := range f.Concretes {
		name := name
		cat.RegisterConcrete(name, func(*app.Context) (any, error) { return name, nil }, true)
	}
	for _, script := range f.Providers {
		script := script
		cat.RegisterProvider(script.Name, func() app.Provider {
			return &fixtureProvider{script: script, log: log}
		})
	}
	for _, name := range canonical.SortedKeys(f.Environments) {
		name, hook := name, f.Environments[name]
		cat.RegisterEnvironment(name, func(c *app.Context) error {
			log.add("hook:" + name)
			return hook.apply(c)
		})
	}
	return cat
}

func (h HookFixture) apply(c *app.Context) error {
	for _, path := range canonical.SortedKeys(h.Config) {
		c.Configuration().Set(path, h.Config[path])
	}
	if h.Environment != "" {
		c.SetEnvironment(h.Environment)
	}
	if h.Error != "" {
		return errors.New(h.Error)
	}
	return nil
}

// scenarioCase adapts a Scenario to the bootstrap test-case hooks.
type scenarioCase struct {
	s   *Scenario
	log *eventLog
}

var (
	_ bootstrap.CapabilityProvider   = (*scenarioCase)(nil)
	_ bootstrap.Declarer             = (*scenarioCase)(nil)
	_ bootstrap.BindingOverrider     = (*scenarioCase)(nil)
	_ bootstrap.EnvironmentVariables = (*scenarioCase)(nil)
	_ bootstrap.AliasOverrider       = (*scenarioCase)(nil)
	_ bootstrap.ProviderOverrider    = (*scenarioCase)(nil)
	_ bootstrap.PackageAliases       = (*scenarioCase)(nil)
	_ bootstrap.PackageProviders     = (*scenarioCase)(nil)
	_ bootstrap.ConfigOverrider      = (*scenarioCase)(nil)
	_ bootstrap.EnvironmentDefiner   = (*scenarioCase)(nil)
)

func (c *scenarioCase) Name() string { return c.s.Name }

func (c *scenarioCase) Capabilities() bootstrap.Capabilities {
	return bootstrap.Capabilities{
		Workbench:                c.s.Capabilities.Workbench,
		LoadEnvironmentVariables: c.s.Capabilities.LoadEnvironmentVariables,
	}
}

func (c *scenarioCase) Declarations() []override.Descriptor { return c.s.Declarations }

func (c *scenarioCase) OverrideApplicationBindings() map[app.Abstract]string {
	if len(c.s.Programmatic.Bindings) == 0 {
		return nil
	}
	out := make(map[app.Abstract]string, len(c.s.Programmatic.Bindings))
	for k, v := range c.s.Programmatic.Bindings {
		out[app.Abstract(k)] = v
	}
	return out
}

func (c *scenarioCase) EnvironmentVariables() map[string]string { return c.s.Programmatic.Env }

func (c *scenarioCase) OverrideApplicationAliases() map[string]string { return c.s.Programmatic.Aliases }

func (c *scenarioCase) OverrideApplicationProviders() map[string]string {
	return c.s.Programmatic.Providers
}

func (c *scenarioCase) PackageAliases() map[string]string { return c.s.Programmatic.PackageAliases }

func (c *scenarioCase) PackageProviders() []string { return c.s.Programmatic.PackageProviders }

func (c *scenarioCase) ConfigOverrides() map[string]any { return c.s.Programmatic.Config }

func (c *scenarioCase) DefineEnvironment(a *app.Context) error {
	if c.s.Programmatic.DefineEnvironment == nil {
		return nil
	}
	c.log.add("define-environment")
	return c.s.Programmatic.DefineEnvironment.apply(a)
}
