package bootstrap

import (
	"github.com/roach88/testbench/internal/app"
	"github.com/roach88/testbench/internal/override"
)

// TestCase identifies the test being bootstrapped. Everything else a test
// can contribute is optional: the pipeline checks for each hook interface
// below and calls it at the stage that owns it.
type TestCase interface {
	Name() string
}

// Capabilities is the capability mix a test opts into.
type Capabilities struct {
	// Workbench selects the workbench-aware configuration loader.
	Workbench bool

	// LoadEnvironmentVariables loads <base>/.env during stage 5.
	LoadEnvironmentVariables bool
}

// CapabilityProvider is implemented by tests that opt into capabilities.
type CapabilityProvider interface {
	Capabilities() Capabilities
}

// Declarer supplies declarative overrides (annotations and attributes).
type Declarer interface {
	Declarations() []override.Descriptor
}

// BindingOverrider replaces bindings: abstract -> concrete name.
type BindingOverrider interface {
	OverrideApplicationBindings() map[app.Abstract]string
}

// EnvironmentVariables sets process environment variables for the test.
// An empty value sets the variable to "".
type EnvironmentVariables interface {
	EnvironmentVariables() map[string]string
}

// AliasOverrider replaces existing aliases: name -> target.
type AliasOverrider interface {
	OverrideApplicationAliases() map[string]string
}

// ProviderOverrider replaces providers in place: old name -> new name. An
// empty new name removes the provider.
type ProviderOverrider interface {
	OverrideApplicationProviders() map[string]string
}

// PackageAliases supplies aliases merged after overrides.
type PackageAliases interface {
	PackageAliases() map[string]string
}

// PackageProviders supplies providers appended after overrides.
type PackageProviders interface {
	PackageProviders() []string
}

// ConfigOverrider supplies config-key overrides: dotted path -> value.
type ConfigOverrider interface {
	ConfigOverrides() map[string]any
}

// EnvironmentDefiner is the programmatic environment-definition hook.
type EnvironmentDefiner interface {
	DefineEnvironment(c *app.Context) error
}

// LegacyEnvironmentSetUp is the older name of the environment hook. It runs
// after DefineEnvironment.
type LegacyEnvironmentSetUp interface {
	GetEnvironmentSetUp(c *app.Context) error
}

// Bootstrapper is a package bootstrapper run after providers boot.
type Bootstrapper func(c *app.Context) error

// PackageBootstrappers supplies package bootstrappers.
type PackageBootstrappers interface {
	PackageBootstrappers() []Bootstrapper
}

// Named is the simplest TestCase.
type Named string

// Name implements TestCase.
func (n Named) Name() string { return string(n) }
