package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/testbench/internal/app"
	"github.com/roach88/testbench/internal/bootstrap"
	"github.com/roach88/testbench/internal/override"
)

// Scenario defines a bootstrap scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It is also the test name
	// recorded in the journal and the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// BasePath is the application root inside the scenario filesystem.
	// Defaults to DefaultBasePath.
	BasePath string `yaml:"base_path,omitempty"`

	// WorkbenchPath is the workbench root used when the workbench
	// capability is enabled.
	WorkbenchPath string `yaml:"workbench_path,omitempty"`

	// Capabilities selects the loader and .env handling.
	Capabilities Capabilities `yaml:"capabilities,omitempty"`

	// RunningInTests forces the "testing" environment. Defaults to true.
	RunningInTests *bool `yaml:"running_in_tests,omitempty"`

	// LegacyProvider enables the legacy compatibility provider.
	LegacyProvider bool `yaml:"legacy_provider,omitempty"`

	// Files are written to the in-memory filesystem before the run.
	// Relative paths are resolved against BasePath.
	Files map[string]string `yaml:"files,omitempty"`

	// Catalog extends the built-in catalog.
	Catalog CatalogFixture `yaml:"catalog,omitempty"`

	// Declarations are declarative overrides attached to the test.
	Declarations []override.Descriptor `yaml:"declarations,omitempty"`

	// Programmatic holds the values returned by the test's hook methods.
	Programmatic Programmatic `yaml:"programmatic,omitempty"`

	// Expect is the expected bootstrap outcome.
	Expect Expectation `yaml:"expect,omitempty"`

	// Assertions validate the bootstrapped application.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// DefaultBasePath is the base path used when a scenario names none.
const DefaultBasePath = "/app"

// Capabilities mirrors bootstrap.Capabilities in YAML form.
type Capabilities struct {
	Workbench                bool `yaml:"workbench"`
	LoadEnvironmentVariables bool `yaml:"load_environment_variables"`
}

// CatalogFixture describes catalog entries added for a scenario.
type CatalogFixture struct {
	// Abstracts accept binding overrides.
	Abstracts []string `yaml:"abstracts,omitempty"`

	// Concretes resolve to their own name when made.
	Concretes []string `yaml:"concretes,omitempty"`

	// Providers record register and boot events in the trace.
	Providers []ProviderFixture `yaml:"providers,omitempty"`

	// Environments are named environment-definition hooks.
	Environments map[string]HookFixture `yaml:"environments,omitempty"`
}

// ProviderFixture is a scripted service provider.
type ProviderFixture struct {
	Name          string   `yaml:"name"`
	Routes        []string `yaml:"routes,omitempty"`
	RegisterError string   `yaml:"register_error,omitempty"`
	BootError     string   `yaml:"boot_error,omitempty"`
}

// HookFixture is a scripted environment hook. Config keys are set first,
// then the environment is switched, then Error (if any) is returned.
type HookFixture struct {
	Config      map[string]any `yaml:"config,omitempty"`
	Environment string         `yaml:"environment,omitempty"`
	Error       string         `yaml:"error,omitempty"`
}

// Programmatic holds programmatic override hook values.
type Programmatic struct {
	Env               map[string]string `yaml:"env,omitempty"`
	Config            map[string]any    `yaml:"config,omitempty"`
	Bindings          map[string]string `yaml:"bindings,omitempty"`
	Aliases           map[string]string `yaml:"aliases,omitempty"`
	Providers         map[string]string `yaml:"providers,omitempty"`
	PackageAliases    map[string]string `yaml:"package_aliases,omitempty"`
	PackageProviders  []string          `yaml:"package_providers,omitempty"`
	DefineEnvironment *HookFixture      `yaml:"define_environment,omitempty"`
}

// Expectation is the expected bootstrap outcome.
type Expectation struct {
	// Outcome is completed (the default), skipped or failed.
	Outcome string `yaml:"outcome,omitempty"`

	// ErrorCode is the expected stage error code.
	ErrorCode string `yaml:"error_code,omitempty"`

	// Message is a substring the error message must contain.
	Message string `yaml:"message,omitempty"`
}

// Assertion validates application state after a completed bootstrap.
type Assertion struct {
	Type     string   `yaml:"type"`
	Path     string   `yaml:"path,omitempty"`
	Value    any      `yaml:"value,omitempty"`
	Abstract string   `yaml:"abstract,omitempty"`
	Concrete string   `yaml:"concrete,omitempty"`
	Name     string   `yaml:"name,omitempty"`
	Names    []string `yaml:"names,omitempty"`
	Target   string   `yaml:"target,omitempty"`
	Events   []string `yaml:"events,omitempty"`
}

// Assertion type constants.
const (
	AssertConfigEquals  = "config_equals"
	AssertConfigMissing = "config_missing"
	AssertEnvironment   = "environment"
	AssertBinding       = "binding"
	AssertProviders     = "providers"
	AssertAlias         = "alias"
	AssertGlobal        = "global"
	AssertRoute         = "route"
	AssertWarning       = "warning"
	AssertEventOrder    = "event_order"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch bootstrap.Outcome(s.Expect.Outcome) {
	case "", bootstrap.OutcomeCompleted:
		if s.Expect.ErrorCode != "" {
			return fmt.Errorf("expect: error_code requires outcome failed or skipped")
		}
	case bootstrap.OutcomeSkipped, bootstrap.OutcomeFailed:
		if len(s.Assertions) > 0 {
			return fmt.Errorf("assertions require outcome completed, got %q", s.Expect.Outcome)
		}
	default:
		return fmt.Errorf("expect: unknown outcome %q", s.Expect.Outcome)
	}

	for i, p := range s.Catalog.Providers {
		if p.Name == "" {
			return fmt.Errorf("catalog.providers[%d]: name is required", i)
		}
	}
	for i, a := range s.Catalog.Abstracts {
		if app.Abstract(a).Reserved() {
			return fmt.Errorf("catalog.abstracts[%d]: %q is reserved", i, a)
		}
	}

	for i, d := range s.Declarations {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("declarations[%d]: %w", i, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertConfigEquals:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for config_equals", index)
		}
	case AssertConfigMissing:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for config_missing", index)
		}
	case AssertEnvironment:
		if _, ok := a.Value.(string); !ok {
			return fmt.Errorf("assertions[%d]: string value is required for environment", index)
		}
	case AssertBinding:
		if a.Abstract == "" || a.Concrete == "" {
			return fmt.Errorf("assertions[%d]: abstract and concrete are required for binding", index)
		}
	case AssertProviders:
		if a.Names == nil {
			return fmt.Errorf("assertions[%d]: names is required for providers (use [] for none)", index)
		}
	case AssertAlias:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for alias", index)
		}
		if _, ok := a.Value.(string); !ok {
			return fmt.Errorf("assertions[%d]: string value is required for alias", index)
		}
	case AssertGlobal, AssertRoute:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for %s", index, a.Type)
		}
	case AssertWarning:
		if a.Target == "" {
			return fmt.Errorf("assertions[%d]: target is required for warning", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
