// Package harness runs bootstrap scenarios described in YAML.
//
// A scenario seeds an in-memory filesystem, extends the built-in catalog
// with fixture providers, concretes and environment hooks, applies
// declarative and programmatic overrides, and then runs the full bootstrap
// pipeline. The resulting outcome, configuration and application state are
// checked against the scenario's expectations and assertions.
//
// # Scenario Format
//
//	name: provider_overrides
//	description: "Providers are replaced in place"
//	base_path: /app
//	capabilities:
//	  workbench: false
//	  load_environment_variables: true
//	files:
//	  config/app.yaml: |
//	    providers: [AppServiceProvider, EventServiceProvider]
//	  .env: |
//	    APP_KEY=base64:abc
//	catalog:
//	  abstracts: [cache.store]
//	  concretes: [cache.array]
//	  providers:
//	    - name: AppServiceProvider
//	  environments:
//	    use-array-cache:
//	      config: { cache.default: array }
//	declarations:
//	  - kind: provider
//	    target: EventServiceProvider
//	    value: ReplacementProvider
//	programmatic:
//	  config: { app.debug: true }
//	expect:
//	  outcome: completed
//	assertions:
//	  - type: providers
//	    names: [AppServiceProvider, ReplacementProvider]
//
// # Assertion Types
//
//   - config_equals: the value at path equals value (canonical comparison)
//   - config_missing: nothing is stored at path
//   - environment: the bound environment name equals value
//   - binding: abstract is bound to concrete
//   - providers: the ordered provider list equals names
//   - alias: the alias name resolves to value
//   - global: a global named name is registered
//   - route: a route named name is registered
//   - warning: a non-fatal override warning names target
//   - event_order: fixture events occurred in the given order
//
// # Deterministic Testing
//
// Every run uses a testutil.DeterministicClock, sequential run IDs and a
// private in-memory journal, so traces are identical across runs and can
// be compared against golden files.
package harness
