// Package bootstrap builds a fresh application context for each test.
//
// CreateApplication runs eight stages in a fixed order. Each stage pulls its
// bucket of overrides from the test's override registry and applies it to the
// context under construction:
//
//  1. resolve-application: create the context, pick the config loader
//  2. resolve-bindings: binding overrides
//  3. resolve-exception-handling: install the exception handler binding
//  4. resolve-core: clear globals, force the "testing" environment
//  5. resolve-environment-variables: .env loading, env overrides, guards
//  6. resolve-configuration: load units, timezone, aliases, providers, config overrides
//  7. resolve-kernels: bind the HTTP and console kernels
//  8. resolve-bootstrappers: handler, globals, request, providers, environment
//     hooks, provider boot, package bootstrappers, console kernel, route names
//
// # Outcomes
//
// A stage that cannot complete returns a *StageError and aborts the
// pipeline; no context is returned. A "requires environment" guard that is
// not met returns a *SkipError instead: the caller should skip the test, not
// fail it. In both cases every undo callback registered so far runs before
// CreateApplication returns.
//
// # Process Environment
//
// Environment variables are process-wide. A context that mutates them holds
// a package-level lock from stage 5 until its teardown, so two such tests
// never interleave. Tests that mutate the environment must not call
// t.Parallel.
package bootstrap
