// Package override collects the override requests a test declares and hands
// them to the bootstrap pipeline one kind at a time.
//
// Requests arrive from three sources:
//
//  1. Programmatic hooks: methods on the test case, evaluated by the pipeline
//  2. Annotations: the legacy declarative form
//  3. Attributes: the current declarative form
//
// All three funnel into one Registry. Drain returns the requests of a kind
// ordered by origin (programmatic, annotation, attribute) and, within an
// origin, by registration order. Applying them in that order means later
// sources overwrite earlier ones, so declarative overrides always win over
// code-level defaults.
//
// Declarative sources are plain data (Descriptor). They are parsed once per
// test and normalized into Requests; the pipeline never inspects the test's
// concrete type to find them.
package override
