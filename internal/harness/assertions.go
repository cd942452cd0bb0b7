package harness

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/testbench/internal/app"
	"github.com/roach88/testbench/internal/bootstrap"
	"github.com/roach88/testbench/internal/canonical"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Events   []string // Fixture events for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Events) > 0 {
		fmt.Fprintf(&buf, "\nFixture events:\n")
		for i, event := range e.Events {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, event)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against a bootstrapped
// application and returns one message per failure.
func EvaluateAssertions(a *bootstrap.Application, events []string, assertions []Assertion) []string {
	var errs []string
	for i, assertion := range assertions {
		if err := evaluate(a, events, assertion); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluate(a *bootstrap.Application, events []string, assertion Assertion) error {
	switch assertion.Type {
	case AssertConfigEquals:
		return assertConfigEquals(a.Context, assertion)
	case AssertConfigMissing:
		if a.Configuration().Has(assertion.Path) {
			return &AssertionError{
				Type:     AssertConfigMissing,
				Expected: fmt.Sprintf("%s unset", assertion.Path),
				Actual:   fmt.Sprintf("%v", a.Configuration().Get(assertion.Path, nil)),
			}
		}
		return nil
	case AssertEnvironment:
		if got := a.Environment(); got != assertion.Value {
			return &AssertionError{Type: AssertEnvironment, Expected: fmt.Sprint(assertion.Value), Actual: got}
		}
		return nil
	case AssertBinding:
		return assertBinding(a.Context, assertion)
	case AssertProviders:
		got := a.ProviderNames()
		if !slices.Equal(got, assertion.Names) {
			return &AssertionError{
				Type:     AssertProviders,
				Expected: fmt.Sprintf("%v", assertion.Names),
				Actual:   fmt.Sprintf("%v", got),
				Events:   events,
			}
		}
		return nil
	case AssertAlias:
		got, ok := a.Alias(assertion.Name)
		if !ok || got != assertion.Value {
			actual := "not registered"
			if ok {
				actual = got
			}
			return &AssertionError{
				Type:     AssertAlias,
				Expected: fmt.Sprintf("%s -> %v", assertion.Name, assertion.Value),
				Actual:   actual,
			}
		}
		return nil
	case AssertGlobal:
		if _, ok := a.Globals().Get(assertion.Name); !ok {
			return &AssertionError{
				Type:     AssertGlobal,
				Expected: fmt.Sprintf("global %s registered", assertion.Name),
				Actual:   fmt.Sprintf("%v", a.Globals().Names()),
			}
		}
		return nil
	case AssertRoute:
		if _, ok := a.Routes().ByName(assertion.Name); !ok {
			return &AssertionError{
				Type:     AssertRoute,
				Expected: fmt.Sprintf("route %s registered", assertion.Name),
				Actual:   "not found",
				Events:   events,
			}
		}
		return nil
	case AssertWarning:
		for _, w := range a.Warnings {
			if w.Target == assertion.Target {
				return nil
			}
		}
		return &AssertionError{
			Type:     AssertWarning,
			Expected: fmt.Sprintf("warning for %s", assertion.Target),
			Actual:   fmt.Sprintf("%d warnings, none for %s", len(a.Warnings), assertion.Target),
		}
	case AssertEventOrder:
		return assertEventOrder(events, assertion)
	}
	return fmt.Errorf("unknown assertion type %q", assertion.Type)
}

// assertConfigEquals compares canonical encodings so YAML integers match
// stored integers regardless of their Go type.
func assertConfigEquals(c *app.Context, assertion Assertion) error {
	store := c.Configuration()
	if !store.Has(assertion.Path) {
		return &AssertionError{
			Type:     AssertConfigEquals,
			Expected: fmt.Sprintf("%s = %v", assertion.Path, assertion.Value),
			Actual:   "not set",
		}
	}

	got, err := canonical.Marshal(store.Get(assertion.Path, nil))
	if err != nil {
		return fmt.Errorf("encode stored value: %w", err)
	}
	want, err := canonical.Marshal(assertion.Value)
	if err != nil {
		return fmt.Errorf("encode expected value: %w", err)
	}
	if !bytes.Equal(got, want) {
		return &AssertionError{
			Type:     AssertConfigEquals,
			Expected: fmt.Sprintf("%s = %s", assertion.Path, want),
			Actual:   string(got),
		}
	}
	return nil
}

func assertBinding(c *app.Context, assertion Assertion) error {
	b, ok := c.Binding(app.Abstract(assertion.Abstract))
	if !ok {
		return &AssertionError{
			Type:     AssertBinding,
			Expected: fmt.Sprintf("%s -> %s", assertion.Abstract, assertion.Concrete),
			Actual:   "unbound",
		}
	}
	if b.Concrete != assertion.Concrete {
		return &AssertionError{
			Type:     AssertBinding,
			Expected: fmt.Sprintf("%s -> %s", assertion.Abstract, assertion.Concrete),
			Actual:   fmt.Sprintf("%s -> %s", assertion.Abstract, b.Concrete),
		}
	}
	return nil
}

// assertEventOrder checks that events appear in the given order.
// Events don't need to be consecutive.
func assertEventOrder(events []string, assertion Assertion) error {
	next := 0
	for _, e := range events {
		if next < len(assertion.Events) && e == assertion.Events[next] {
			next++
		}
	}
	if next == len(assertion.Events) {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventOrder,
		Expected: fmt.Sprintf("events in order: %v", assertion.Events),
		Actual:   fmt.Sprintf("missing or out of order: %s", assertion.Events[next]),
		Events:   events,
	}
}
