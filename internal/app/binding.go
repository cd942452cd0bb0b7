package app

import (
	"errors"
	"fmt"
)

// Abstract identifies an injection point in the binding table.
type Abstract string

// Injection points the pipeline resolves by identifier.
const (
	ConfigLoader     Abstract = "config.loader"
	ExceptionHandler Abstract = "exception.handler"
	HTTPKernel       Abstract = "http.kernel"
	ConsoleKernel    Abstract = "console.kernel"
)

// Reserved reports whether a is bound by the pipeline itself and therefore
// cannot be replaced by an override.
func (a Abstract) Reserved() bool {
	switch a {
	case ExceptionHandler, HTTPKernel, ConsoleKernel:
		return true
	}
	return false
}

// Factory builds the concrete value for a binding.
type Factory func(c *Context) (any, error)

// Binding maps an abstract to a named concrete factory.
type Binding struct {
	Abstract Abstract
	Concrete string
	Factory  Factory
	Shared   bool
}

var (
	// ErrSealed is returned when the binding or alias table is modified
	// after providers have been registered.
	ErrSealed = errors.New("app: binding table is sealed")

	// ErrUnbound is returned by Make for an abstract with no binding.
	ErrUnbound = errors.New("app: abstract is not bound")
)

// SealedError identifies which mutation hit a sealed context.
type SealedError struct {
	Op     string
	Target string
}

func (e *SealedError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Target, ErrSealed)
}

func (e *SealedError) Unwrap() error {
	return ErrSealed
}
