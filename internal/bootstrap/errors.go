package bootstrap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/testbench/internal/override"
)

// ErrorCode categorizes stage failures.
type ErrorCode string

const (
	// ErrCodeConfig indicates a malformed or unreadable configuration unit,
	// or a configuration value of the wrong shape.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"

	// ErrCodeInvalidDeclaration indicates a declarative override that could
	// not be normalized.
	ErrCodeInvalidDeclaration ErrorCode = "INVALID_DECLARATION"

	// ErrCodeUnknownBinding indicates a binding override for an abstract
	// that does not accept overrides.
	ErrCodeUnknownBinding ErrorCode = "UNKNOWN_BINDING"

	// ErrCodeReservedBinding indicates a binding override for an abstract
	// the pipeline binds itself.
	ErrCodeReservedBinding ErrorCode = "RESERVED_BINDING"

	// ErrCodeUnknownConcrete indicates a binding to a concrete missing from
	// the catalog.
	ErrCodeUnknownConcrete ErrorCode = "UNKNOWN_CONCRETE"

	// ErrCodeUnknownProvider indicates a provider name missing from the
	// catalog.
	ErrCodeUnknownProvider ErrorCode = "UNKNOWN_PROVIDER"

	// ErrCodeUnknownHook indicates an environment hook name missing from the
	// catalog.
	ErrCodeUnknownHook ErrorCode = "UNKNOWN_HOOK"

	// ErrCodeBindingSealed indicates a binding or alias change after
	// provider registration.
	ErrCodeBindingSealed ErrorCode = "BINDING_SEALED"

	// ErrCodeEnvironmentLocked indicates the environment name changed after
	// the kernels were bound.
	ErrCodeEnvironmentLocked ErrorCode = "ENVIRONMENT_LOCKED"

	// ErrCodeHookFailed indicates a test hook returned an error.
	ErrCodeHookFailed ErrorCode = "HOOK_FAILED"

	// ErrCodeProviderFailed indicates a provider failed to register or boot.
	ErrCodeProviderFailed ErrorCode = "PROVIDER_FAILED"

	// ErrCodeInvalidTimezone indicates app.timezone is not a known zone.
	ErrCodeInvalidTimezone ErrorCode = "INVALID_TIMEZONE"

	// ErrCodeEnv indicates the process environment could not be changed or
	// a .env file could not be parsed.
	ErrCodeEnv ErrorCode = "ENV_FAILED"

	// ErrCodeCancelled indicates the caller's context was cancelled between
	// stages.
	ErrCodeCancelled ErrorCode = "CANCELLED"

	// ErrCodePanic indicates test or fixture code panicked during a stage.
	ErrCodePanic ErrorCode = "PANIC"
)

// StageError is a hard bootstrap failure.
type StageError struct {
	// Code identifies the failure category.
	Code ErrorCode

	// Stage is the stage that failed.
	Stage Stage

	// Message is a human-readable description.
	Message string

	// Target is the override target or binding involved, if any.
	Target string

	// Origin is the origin of the offending override, if any.
	Origin override.Origin

	// Unit is the configuration unit involved, for CONFIG_ERROR.
	Unit string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s (stage=%s", e.Code, e.Message, e.Stage)
	if e.Target != "" {
		fmt.Fprintf(&b, ", target=%s", e.Target)
	}
	if e.Origin != "" {
		fmt.Fprintf(&b, ", origin=%s", e.Origin)
	}
	if e.Unit != "" {
		fmt.Fprintf(&b, ", unit=%s", e.Unit)
	}
	b.WriteString(")")
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *StageError) Unwrap() error {
	return e.Err
}

// SkipError reports an unmet "requires environment" guard. It is a skip
// signal for the test runner, not a failure.
type SkipError struct {
	Stage   Stage
	Key     string
	Message string
}

// Error implements the error interface.
func (e *SkipError) Error() string {
	return fmt.Sprintf("skipped at %s: %s", e.Stage, e.Message)
}

// IsSkip reports whether err is a guard skip.
func IsSkip(err error) bool {
	var se *SkipError
	return errors.As(err, &se)
}

// IsStageError reports whether err is a stage failure.
func IsStageError(err error) bool {
	var se *StageError
	return errors.As(err, &se)
}

// CodeOf returns the stage error code carried by err, or "".
func CodeOf(err error) ErrorCode {
	var se *StageError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Outcome is the result of a bootstrap run as seen by the test runner.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// ClassifyOutcome maps a CreateApplication error to an outcome.
func ClassifyOutcome(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeCompleted
	case IsSkip(err):
		return OutcomeSkipped
	default:
		return OutcomeFailed
	}
}
