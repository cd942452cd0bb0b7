// Package teardown records the outcome of each bootstrap stage and the undo
// callbacks those stages register.
//
// Callbacks run in strict reverse registration order no matter which stage
// registered them, so teardown mirrors setup. A failing callback never stops
// the remaining ones; failures are collected and returned together.
package teardown

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Status is the result of a single stage.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// StageOutcome records how one stage finished.
type StageOutcome struct {
	Index    int
	Stage    string
	Status   Status
	Err      error
	Duration time.Duration
}

// Callback is a registered undo action.
type Callback struct {
	Stage int
	Label string
	Fn    func() error
}

// Failure is one callback that returned an error or panicked.
type Failure struct {
	Stage int
	Label string
	Err   error
}

func (f Failure) Error() string {
	if f.Label == "" {
		return fmt.Sprintf("stage %d: %v", f.Stage, f.Err)
	}
	return fmt.Sprintf("stage %d (%s): %v", f.Stage, f.Label, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Error aggregates every failed callback of one RunTeardown call.
type Error struct {
	Failures []Failure
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("teardown: %d callback(s) failed: %s", len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap exposes each failure to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f
	}
	return out
}

// IsTeardownError reports whether err carries teardown failures.
func IsTeardownError(err error) bool {
	var te *Error
	return errors.As(err, &te)
}

// Tracker is the per-application stage outcome tracker.
//
// A Tracker is safe for concurrent use, though the pipeline drives it from a
// single goroutine.
type Tracker struct {
	mu        sync.Mutex
	stage     int
	callbacks []Callback
	outcomes  []StageOutcome
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{}
}

// Enter marks the stage subsequent OnTeardown calls are attributed to.
func (t *Tracker) Enter(stage int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = stage
}

// Stage returns the stage most recently entered.
func (t *Tracker) Stage() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage
}

// OnTeardown registers fn to run on teardown.
func (t *Tracker) OnTeardown(fn func() error) {
	t.OnTeardownLabeled("", fn)
}

// OnTeardownLabeled registers fn with a label used in failure reports.
func (t *Tracker) OnTeardownLabeled(label string, fn func() error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, Callback{Stage: t.stage, Label: label, Fn: fn})
}

// Pending returns a copy of the callbacks not yet run, in registration
// order.
func (t *Tracker) Pending() []Callback {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Callback, len(t.callbacks))
	copy(out, t.callbacks)
	return out
}

// Record appends a stage outcome.
func (t *Tracker) Record(o StageOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outcomes = append(t.outcomes, o)
}

// Outcomes returns a copy of the recorded outcomes in stage order.
func (t *Tracker) Outcomes() []StageOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]StageOutcome, len(t.outcomes))
	copy(out, t.outcomes)
	return out
}

// RunTeardown invokes every registered callback in reverse registration
// order and clears them. A callback that returns an error or panics is
// collected; the rest still run. Returns *Error when anything failed.
//
// Calling RunTeardown again without new registrations is a no-op.
func (t *Tracker) RunTeardown() error {
	t.mu.Lock()
	callbacks := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()

	var failures []Failure
	for i := len(callbacks) - 1; i >= 0; i-- {
		cb := callbacks[i]
		if err := invoke(cb.Fn); err != nil {
			failures = append(failures, Failure{Stage: cb.Stage, Label: cb.Label, Err: err})
		}
	}

	if len(failures) > 0 {
		return &Error{Failures: failures}
	}
	return nil
}

func invoke(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
