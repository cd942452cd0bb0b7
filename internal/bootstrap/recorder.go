package bootstrap

import (
	"context"
	"time"

	"github.com/roach88/testbench/internal/override"
	"github.com/roach88/testbench/internal/teardown"
)

// Warning is a non-fatal override problem, such as an alias override whose
// target alias does not exist.
type Warning struct {
	Stage   Stage           `json:"stage"`
	Target  string          `json:"target"`
	Origin  override.Origin `json:"origin"`
	Message string          `json:"message"`
}

// Run summarizes one CreateApplication call.
type Run struct {
	ID          string
	TestName    string
	BasePath    string
	Loader      string
	Environment string
	Outcome     Outcome
	ErrorCode   ErrorCode
	Error       string
	Fingerprint string
	StartedAt   time.Time
	Stages      []teardown.StageOutcome
	Warnings    []Warning
}

// Recorder persists bootstrap runs. Recording failures are logged and never
// change the bootstrap outcome.
type Recorder interface {
	RecordRun(ctx context.Context, run Run) error
	RecordTeardown(ctx context.Context, runID string, failures []teardown.Failure) error
}

// NopRecorder discards everything.
type NopRecorder struct{}

// RecordRun implements Recorder.
func (NopRecorder) RecordRun(context.Context, Run) error { return nil }

// RecordTeardown implements Recorder.
func (NopRecorder) RecordTeardown(context.Context, string, []teardown.Failure) error { return nil }
