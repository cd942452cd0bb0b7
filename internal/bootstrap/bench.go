package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"

	"github.com/roach88/testbench/internal/app"
	"github.com/roach88/testbench/internal/override"
	"github.com/roach88/testbench/internal/teardown"
)

// Bench creates application contexts. A Bench holds no per-test state and
// may be shared by tests running concurrently.
type Bench struct {
	opts Options
}

// New creates a Bench.
func New(opts ...Option) *Bench {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.BasePath == "" {
		o.BasePath = o.DefaultBasePath
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Recorder == nil {
		o.Recorder = NopRecorder{}
	}
	return &Bench{opts: o}
}

// Options returns the resolved options.
func (b *Bench) Options() Options {
	return b.opts
}

// Application is a bootstrapped context handed to a test.
type Application struct {
	*app.Context

	// RunID identifies this bootstrap run in the recorder.
	RunID string

	// Fingerprint is the canonical hash of the frozen configuration.
	Fingerprint string

	// Warnings lists non-fatal override problems.
	Warnings []Warning

	bench *Bench
}

// Teardown destroys the context and records any teardown failures. The
// returned error is the teardown failure report.
func (a *Application) Teardown(ctx context.Context) error {
	err := a.Destroy()
	a.bench.recordTeardown(ctx, a.RunID, err)
	return err
}

// CreateApplication runs the pipeline for tc.
//
// On success the configuration store is frozen and the returned
// application owns every undo callback registered during bootstrap; the
// caller must call Teardown. On failure the callbacks have already run and
// the error is a *StageError, a *SkipError, or a cancellation. A panic in
// test or fixture code fails the stage with ErrCodePanic.
//
// A context that mutates the process environment holds it until Teardown.
// Bootstrapping a second such context on the same goroutine before tearing
// down the first blocks forever.
func (b *Bench) CreateApplication(ctx context.Context, tc TestCase) (*Application, error) {
	p := &pipeline{
		opts:     b.opts,
		tc:       tc,
		registry: override.NewRegistry(),
		logger:   b.opts.Logger.With("test", tc.Name()),
	}

	run := Run{
		ID:        b.opts.RunIDs.Generate(),
		TestName:  tc.Name(),
		StartedAt: b.opts.Clock.Now(),
	}

	err := p.run(ctx)

	run.Stages = p.outcomes
	run.Warnings = p.warnings
	run.Outcome = ClassifyOutcome(err)
	if p.app != nil {
		run.BasePath = p.app.BasePath()
		run.Loader = p.loader
		run.Environment = p.app.Environment()
	}

	if err != nil {
		run.ErrorCode = CodeOf(err)
		run.Error = err.Error()
		// Teardown failures reference the run, so the run is recorded first.
		b.recordRun(ctx, run)
		if p.app != nil {
			tdErr := p.app.Destroy()
			b.recordTeardown(ctx, run.ID, tdErr)
		}
		return nil, err
	}

	p.registry.Reset()
	run.Fingerprint = p.fingerprint
	b.recordRun(ctx, run)

	return &Application{
		Context:     p.app,
		RunID:       run.ID,
		Fingerprint: p.fingerprint,
		Warnings:    p.warnings,
		bench:       b,
	}, nil
}

func (b *Bench) recordRun(ctx context.Context, run Run) {
	if err := b.opts.Recorder.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		b.opts.Logger.Warn("failed to record bootstrap run", "run_id", run.ID, "error", err)
	}
}

func (b *Bench) recordTeardown(ctx context.Context, runID string, err error) {
	var te *teardown.Error
	if !errors.As(err, &te) {
		return
	}
	if recErr := b.opts.Recorder.RecordTeardown(context.WithoutCancel(ctx), runID, te.Failures); recErr != nil {
		b.opts.Logger.Warn("failed to record teardown failures", "run_id", runID, "error", recErr)
	}
}

// pipeline is the state of one CreateApplication call.
type pipeline struct {
	opts     Options
	tc       TestCase
	registry *override.Registry
	logger   *slog.Logger

	app      *app.Context
	caps     Capabilities
	loader      string
	env         *envSession
	outcomes    []teardown.StageOutcome
	warnings    []Warning
	fingerprint string
}

type stageFunc func(p *pipeline) error

var stageFuncs = map[Stage]stageFunc{
	StageResolveApplication:          (*pipeline).resolveApplication,
	StageResolveBindings:             (*pipeline).resolveBindings,
	StageResolveExceptionHandling:    (*pipeline).resolveExceptionHandling,
	StageResolveCore:                 (*pipeline).resolveCore,
	StageResolveEnvironmentVariables: (*pipeline).resolveEnvironmentVariables,
	StageResolveConfiguration:        (*pipeline).resolveConfiguration,
	StageResolveKernels:              (*pipeline).resolveKernels,
	StageResolveBootstrappers:        (*pipeline).resolveBootstrappers,
}

func (p *pipeline) run(ctx context.Context) error {
	for _, stage := range Stages {
		if err := ctx.Err(); err != nil {
			return &StageError{
				Code:    ErrCodeCancelled,
				Stage:   stage,
				Message: "bootstrap cancelled",
				Err:     err,
			}
		}

		if p.app != nil {
			p.app.Tracker().Enter(int(stage))
		}

		start := p.opts.Clock.Now()
		err := p.runStage(stage)
		outcome := teardown.StageOutcome{
			Index:    int(stage),
			Stage:    stage.String(),
			Status:   statusOf(err),
			Err:      err,
			Duration: p.opts.Clock.Now().Sub(start),
		}
		p.outcomes = append(p.outcomes, outcome)
		if p.app != nil {
			p.app.Tracker().Record(outcome)
		}

		p.logger.Debug("stage finished",
			"stage", stage.String(),
			"index", int(stage),
			"status", string(outcome.Status))

		if err != nil {
			return err
		}
	}
	return nil
}

// runStage calls the stage function, turning a panic into a stage failure
// so the undo callbacks registered so far still run.
func (p *pipeline) runStage(stage Stage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("stage panicked",
				"stage", stage.String(),
				"panic", r,
				"stack", string(debug.Stack()))
			err = &StageError{
				Code:    ErrCodePanic,
				Stage:   stage,
				Message: fmt.Sprintf("panic: %v", r),
			}
		}
	}()
	return stageFuncs[stage](p)
}

func statusOf(err error) teardown.Status {
	switch {
	case err == nil:
		return teardown.StatusCompleted
	case IsSkip(err):
		return teardown.StatusSkipped
	default:
		return teardown.StatusFailed
	}
}

func (p *pipeline) warn(stage Stage, req override.Request, msg string) {
	p.warnings = append(p.warnings, Warning{
		Stage:   stage,
		Target:  req.Target,
		Origin:  req.Origin,
		Message: msg,
	})
	p.logger.Warn("override ignored",
		"stage", stage.String(),
		"target", req.Target,
		"origin", string(req.Origin),
		"reason", msg)
}

func stageErr(stage Stage, code ErrorCode, req override.Request, format string, args ...any) *StageError {
	return &StageError{
		Code:    code,
		Stage:   stage,
		Message: fmt.Sprintf(format, args...),
		Target:  req.Target,
		Origin:  req.Origin,
	}
}
