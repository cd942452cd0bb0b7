package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/spf13/afero"

	"github.com/roach88/testbench/internal/bootstrap"
	"github.com/roach88/testbench/internal/journal"
	"github.com/roach88/testbench/internal/testutil"
)

// Harness is the scenario execution state for a single run.
type Harness struct {
	scenario *Scenario
	fs       afero.Fs
	journal  *journal.Journal
	events   *eventLog
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory filesystem and journal.
// The returned error reports harness problems (unwritable fixtures, a
// broken journal); scenario failures are reported through Result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
//
// Execution flow:
// 1. Seed the in-memory filesystem with the scenario files
// 2. Build the catalog and bench with deterministic helpers
// 3. Bootstrap the scenario test case
// 4. Check the outcome and evaluate assertions
// 5. Tear the application down and collect the trace from the journal
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	j, err := journal.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer j.Close()

	h := &Harness{
		scenario: scenario,
		fs:       afero.NewMemMapFs(),
		journal:  j,
		events:   &eventLog{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	if err := h.seedFiles(); err != nil {
		return nil, err
	}

	return h.execute(ctx)
}

func (h *Harness) basePath() string {
	if h.scenario.BasePath != "" {
		return h.scenario.BasePath
	}
	return DefaultBasePath
}

func (h *Harness) seedFiles() error {
	for name, content := range h.scenario.Files {
		p := name
		if !strings.HasPrefix(p, "/") {
			p = path.Join(h.basePath(), p)
		}
		if err := afero.WriteFile(h.fs, p, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write scenario file %s: %w", name, err)
		}
	}
	return nil
}

func (h *Harness) bench() *bootstrap.Bench {
	runningInTests := true
	if h.scenario.RunningInTests != nil {
		runningInTests = *h.scenario.RunningInTests
	}
	return bootstrap.New(
		bootstrap.WithBasePath(h.basePath()),
		bootstrap.WithWorkbenchPath(h.scenario.WorkbenchPath),
		bootstrap.WithFS(h.fs),
		bootstrap.WithLogger(h.logger),
		bootstrap.WithCatalog(buildCatalog(h.scenario.Catalog, h.events)),
		bootstrap.WithRecorder(h.journal),
		bootstrap.WithRunIDGenerator(testutil.NewSequentialRunIDs("scenario")),
		bootstrap.WithClock(testutil.NewDeterministicClock()),
		bootstrap.WithRunningInTests(runningInTests),
		bootstrap.WithLegacyProvider(h.scenario.LegacyProvider),
	)
}

func (h *Harness) execute(ctx context.Context) (*Result, error) {
	result := NewResult()
	tc := &scenarioCase{s: h.scenario, log: h.events}

	application, err := h.bench().CreateApplication(ctx, tc)
	result.Outcome = string(bootstrap.ClassifyOutcome(err))
	if err != nil {
		result.ErrorCode = string(bootstrap.CodeOf(err))
		result.Error = err.Error()
	}
	h.checkExpectation(result, err)

	if application != nil {
		result.Fingerprint = application.Fingerprint
		for _, msg := range EvaluateAssertions(application, h.events.all(), h.scenario.Assertions) {
			result.AddError(msg)
		}
		if tdErr := application.Teardown(ctx); tdErr != nil {
			h.logger.Warn("teardown failed", "scenario", h.scenario.Name, "error", tdErr)
		}
	}

	if err := h.collectTrace(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (h *Harness) checkExpectation(result *Result, err error) {
	want := h.scenario.Expect
	wantOutcome := want.Outcome
	if wantOutcome == "" {
		wantOutcome = string(bootstrap.OutcomeCompleted)
	}

	if result.Outcome != wantOutcome {
		msg := fmt.Sprintf("expected outcome %s, got %s", wantOutcome, result.Outcome)
		if err != nil {
			msg += ": " + err.Error()
		}
		result.AddError(msg)
		return
	}
	if want.ErrorCode != "" && result.ErrorCode != want.ErrorCode {
		result.AddError(fmt.Sprintf("expected error code %s, got %s", want.ErrorCode, result.ErrorCode))
	}
	if want.Message != "" && !strings.Contains(result.Error, want.Message) {
		result.AddError(fmt.Sprintf("expected error containing %q, got %q", want.Message, result.Error))
	}
}

// collectTrace reads the recorded run back from the journal and appends
// stage outcomes, fixture events, warnings and teardown failures.
func (h *Harness) collectTrace(ctx context.Context, result *Result) error {
	runs, err := h.journal.ListRuns(ctx, journal.ListOptions{TestName: h.scenario.Name, Limit: 1})
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		return errors.New("bootstrap run was not recorded")
	}
	run, err := h.journal.GetRun(ctx, runs[0].ID)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}

	for _, s := range run.Stages {
		result.addTrace(TraceEvent{Type: EventStage, Stage: s.Stage, Status: s.Status})
	}
	for _, e := range h.events.all() {
		result.addTrace(TraceEvent{Type: EventFixture, Name: e})
	}
	for _, w := range run.Warnings {
		result.addTrace(TraceEvent{
			Type:    EventWarning,
			Stage:   w.Stage,
			Target:  w.Target,
			Origin:  w.Origin,
			Message: w.Message,
		})
	}
	for _, f := range run.TeardownFailures {
		result.addTrace(TraceEvent{
			Type:    EventTeardown,
			Name:    f.Label,
			Message: f.Error,
		})
	}
	return nil
}
