package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/testbench/internal/bootstrap"
	"github.com/roach88/testbench/internal/journal"
)

// cliCase is the test case bootstrapped by the config and env commands.
type cliCase struct {
	caps bootstrap.Capabilities
}

func (cliCase) Name() string { return "testbench-cli" }

func (c cliCase) Capabilities() bootstrap.Capabilities { return c.caps }

// session is a bootstrapped application plus the resources backing it.
type session struct {
	app     *bootstrap.Application
	journal *journal.Journal
	logger  *slog.Logger
}

// Close tears the application down and closes the journal.
func (s *session) Close(ctx context.Context) {
	if s.app != nil {
		if err := s.app.Teardown(ctx); err != nil {
			s.logger.Error("teardown failed", "error", err)
		}
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Error("error closing journal", "error", err)
		}
	}
}

// openJournal opens the run journal named by --db.
func openJournal(opts *RootOptions) (*journal.Journal, error) {
	if opts.Database == "" {
		return nil, NewExitError(ExitCommandError, "--db is required")
	}
	j, err := journal.Open(opts.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return j, nil
}

// newBench builds a bench over the real filesystem. Unset path flags fall
// back to the TESTBENCH_* environment variables.
func newBench(opts *RootOptions, logger *slog.Logger, rec bootstrap.Recorder) *bootstrap.Bench {
	benchOpts := []bootstrap.Option{
		bootstrap.WithLogger(logger),
		bootstrap.WithRunningInTests(false),
	}
	if opts.BasePath != "" {
		benchOpts = append(benchOpts, bootstrap.WithBasePath(opts.BasePath))
	}
	if opts.WorkbenchPath != "" {
		benchOpts = append(benchOpts, bootstrap.WithWorkbenchPath(opts.WorkbenchPath))
	}
	if rec != nil {
		benchOpts = append(benchOpts, bootstrap.WithRecorder(rec))
	}
	return bootstrap.New(benchOpts...)
}

// bootstrapSession bootstraps the CLI test case. Failures are returned as
// ExitErrors carrying the stage error code.
func bootstrapSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*session, error) {
	logger := newLogger(opts, cmd)
	s := &session{logger: logger}

	var rec bootstrap.Recorder
	if opts.Database != "" {
		j, err := openJournal(opts)
		if err != nil {
			return nil, err
		}
		s.journal = j
		rec = j
	}

	bench := newBench(opts, logger, rec)
	tc := cliCase{caps: bootstrap.Capabilities{
		Workbench:                bench.Options().WorkbenchPath != "",
		LoadEnvironmentVariables: true,
	}}

	logger.Debug("bootstrapping", "base_path", bench.Options().BasePath, "workbench", tc.caps.Workbench)
	application, err := bench.CreateApplication(ctx, tc)
	if err != nil {
		s.Close(ctx)
		return nil, bootstrapExitError(err)
	}
	s.app = application
	return s, nil
}

func bootstrapExitError(err error) *ExitError {
	if bootstrap.IsSkip(err) {
		return WrapExitError(ExitFailure, "bootstrap skipped", err)
	}
	var se *bootstrap.StageError
	if errors.As(err, &se) {
		return WrapExitError(ExitFailure, fmt.Sprintf("bootstrap failed [%s]", se.Code), err)
	}
	return WrapExitError(ExitFailure, "bootstrap failed", err)
}

// reportBootstrapError writes err through the formatter before it is
// returned, so JSON callers get an error envelope.
func reportBootstrapError(f *OutputFormatter, err error) error {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != ExitFailure {
		return err
	}
	code := CodeBootstrapFailed
	if bootstrap.IsSkip(err) {
		code = CodeBootstrapSkipped
	}
	var details any
	if sc := bootstrap.CodeOf(err); sc != "" {
		details = map[string]string{"stage_code": string(sc)}
	}
	if ferr := f.Error(code, exitErr.Error(), details); ferr != nil {
		return ferr
	}
	return err
}
