package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/testbench/internal/journal"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Test    string
	Outcome string
	Limit   int
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recorded bootstrap runs",
		Long: `List bootstrap runs recorded in the run journal, or show one run with
its stage outcomes and teardown failures.

Examples:
  testbench runs --db ./testbench.db
  testbench runs --db ./testbench.db --test TestCheckout --limit 5
  testbench runs --db ./testbench.db --outcome failed --format json
  testbench runs --db ./testbench.db 0192f0c4-...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return showRun(opts, args[0], cmd)
			}
			return listRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Test, "test", "", "only runs of this test")
	cmd.Flags().StringVar(&opts.Outcome, "outcome", "", "only runs with this outcome (completed|skipped|failed)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "show at most this many recent runs (0 for all)")

	return cmd
}

func listRuns(opts *RunsOptions, cmd *cobra.Command) error {
	switch opts.Outcome {
	case "", "completed", "skipped", "failed":
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid outcome %q", opts.Outcome))
	}

	j, err := openJournal(opts.RootOptions)
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.ListRuns(cmd.Context(), journal.ListOptions{
		TestName: opts.Test,
		Outcome:  opts.Outcome,
		Limit:    opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	if runs == nil {
		runs = []journal.RunRecord{}
	}

	f := newFormatter(opts.RootOptions, cmd)
	if opts.Format == "json" {
		return f.Success(runs)
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTEST\tOUTCOME\tCODE\tENV\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.TestName, r.Outcome, dash(r.ErrorCode), dash(r.Environment),
			r.StartedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func showRun(opts *RunsOptions, id string, cmd *cobra.Command) error {
	j, err := openJournal(opts.RootOptions)
	if err != nil {
		return err
	}
	defer j.Close()

	f := newFormatter(opts.RootOptions, cmd)
	run, err := j.GetRun(cmd.Context(), id)
	if errors.Is(err, journal.ErrNotFound) {
		if ferr := f.Error(CodeNotFound, fmt.Sprintf("run %s not found", id), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load run", err)
	}

	if opts.Format == "json" {
		return f.Success(run)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run %s\n", run.ID)
	fmt.Fprintf(w, "  Test:        %s\n", run.TestName)
	fmt.Fprintf(w, "  Outcome:     %s\n", run.Outcome)
	if run.ErrorCode != "" {
		fmt.Fprintf(w, "  Error code:  %s\n", run.ErrorCode)
	}
	if run.Error != "" {
		fmt.Fprintf(w, "  Error:       %s\n", run.Error)
	}
	fmt.Fprintf(w, "  Base path:   %s\n", dash(run.BasePath))
	fmt.Fprintf(w, "  Loader:      %s\n", dash(run.Loader))
	fmt.Fprintf(w, "  Environment: %s\n", dash(run.Environment))
	if run.Fingerprint != "" {
		fmt.Fprintf(w, "  Fingerprint: %s\n", run.Fingerprint)
	}

	fmt.Fprintln(w, "\nStages:")
	for _, s := range run.Stages {
		fmt.Fprintf(w, "  %d. %-30s %-9s %s\n", s.Index, s.Stage, s.Status,
			(time.Duration(s.DurationUS) * time.Microsecond).String())
		if s.Error != "" {
			fmt.Fprintf(w, "     %s\n", s.Error)
		}
	}

	if len(run.Warnings) > 0 {
		fmt.Fprintln(w, "\nWarnings:")
		for _, warn := range run.Warnings {
			fmt.Fprintf(w, "  [%s] %s (%s): %s\n", warn.Stage, warn.Target, warn.Origin, warn.Message)
		}
	}

	if len(run.TeardownFailures) > 0 {
		fmt.Fprintln(w, "\nTeardown failures:")
		for _, tf := range run.TeardownFailures {
			label := tf.Label
			if label == "" {
				label = "callback"
			}
			fmt.Fprintf(w, "  stage %d %s: %s\n", tf.Stage, label, tf.Error)
		}
	}
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
