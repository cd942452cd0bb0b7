package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/testbench/internal/app"
)

// EnvOutput is the JSON payload of the env command.
type EnvOutput struct {
	Environment string    `json:"environment"`
	About       app.About `json:"about"`
}

// NewEnvCommand creates the env command.
func NewEnvCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Print the application environment",
		Long: `Bootstrap the application and run its console "env" command.

Examples:
  testbench env --base-path ./app
  APP_ENV=staging testbench env --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnv(rootOpts, cmd)
		},
	}
	return cmd
}

func runEnv(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	ctx := cmd.Context()

	s, err := bootstrapSession(ctx, opts, cmd)
	if err != nil {
		return reportBootstrapError(f, err)
	}
	defer s.Close(ctx)

	if opts.Format == "json" {
		return f.Success(EnvOutput{
			Environment: s.app.Environment(),
			About:       app.Summarize(s.app.Context),
		})
	}

	inst, err := s.app.Make(app.ConsoleKernel)
	if err != nil {
		return WrapExitError(ExitCommandError, "console kernel unavailable", err)
	}
	console, ok := inst.(*app.Console)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("console kernel has type %T", inst))
	}
	out, err := console.Call("env")
	if err != nil {
		return WrapExitError(ExitCommandError, "env command failed", err)
	}
	return f.Success(out)
}
