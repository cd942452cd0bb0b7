package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/testbench/internal/canonical"
)

// ConfigOptions holds flags for the config command.
type ConfigOptions struct {
	*RootOptions
	Path string // single dotted key to print
}

// ConfigOutput is the JSON payload of the config command.
type ConfigOutput struct {
	Fingerprint string `json:"fingerprint"`
	Environment string `json:"environment"`
	Path        string `json:"path,omitempty"`
	Value       any    `json:"value"`
}

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConfigOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Long: `Bootstrap the application at the base path and print its frozen
configuration.

Text output lists one dotted path per line with canonical JSON values.

Examples:
  testbench config --base-path ./app
  testbench config --base-path ./app --path database.default
  testbench config --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Path, "path", "", "print only this dotted key")

	return cmd
}

func runConfig(opts *ConfigOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	s, err := bootstrapSession(ctx, opts.RootOptions, cmd)
	if err != nil {
		return reportBootstrapError(f, err)
	}
	defer s.Close(ctx)

	store := s.app.Configuration()
	if opts.Path != "" && !store.Has(opts.Path) {
		if ferr := f.Error(CodeNotFound, fmt.Sprintf("configuration key %q is not set", opts.Path), nil); ferr != nil {
			return ferr
		}
		return NewExitError(ExitFailure, fmt.Sprintf("configuration key %q is not set", opts.Path))
	}

	if opts.Format == "json" {
		out := ConfigOutput{
			Fingerprint: s.app.Fingerprint,
			Environment: s.app.Environment(),
			Path:        opts.Path,
			Value:       store.All(),
		}
		if opts.Path != "" {
			out.Value = store.Get(opts.Path, nil)
		}
		return f.Success(out)
	}

	w := cmd.OutOrStdout()
	if opts.Path != "" {
		data, err := canonical.Marshal(store.Get(opts.Path, nil))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode value", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	for _, e := range store.Entries() {
		data, err := canonical.Marshal(e.Value)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to encode %s", e.Path), err)
		}
		fmt.Fprintf(w, "%s = %s\n", e.Path, data)
	}
	f.VerboseLog("fingerprint %s", s.app.Fingerprint)
	return nil
}
