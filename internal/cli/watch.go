package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Filter   string
	Debounce time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <scenarios-dir>",
		Short: "Re-run scenarios when they change",
		Long: `Run every scenario once, then watch the directory and re-run each
scenario file that is created or modified.

Stop with Ctrl+C.

Examples:
  testbench watch ./scenarios
  testbench watch ./scenarios --filter "provider_*" --debounce 500ms`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 200*time.Millisecond, "quiet period before re-running a changed scenario")

	return cmd
}

func runWatch(opts *WatchOptions, dir string, cmd *cobra.Command) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}

	logger := newLogger(opts.RootOptions, cmd)
	testOpts := &TestOptions{RootOptions: opts.RootOptions, Filter: opts.Filter}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create watcher", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return WrapExitError(ExitCommandError, "failed to watch directory", err)
	}

	// A failing initial run is reported but does not stop the watch.
	if err := runTests(testOpts, dir, cmd); err != nil && GetExitCode(err) != ExitFailure {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "\nWatching %s for changes...\n", dir)

	sw := &scenarioWatcher{
		opts:     testOpts,
		cmd:      cmd,
		logger:   logger,
		debounce: opts.Debounce,
		pending:  make(map[string]time.Time),
	}
	sw.loop(ctx, watcher)

	fmt.Fprintln(w, "Stopped watching.")
	return nil
}

// scenarioWatcher batches file events and re-runs the scenarios they touch.
type scenarioWatcher struct {
	opts     *TestOptions
	cmd      *cobra.Command
	logger   *slog.Logger
	debounce time.Duration
	pending  map[string]time.Time
}

func (sw *scenarioWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	tick := sw.debounce / 2
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.logger.Debug("watch cancelled")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			sw.handleEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Error("watch error", "error", err)

		case now := <-ticker.C:
			sw.flush(now)
		}
	}
}

func (sw *scenarioWatcher) handleEvent(event fsnotify.Event) {
	if !isScenarioFile(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if sw.opts.Filter != "" {
		name := filepath.Base(event.Name)
		name = name[:len(name)-len(filepath.Ext(name))]
		if matched, _ := filepath.Match(sw.opts.Filter, name); !matched {
			return
		}
	}
	sw.logger.Debug("scenario changed", "path", event.Name, "op", event.Op.String())
	sw.pending[event.Name] = time.Now()
}

// flush re-runs every pending scenario whose last event is older than the
// debounce period.
func (sw *scenarioWatcher) flush(now time.Time) {
	var ready []string
	for path, at := range sw.pending {
		if now.Sub(at) >= sw.debounce {
			ready = append(ready, path)
		}
	}
	if len(ready) == 0 {
		return
	}
	slices.Sort(ready)

	w := sw.cmd.OutOrStdout()
	fmt.Fprintf(w, "\n[%s] change detected\n", now.Format(time.TimeOnly))

	var passed, failed int
	for _, path := range ready {
		delete(sw.pending, path)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if runScenario(path, sw.opts, sw.cmd).Pass {
			passed++
		} else {
			failed++
		}
	}
	fmt.Fprintf(w, "Re-run: %d passed, %d failed\n", passed, failed)
}
