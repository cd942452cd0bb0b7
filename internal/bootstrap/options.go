package bootstrap

import (
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/roach88/testbench/internal/app"
)

// Environment variables consulted when no path option is given.
const (
	EnvBasePath      = "TESTBENCH_BASE_PATH"
	EnvWorkbenchPath = "TESTBENCH_WORKBENCH_PATH"
)

// RunIDGenerator produces bootstrap run identifiers.
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run IDs.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Clock supplies stage timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options configures a Bench.
type Options struct {
	BasePath        string
	DefaultBasePath string
	WorkbenchPath   string
	FS              afero.Fs
	Logger          *slog.Logger
	Catalog         *app.Catalog
	Recorder        Recorder
	RunIDs          RunIDGenerator
	Clock           Clock
	RunningInTests  bool
	LegacyProvider  bool
}

// Option mutates Options.
type Option func(*Options)

// WithBasePath sets the application base path.
func WithBasePath(path string) Option {
	return func(o *Options) { o.BasePath = path }
}

// WithDefaultBasePath sets the base path used when neither WithBasePath
// nor TESTBENCH_BASE_PATH provide one.
func WithDefaultBasePath(path string) Option {
	return func(o *Options) { o.DefaultBasePath = path }
}

// WithWorkbenchPath sets the package workbench directory whose config/
// units override base units.
func WithWorkbenchPath(path string) Option {
	return func(o *Options) { o.WorkbenchPath = path }
}

// WithFS sets the filesystem configuration and .env files are read from.
func WithFS(fs afero.Fs) Option {
	return func(o *Options) { o.FS = fs }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithCatalog sets the catalog overrides resolve names against.
func WithCatalog(cat *app.Catalog) Option {
	return func(o *Options) { o.Catalog = cat }
}

// WithRecorder sets the run recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Options) { o.Recorder = r }
}

// WithRunIDGenerator sets the run ID generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(o *Options) { o.RunIDs = g }
}

// WithClock sets the clock used for stage timings.
func WithClock(c Clock) Option {
	return func(o *Options) { o.Clock = c }
}

// WithRunningInTests overrides test runner detection. When true, stage 4
// forces the "testing" environment.
func WithRunningInTests(v bool) Option {
	return func(o *Options) { o.RunningInTests = v }
}

// WithLegacyProvider enables the legacy compatibility provider.
func WithLegacyProvider(v bool) Option {
	return func(o *Options) { o.LegacyProvider = v }
}

func defaultOptions() Options {
	return Options{
		BasePath:       os.Getenv(EnvBasePath),
		WorkbenchPath:  os.Getenv(EnvWorkbenchPath),
		FS:             afero.NewOsFs(),
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Catalog:        app.DefaultCatalog(),
		Recorder:       NopRecorder{},
		RunIDs:         UUIDv7Generator{},
		Clock:          systemClock{},
		RunningInTests: testing.Testing(),
	}
}
