package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/roach88/testbench/internal/app"
	"github.com/roach88/testbench/internal/override"
	"github.com/roach88/testbench/internal/teardown"
	"github.com/roach88/testbench/internal/testutil"
)

// fixture implements every optional hook; zero fields are no-ops.
type fixture struct {
	name          string
	caps          Capabilities
	decls         []override.Descriptor
	bindings      map[app.Abstract]string
	env           map[string]string
	aliases       map[string]string
	providers     map[string]string
	pkgAliases    map[string]string
	pkgProviders  []string
	config        map[string]any
	define        func(*app.Context) error
	legacySetUp   func(*app.Context) error
	bootstrappers []Bootstrapper
}

func (f *fixture) Name() string {
	if f.name == "" {
		return "fixture"
	}
	return f.name
}

func (f *fixture) Capabilities() Capabilities { return f.caps }
func (f *fixture) Declarations() []override.Descriptor { return f.decls }
func (f *fixture) OverrideApplicationBindings() map[app.Abstract]string { return f.bindings }
func (f *fixture) EnvironmentVariables() map[string]string { return f.env }
func (f *fixture) OverrideApplicationAliases() map[string]string { return f.aliases }
func (f *fixture) OverrideApplicationProviders() map[string]string { return f.providers }
func (f *fixture) PackageAliases() map[string]string { return f.pkgAliases }
func (f *fixture) PackageProviders() []string { return f.pkgProviders }
func (f *fixture) ConfigOverrides() map[string]any { return f.config }
func (f *fixture) PackageBootstrappers() []Bootstrapper { return f.bootstrappers }

func (f *fixture) DefineEnvironment(c *app.Context) error {
	if f.define == nil {
		return nil
	}
	return f.define(c)
}

func (f *fixture) GetEnvironmentSetUp(c *app.Context) error {
	if f.legacySetUp == nil {
		return nil
	}
	return f.legacySetUp(c)
}

// eventLog collects ordered markers from providers and hooks.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type testProvider struct {
	name    string
	log     *eventLog
	regErr  error
	bootErr error
	boot    func(c *app.Context) error
}

func (p *testProvider) Name() string { return p.name }

func (p *testProvider) Register(c *app.Context) error {
	p.log.add("register:" + p.name)
	return p.regErr
}

func (p *testProvider) Boot(c *app.Context) error {
	p.log.add("boot:" + p.name)
	if p.boot != nil {
		if err := p.boot(c); err != nil {
			return err
		}
	}
	return p.bootErr
}

// testCatalog extends the default catalog with a replaceable cache.store
// abstract and a handful of providers and environment hooks.
func testCatalog(log *eventLog) *app.Catalog {
	cat := app.DefaultCatalog()

	cat.DeclareAbstract("cache.store")
	cat.RegisterConcrete("cache.array", func(*app.Context) (any, error) { return "array", nil }, true)
	cat.RegisterConcrete("cache.file", func(*app.Context) (any, error) { return "file", nil }, true)

	for _, name := range []string{"AppServiceProvider", "EventServiceProvider", "PackageServiceProvider", "ReplacementProvider"} {
		name := name
		cat.RegisterProvider(name, func() app.Provider { return &testProvider{name: name, log: log} })
	}
	cat.RegisterProvider("RouteServiceProvider", func() app.Provider {
		return &testProvider{name: "RouteServiceProvider", log: log, boot: func(c *app.Context) error {
			c.Routes().Add(app.Route{Method: "GET", Path: "/", Name: "home"})
			return nil
		}}
	})
	cat.RegisterProvider("FailingProvider", func() app.Provider {
		return &testProvider{name: "FailingProvider", log: log, regErr: errors.New("register exploded")}
	})

	cat.RegisterEnvironment("use-sqlite", func(c *app.Context) error {
		log.add("hook:use-sqlite")
		c.Configuration().Set("database.default", "sqlite")
		return nil
	})
	cat.RegisterEnvironment("use-array-cache", func(c *app.Context) error {
		log.add("hook:use-array-cache")
		c.Configuration().Set("database.default", "array")
		return nil
	})
	cat.RegisterEnvironment("rebind-loader", func(c *app.Context) error {
		b, _ := app.DefaultCatalog().BindingFor(app.ConfigLoader, app.ConcretePlainLoader)
		return c.SetBinding(b)
	})
	cat.RegisterEnvironment("switch-environment", func(c *app.Context) error {
		c.SetEnvironment("staging")
		return nil
	})
	cat.RegisterEnvironment("broken", func(*app.Context) error {
		return errors.New("hook exploded")
	})
	return cat
}

// memRecorder keeps recorded runs in memory.
type memRecorder struct {
	mu       sync.Mutex
	runs     []Run
	failures map[string][]teardown.Failure
}

func (r *memRecorder) RecordRun(_ context.Context, run Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func (r *memRecorder) RecordTeardown(_ context.Context, runID string, failures []teardown.Failure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures == nil {
		r.failures = make(map[string][]teardown.Failure)
	}
	r.failures[runID] = append(r.failures[runID], failures...)
	return nil
}

func (r *memRecorder) last(t *testing.T) Run {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.runs)
	return r.runs[len(r.runs)-1]
}

func memFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return fs
}

const baseApp = `name: Bench
env: workbench
timezone: UTC
url: http://bench.test
aliases:
  Cache: cache.facade
  DB: db.facade
providers:
  - AppServiceProvider
  - EventServiceProvider
`

type benchEnv struct {
	bench    *Bench
	log      *eventLog
	recorder *memRecorder
}

func newBench(t *testing.T, fs afero.Fs, opts ...Option) benchEnv {
	t.Helper()
	log := &eventLog{}
	rec := &memRecorder{}
	all := append([]Option{
		WithBasePath("/base"),
		WithWorkbenchPath(""),
		WithFS(fs),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithCatalog(testCatalog(log)),
		WithRecorder(rec),
		WithRunIDGenerator(testutil.NewSequentialRunIDs("run")),
		WithClock(testutil.NewDeterministicClock()),
		WithRunningInTests(false),
	}, opts...)
	return benchEnv{bench: New(all...), log: log, recorder: rec}
}

// create bootstraps tc and registers teardown with t.
func (e benchEnv) create(t *testing.T, tc TestCase) *Application {
	t.Helper()
	a, err := e.bench.CreateApplication(context.Background(), tc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Teardown(context.Background()) })
	return a
}
