package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/testbench/internal/override"
	"github.com/roach88/testbench/internal/teardown"
)

// These tests mutate the process environment and must not run in parallel.

func unsetForTest(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if prev, ok := os.LookupEnv(k); ok {
			t.Cleanup(func() { os.Setenv(k, prev) })
		}
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestEnvironmentVariables_AppliedAndRestored(t *testing.T) {
	unsetForTest(t, "TB_PROG_ONLY", "TB_SHARED")
	t.Setenv("TB_PREEXISTING", "original")

	env := newBench(t, memFS(t, map[string]string{"/base/config/app.yaml": baseApp}))
	a, err := env.bench.CreateApplication(context.Background(), &fixture{
		env: map[string]string{
			"TB_PROG_ONLY":   "prog",
			"TB_SHARED":      "prog",
			"TB_PREEXISTING": "changed",
		},
		decls: []override.Descriptor{
			{Kind: override.KindEnv, Target: "TB_SHARED", Value: "declared"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "prog", os.Getenv("TB_PROG_ONLY"))
	assert.Equal(t, "declared", os.Getenv("TB_SHARED"), "declarative env overrides win")
	assert.Equal(t, "changed", os.Getenv("TB_PREEXISTING"))

	require.NoError(t, a.Teardown(context.Background()))

	_, ok := os.LookupEnv("TB_PROG_ONLY")
	assert.False(t, ok)
	_, ok = os.LookupEnv("TB_SHARED")
	assert.False(t, ok)
	assert.Equal(t, "original", os.Getenv("TB_PREEXISTING"))
}

func TestEnvironmentVariables_FeedConfiguration(t *testing.T) {
	unsetForTest(t, "APP_NAME")

	env := newBench(t, afero.NewMemMapFs(), WithBasePath(""))
	a := env.create(t, &fixture{env: map[string]string{"APP_NAME": "FromEnv"}})

	assert.Equal(t, "FromEnv", a.Configuration().Get("app.name", nil))
}

func TestEnvironmentVariables_DotenvCapability(t *testing.T) {
	unsetForTest(t, "TB_DOTENV_A", "TB_DOTENV_C")
	t.Setenv("TB_DOTENV_B", "process")

	fs := memFS(t, map[string]string{
		"/base/config/app.yaml": baseApp,
		"/base/.env":            "TB_DOTENV_A=from-file\nTB_DOTENV_B=from-file\nTB_DOTENV_C=\"quoted value\"\n",
	})

	t.Run("disabled", func(t *testing.T) {
		newBench(t, fs).create(t, &fixture{})
		_, ok := os.LookupEnv("TB_DOTENV_A")
		assert.False(t, ok)
	})

	t.Run("enabled", func(t *testing.T) {
		a, err := newBench(t, fs).bench.CreateApplication(context.Background(), &fixture{
			caps: Capabilities{LoadEnvironmentVariables: true},
		})
		require.NoError(t, err)

		assert.Equal(t, "from-file", os.Getenv("TB_DOTENV_A"))
		assert.Equal(t, "process", os.Getenv("TB_DOTENV_B"), ".env never overrides the process")
		assert.Equal(t, "quoted value", os.Getenv("TB_DOTENV_C"))

		require.NoError(t, a.Teardown(context.Background()))
		_, ok := os.LookupEnv("TB_DOTENV_A")
		assert.False(t, ok)
	})
}

func TestEnvironmentVariables_MissingDotenvIsEmpty(t *testing.T) {
	env := newBench(t, memFS(t, map[string]string{"/base/config/app.yaml": baseApp}))
	env.create(t, &fixture{caps: Capabilities{LoadEnvironmentVariables: true}})
}

func TestEnvironmentVariables_MalformedDotenv(t *testing.T) {
	fs := memFS(t, map[string]string{"/base/.env": "TB_BAD='unterminated\n"})
	env := newBench(t, fs)

	_, err := env.bench.CreateApplication(context.Background(), &fixture{caps: Capabilities{LoadEnvironmentVariables: true}})
	assert.Equal(t, ErrCodeEnv, CodeOf(err))
}

func TestRequireEnv_MissingSkips(t *testing.T) {
	unsetForTest(t, "TB_REQUIRED", "TB_SET_BEFORE_GUARD")

	env := newBench(t, memFS(t, map[string]string{"/base/config/broken.yaml": "key: [unterminated\n"}))
	a, err := env.bench.CreateApplication(context.Background(), &fixture{
		env: map[string]string{"TB_SET_BEFORE_GUARD": "1"},
		decls: []override.Descriptor{
			{Kind: override.KindRequireEnv, Target: "TB_REQUIRED"},
		},
	})

	assert.Nil(t, a)
	require.Error(t, err)
	assert.True(t, IsSkip(err))
	assert.False(t, IsStageError(err))
	assert.Equal(t, OutcomeSkipped, ClassifyOutcome(err))

	var skip *SkipError
	require.True(t, errors.As(err, &skip))
	assert.Equal(t, "TB_REQUIRED", skip.Key)
	assert.Equal(t, StageResolveEnvironmentVariables, skip.Stage)
	assert.Equal(t, "Missing required environment variable `TB_REQUIRED`", skip.Message)

	_, ok := os.LookupEnv("TB_SET_BEFORE_GUARD")
	assert.False(t, ok, "teardown ran before the skip was returned")

	run := env.recorder.last(t)
	assert.Equal(t, OutcomeSkipped, run.Outcome)
	require.Len(t, run.Stages, int(StageResolveEnvironmentVariables), "configuration was never loaded")
	assert.Equal(t, teardown.StatusSkipped, run.Stages[len(run.Stages)-1].Status)
}

func TestRequireEnv_CustomMessageAndEmptyValue(t *testing.T) {
	t.Setenv("TB_EMPTY", "")

	env := newBench(t, afero.NewMemMapFs())
	_, err := env.bench.CreateApplication(context.Background(), &fixture{
		decls: []override.Descriptor{
			{Kind: override.KindRequireEnv, Target: "TB_EMPTY", Value: "needs a real value"},
		},
	})

	var skip *SkipError
	require.True(t, errors.As(err, &skip))
	assert.Equal(t, "needs a real value", skip.Message)
}

func TestRequireEnv_PresentProceeds(t *testing.T) {
	t.Setenv("TB_PRESENT", "yes")
	unsetForTest(t, "TB_FROM_OVERRIDE")

	env := newBench(t, memFS(t, map[string]string{"/base/config/app.yaml": baseApp}))
	a := env.create(t, &fixture{
		env: map[string]string{"TB_FROM_OVERRIDE": "x"},
		decls: []override.Descriptor{
			{Kind: override.KindRequireEnv, Target: "TB_PRESENT"},
			{Kind: override.KindRequireEnv, Target: "TB_FROM_OVERRIDE", Origin: override.OriginAnnotation},
		},
	})

	assert.Equal(t, "workbench", a.Environment())
}

func TestEnvironmentVariables_FailureStillRestores(t *testing.T) {
	unsetForTest(t, "TB_ROLLBACK")

	env := newBench(t, memFS(t, map[string]string{"/base/config/app.yaml": "timezone: Nowhere/Void\n"}))
	_, err := env.bench.CreateApplication(context.Background(), &fixture{
		env: map[string]string{"TB_ROLLBACK": "set"},
	})
	require.Error(t, err)

	_, ok := os.LookupEnv("TB_ROLLBACK")
	assert.False(t, ok)

	// The process environment lock was released by teardown; a second
	// mutating bootstrap would deadlock otherwise.
	next := newBench(t, memFS(t, map[string]string{"/base/config/app.yaml": baseApp}))
	a := next.create(t, &fixture{env: map[string]string{"TB_ROLLBACK": "again"}})
	assert.NotNil(t, a)
}

func TestEnvString(t *testing.T) {
	assert.Equal(t, "", envString(nil))
	assert.Equal(t, "x", envString("x"))
	assert.Equal(t, "(true)", envString(true))
	assert.Equal(t, "(false)", envString(false))
	assert.Equal(t, "42", envString(42))
}

// lockedBuffer is a bytes.Buffer safe for a logger shared across goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestEnvironmentVariables_SecondContextWaitsForTeardown(t *testing.T) {
	unsetForTest(t, "TB_SERIAL")

	logs := &lockedBuffer{}
	env := newBench(t, memFS(t, map[string]string{"/base/config/app.yaml": baseApp}),
		WithLogger(slog.New(slog.NewTextHandler(logs, nil))))

	first, err := env.bench.CreateApplication(context.Background(), &fixture{
		name: "first",
		env:  map[string]string{"TB_SERIAL": "first"},
	})
	require.NoError(t, err)

	type result struct {
		app *Application
		err error
	}
	done := make(chan result, 1)
	go func() {
		a, err := env.bench.CreateApplication(context.Background(), &fixture{
			name: "second",
			env:  map[string]string{"TB_SERIAL": "second"},
		})
		done <- result{a, err}
	}()

	require.Never(t, func() bool { return len(done) > 0 }, 100*time.Millisecond, 10*time.Millisecond,
		"second context must wait for the first to be torn down")
	assert.Equal(t, "first", os.Getenv("TB_SERIAL"))

	require.NoError(t, first.Teardown(context.Background()))

	var second result
	select {
	case second = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("second context still blocked after teardown")
	}
	require.NoError(t, second.err)
	assert.Equal(t, "second", os.Getenv("TB_SERIAL"))
	require.NoError(t, second.app.Teardown(context.Background()))

	out := logs.String()
	assert.Contains(t, out, "waiting for process environment")
	assert.Contains(t, out, "holder=first")
}
