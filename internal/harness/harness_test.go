package harness

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/testbench/internal/override"
)

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "Bundled defaults only",
		Assertions: []Assertion{
			{Type: AssertEnvironment, Value: "testing"},
			{Type: AssertBinding, Abstract: "config.loader", Concrete: "config.plain"},
			{Type: AssertProviders, Names: []string{}},
			{Type: AssertGlobal, Name: "app"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "completed", result.Outcome)
	assert.Len(t, result.Fingerprint, 64)

	require.Len(t, result.Trace, 8)
	for i, e := range result.Trace {
		assert.Equal(t, EventStage, e.Type)
		assert.Equal(t, "completed", e.Status)
		assert.Equal(t, int64(i+1), e.Seq)
	}
}

func TestRun_OutcomeMismatchFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "Expects a failure that never happens",
		Expect:      Expectation{Outcome: "failed", ErrorCode: "UNKNOWN_BINDING"},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "expected outcome failed, got completed", result.Errors[0])
}

func TestRun_ErrorCodeMismatchFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "code_mismatch",
		Description: "Unknown provider reported with the wrong code",
		Files: map[string]string{
			"config/app.yaml": "providers: [GhostProvider]\n",
		},
		Expect: Expectation{Outcome: "failed", ErrorCode: "HOOK_FAILED"},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, "UNKNOWN_PROVIDER", result.ErrorCode)
	assert.Contains(t, result.Errors, "expected error code HOOK_FAILED, got UNKNOWN_PROVIDER")
}

func TestRun_EnvironmentLocked(t *testing.T) {
	scenario := &Scenario{
		Name:        "locked",
		Description: "An environment hook may not rename the environment",
		Catalog: CatalogFixture{
			Environments: map[string]HookFixture{"switch": {Environment: "staging"}},
		},
		Declarations: []override.Descriptor{{Kind: override.KindDefineEnvironment, Target: "switch"}},
		Expect:       Expectation{Outcome: "failed", ErrorCode: "ENVIRONMENT_LOCKED", Message: "staging"},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	last := result.Trace[7]
	assert.Equal(t, "resolve-bootstrappers", last.Stage)
	assert.Equal(t, "failed", last.Status)
	assert.Equal(t, "hook:switch", result.Trace[8].Name)
}

func TestRun_ProviderBootFailure(t *testing.T) {
	scenario := &Scenario{
		Name:        "boot_failure",
		Description: "A provider boot error fails stage 8",
		Files: map[string]string{
			"config/app.yaml": "providers: [Good, Bad]\n",
		},
		Catalog: CatalogFixture{
			Providers: []ProviderFixture{{Name: "Good"}, {Name: "Bad", BootError: "disk on fire"}},
		},
		Expect: Expectation{Outcome: "failed", ErrorCode: "PROVIDER_FAILED", Message: "disk on fire"},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	var names []string
	for _, e := range result.Trace {
		if e.Type == EventFixture {
			names = append(names, e.Name)
		}
	}
	assert.Equal(t, []string{"register:Good", "register:Bad", "boot:Good", "boot:Bad"}, names)
}

func TestRun_FailedAssertionsAreReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_assertions",
		Description: "Assertions that cannot hold",
		Assertions: []Assertion{
			{Type: AssertEnvironment, Value: "production"},
			{Type: AssertConfigEquals, Path: "app.name", Value: "Nope"},
			{Type: AssertConfigMissing, Path: "app.name"},
			{Type: AssertAlias, Name: "Ghost", Value: "GhostFacade"},
			{Type: AssertWarning, Target: "Ghost"},
			{Type: AssertRoute, Name: "home"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 6)
	assert.Contains(t, result.Errors[0], "Assertion failed: environment")
	assert.Contains(t, result.Errors[3], "not registered")
}

func TestRun_EnvOverridesAreRestored(t *testing.T) {
	const key = "TESTBENCH_HARNESS_RESTORE"
	require.NoError(t, os.Unsetenv(key))

	scenario := &Scenario{
		Name:         "env_restore",
		Description:  "Programmatic env values are undone at teardown",
		Files:        map[string]string{"config/app.yaml": "name: ${" + key + ":-unset}\n"},
		Programmatic: Programmatic{Env: map[string]string{key: "during"}},
		Assertions:   []Assertion{{Type: AssertConfigEquals, Path: "app.name", Value: "during"}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	_, ok := os.LookupEnv(key)
	assert.False(t, ok, "variable removed after teardown")
}

func TestRun_RelativeAndAbsoluteFiles(t *testing.T) {
	scenario := &Scenario{
		Name:          "files",
		Description:   "Relative files land under the base path",
		BasePath:      "/srv/base",
		WorkbenchPath: "/srv/wb",
		Capabilities:  Capabilities{Workbench: true},
		Files: map[string]string{
			"config/app.yaml":         "name: Base\n",
			"/srv/wb/config/app.yaml": "name: Workbench\n",
		},
		Assertions: []Assertion{{Type: AssertConfigEquals, Path: "app.name", Value: "Workbench"}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
