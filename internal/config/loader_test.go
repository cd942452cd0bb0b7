package config

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func noEnv(string) (string, bool) { return "", false }

func TestListUnits_SortedByFileName(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/base/config/queue.cue", "default: \"sync\"\n")
	writeFile(t, fs, "/base/config/app.yaml", "env: workbench\n")
	writeFile(t, fs, "/base/config/database.json", `{"default":"sqlite"}`)
	writeFile(t, fs, "/base/config/README.md", "ignored")

	units, err := ListUnits(fs, "/base/config")
	require.NoError(t, err)

	var names []string
	for _, u := range units {
		names = append(names, u.Name)
	}
	assert.Equal(t, []string{"app", "database", "queue"}, names)
}

func TestListUnits_MissingDirectoryIsEmpty(t *testing.T) {
	units, err := ListUnits(afero.NewMemMapFs(), "/nowhere")
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestListUnits_DuplicateStem(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/base/config/app.json", `{}`)
	writeFile(t, fs, "/base/config/app.yaml", "env: x\n")

	_, err := ListUnits(fs, "/base/config")
	var unitErr *UnitError
	require.True(t, errors.As(err, &unitErr))
	assert.Equal(t, "app", unitErr.Unit)
}

func TestPlainLoader_LoadsAllFormats(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/base/config/app.yaml", "env: workbench\nproviders:\n  - AppServiceProvider\n")
	writeFile(t, fs, "/base/config/database.json", `{"default":"sqlite","connections":{"testing":{"driver":"array"}}}`)
	writeFile(t, fs, "/base/config/queue.cue", "default: \"sync\"\nretries: 3\n")

	s := NewStore()
	err := PlainLoader{}.Load(s, LoadOptions{FS: fs, BasePath: "/base", Lookup: noEnv})
	require.NoError(t, err)

	assert.Equal(t, "workbench", s.Get("app.env", nil))
	assert.Equal(t, []any{"AppServiceProvider"}, s.Get("app.providers", nil))
	assert.Equal(t, "sqlite", s.Get("database.default", nil))
	assert.Equal(t, "sync", s.Get("queue.default", nil))
	assert.EqualValues(t, 3, s.Get("queue.retries", nil))
	assert.Equal(t, []string{"app", "database", "queue"}, s.Keys())
	assert.Equal(t, "array", s.Get("database.connections.testing.driver", nil),
		"an existing testing connection is not replaced")
}

func TestPlainLoader_FallsBackToBundledDefaults(t *testing.T) {
	s := NewStore()
	err := PlainLoader{}.Load(s, LoadOptions{FS: afero.NewMemMapFs(), BasePath: "/missing", Lookup: noEnv})
	require.NoError(t, err)

	assert.Equal(t, "workbench", s.Get("app.env", nil))
	assert.Equal(t, "Testbench", s.Get("app.name", nil))
	assert.Equal(t, false, s.Get("app.debug", nil))
	assert.Equal(t, "UTC", s.Get("app.timezone", nil))
	assert.Equal(t, ":memory:", s.Get("database.connections.sqlite.database", nil))
	assert.Equal(t, false, s.Get("database.connections.sqlite.foreign_key_constraints", nil))
}

func TestPlainLoader_BundledDefaultsReadEnvironment(t *testing.T) {
	lookup := mapLookup(map[string]string{"APP_ENV": "ci", "APP_DEBUG": "(true)"})

	s := NewStore()
	require.NoError(t, PlainLoader{}.Load(s, LoadOptions{FS: afero.NewMemMapFs(), Lookup: lookup}))

	assert.Equal(t, "ci", s.Get("app.env", nil))
	assert.Equal(t, true, s.Get("app.debug", nil))
}

func TestPlainLoader_DefaultTestingConnection(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		wantFK any
	}{
		{"default off", nil, false},
		{"enabled by env", map[string]string{"DB_FOREIGN_KEYS": "(true)"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFile(t, fs, "/base/config/app.yaml", "env: workbench\n")

			s := NewStore()
			require.NoError(t, PlainLoader{}.Load(s, LoadOptions{FS: fs, BasePath: "/base", Lookup: mapLookup(tt.env)}))

			assert.Equal(t, map[string]any{
				"driver":                  "sqlite",
				"database":                ":memory:",
				"foreign_key_constraints": tt.wantFK,
			}, s.Get("database.connections.testing", nil))
		})
	}
}

func TestWorkbenchLoader_OverrideUnitReplacesBase(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/base/config/app.yaml", "env: workbench\nname: Base\n")
	writeFile(t, fs, "/base/config/cache.yaml", "default: file\n")
	writeFile(t, fs, "/pkg/workbench/config/app.json", `{"env":"package"}`)
	writeFile(t, fs, "/pkg/workbench/config/extra.yaml", "ignored: true\n")

	opts := LoadOptions{FS: fs, BasePath: "/base", WorkbenchPath: "/pkg/workbench", Lookup: noEnv}

	plain := NewStore()
	require.NoError(t, PlainLoader{}.Load(plain, opts))
	assert.Equal(t, "workbench", plain.Get("app.env", nil))

	wb := NewStore()
	require.NoError(t, WorkbenchLoader{}.Load(wb, opts))
	assert.Equal(t, map[string]any{"env": "package"}, wb.Get("app", nil), "override unit replaces the whole base unit")
	assert.Equal(t, "file", wb.Get("cache.default", nil))
	assert.False(t, wb.Has("extra"), "units only present in the workbench are not added")
}

func TestWorkbenchLoader_NoWorkbenchDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/base/config/app.yaml", "env: workbench\n")

	s := NewStore()
	err := WorkbenchLoader{}.Load(s, LoadOptions{FS: fs, BasePath: "/base", WorkbenchPath: "/absent", Lookup: noEnv})
	require.NoError(t, err)
	assert.Equal(t, "workbench", s.Get("app.env", nil))
}

func TestDecodeUnit_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"malformed yaml", "app.yaml", "env: [unterminated\n"},
		{"malformed json", "app.json", `{"env":`},
		{"invalid cue", "app.cue", "env: \"a\" & \"b\"\n"},
		{"non mapping", "app.yaml", "- a\n- b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFile(t, fs, "/base/config/"+tt.file, tt.content)

			err := PlainLoader{}.Load(NewStore(), LoadOptions{FS: fs, BasePath: "/base", Lookup: noEnv})
			var unitErr *UnitError
			require.True(t, errors.As(err, &unitErr), "got %v", err)
			assert.Equal(t, "app", unitErr.Unit)
		})
	}
}

func TestDecodeUnit_EmptyFileIsEmptyMapping(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/base/config/app.yaml", "")

	m, err := DecodeUnit(Unit{Name: "app", Path: "/base/config/app.yaml", FS: fs})
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestLoad_Idempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/base/config/app.yaml", "env: workbench\naliases:\n  DB: db.facade\n  Cache: cache.facade\n")

	fingerprint := func() string {
		s := NewStore()
		require.NoError(t, WorkbenchLoader{}.Load(s, LoadOptions{FS: fs, BasePath: "/base", Lookup: noEnv}))
		fp, err := s.Fingerprint()
		require.NoError(t, err)
		return fp
	}

	assert.Equal(t, fingerprint(), fingerprint())
}
