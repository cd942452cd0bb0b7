package app

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/testbench/internal/config"
)

func TestDefaultCatalog_Builtins(t *testing.T) {
	cat := DefaultCatalog()
	c := New("/app", testLogger())

	assert.True(t, cat.Declared(ConfigLoader))
	assert.False(t, cat.Declared(ExceptionHandler))

	b, ok := cat.BindingFor(ConfigLoader, ConcreteWorkbenchLoader)
	require.True(t, ok)
	require.NoError(t, c.SetBinding(b))
	loader, err := c.Make(ConfigLoader)
	require.NoError(t, err)
	assert.IsType(t, config.WorkbenchLoader{}, loader)

	_, ok = cat.BindingFor(ConfigLoader, "nope")
	assert.False(t, ok)

	p, ok := cat.Provider(LegacyProviderName)
	require.True(t, ok)
	assert.Equal(t, LegacyProviderName, p.Name())
	assert.Contains(t, cat.ProviderNames(), LegacyProviderName)
}

func TestCatalog_CloneIsIndependent(t *testing.T) {
	base := DefaultCatalog()
	clone := base.Clone()
	clone.DeclareAbstract("cache")
	clone.RegisterEnvironment("sqlite", func(*Context) error { return nil })

	assert.True(t, clone.Declared("cache"))
	assert.False(t, base.Declared("cache"))
	_, ok := base.Environment("sqlite")
	assert.False(t, ok)
}

func TestReserved(t *testing.T) {
	assert.True(t, ExceptionHandler.Reserved())
	assert.True(t, HTTPKernel.Reserved())
	assert.True(t, ConsoleKernel.Reserved())
	assert.False(t, ConfigLoader.Reserved())
}

func TestConsole_Commands(t *testing.T) {
	c := New("/app", testLogger())
	c.Configuration().Set("app", map[string]any{"name": "Testbench", "debug": false, "locale": "en", "url": "http://localhost"})
	c.SetEnvironment("workbench")

	k := NewConsole()
	_, err := k.Call("env")
	require.Error(t, err, "calls before bootstrap fail")

	require.NoError(t, k.Bootstrap(c))
	assert.True(t, k.Bootstrapped())
	assert.Equal(t, []string{"about", "env"}, k.Commands())

	out, err := k.Call("env")
	require.NoError(t, err)
	assert.Equal(t, "The application environment is [workbench].", out)

	out, err = k.Call("about", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"environment":{"application_name":"Testbench","environment":"workbench","debug_mode":false,"url":"http://localhost","timezone":"UTC","locale":"en","providers":[]}}`, out)

	out, err = k.Call("about")
	require.NoError(t, err)
	assert.Contains(t, out, "Debug Mode OFF")

	_, err = k.Call("missing")
	assert.Error(t, err)
}

func TestHandler_Report(t *testing.T) {
	h := NewHandler(testLogger())
	h.Report(errors.New("first"))
	h.Report(errors.New("second"))
	assert.Len(t, h.Reported(), 2)
}

func TestLegacyProvider_MirrorsAliases(t *testing.T) {
	c := New("/app", testLogger())
	require.NoError(t, c.SetAlias("DB", "db.facade"))

	require.NoError(t, c.RegisterProvider(LegacyProvider{}))

	v, ok := c.Globals().Get("alias.DB")
	require.True(t, ok)
	assert.Equal(t, "db.facade", v)
	assert.Equal(t, []string{LegacyProviderName}, c.ProviderNames())
}
