package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/testbench/internal/config"
)

// Names of the built-in catalog entries.
const (
	ConcretePlainLoader      = "config.plain"
	ConcreteWorkbenchLoader  = "config.workbench"
	ConcreteExceptionHandler = "exception.handler"
	ConcreteHTTPKernel       = "http.kernel"
	ConcreteConsoleKernel    = "console.kernel"

	LegacyProviderName = "legacy-compat"
)

func registerBuiltins(cat *Catalog) {
	cat.DeclareAbstract(ConfigLoader)

	cat.RegisterConcrete(ConcretePlainLoader, func(*Context) (any, error) {
		return config.PlainLoader{}, nil
	}, true)
	cat.RegisterConcrete(ConcreteWorkbenchLoader, func(*Context) (any, error) {
		return config.WorkbenchLoader{}, nil
	}, true)
	cat.RegisterConcrete(ConcreteExceptionHandler, func(c *Context) (any, error) {
		return NewHandler(c.Logger()), nil
	}, true)
	cat.RegisterConcrete(ConcreteHTTPKernel, func(*Context) (any, error) {
		return &HTTP{}, nil
	}, true)
	cat.RegisterConcrete(ConcreteConsoleKernel, func(*Context) (any, error) {
		return NewConsole(), nil
	}, true)

	cat.RegisterProvider(LegacyProviderName, func() Provider { return LegacyProvider{} })
}

// Handler is the built-in exception handler. It logs and keeps every
// reported error so tests can assert on them.
type Handler struct {
	logger   *slog.Logger
	mu       sync.Mutex
	reported []error
}

// NewHandler creates a handler logging to logger.
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

// Report records err.
func (h *Handler) Report(err error) {
	h.mu.Lock()
	h.reported = append(h.reported, err)
	h.mu.Unlock()
	h.logger.Error("exception reported", "error", err)
}

// Reported returns every reported error.
func (h *Handler) Reported() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.reported...)
}

// Kernel is a front-door entry point bootstrapped at the end of the
// pipeline.
type Kernel interface {
	Bootstrap(c *Context) error
	Bootstrapped() bool
}

// HTTP is the built-in HTTP kernel. Request dispatch belongs to the hosted
// framework; the kernel only tracks bootstrap state.
type HTTP struct {
	bootstrapped bool
}

// Bootstrap implements Kernel.
func (k *HTTP) Bootstrap(*Context) error {
	k.bootstrapped = true
	return nil
}

// Bootstrapped implements Kernel.
func (k *HTTP) Bootstrapped() bool {
	return k.bootstrapped
}

// Command is a console command.
type Command func(c *Context, args []string) (string, error)

// Console is the built-in console kernel.
type Console struct {
	mu           sync.Mutex
	ctx          *Context
	commands     map[string]Command
	bootstrapped bool
}

// NewConsole creates a console kernel with the built-in commands.
func NewConsole() *Console {
	k := &Console{commands: make(map[string]Command)}
	k.Register("env", envCommand)
	k.Register("about", aboutCommand)
	return k
}

// Register adds or replaces a command.
func (k *Console) Register(name string, cmd Command) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.commands[name] = cmd
}

// Commands lists command names, sorted.
func (k *Console) Commands() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	names := make([]string, 0, len(k.commands))
	for n := range k.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Bootstrap implements Kernel.
func (k *Console) Bootstrap(c *Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.ctx = c
	k.bootstrapped = true
	return nil
}

// Bootstrapped implements Kernel.
func (k *Console) Bootstrapped() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.bootstrapped
}

// Call runs a command against the bootstrapped context.
func (k *Console) Call(name string, args ...string) (string, error) {
	k.mu.Lock()
	cmd, ok := k.commands[name]
	ctx := k.ctx
	k.mu.Unlock()

	if ctx == nil {
		return "", fmt.Errorf("console kernel is not bootstrapped")
	}
	if !ok {
		return "", fmt.Errorf("command %q is not defined", name)
	}
	return cmd(ctx, args)
}

func envCommand(c *Context, _ []string) (string, error) {
	return fmt.Sprintf("The application environment is [%s].", c.Environment()), nil
}

// About is the summary printed by the about command.
type About struct {
	Environment AboutEnvironment `json:"environment"`
}

// AboutEnvironment is the environment section of About.
type AboutEnvironment struct {
	ApplicationName string   `json:"application_name"`
	Environment     string   `json:"environment"`
	DebugMode       bool     `json:"debug_mode"`
	URL             string   `json:"url"`
	Timezone        string   `json:"timezone"`
	Locale          string   `json:"locale"`
	Providers       []string `json:"providers"`
}

// Summarize builds the about summary for c.
func Summarize(c *Context) About {
	store := c.Configuration()
	debug, _ := store.Get("app.debug", false).(bool)
	return About{Environment: AboutEnvironment{
		ApplicationName: store.String("app.name", ""),
		Environment:     c.Environment(),
		DebugMode:       debug,
		URL:             store.String("app.url", ""),
		Timezone:        c.Location().String(),
		Locale:          store.String("app.locale", ""),
		Providers:       c.ProviderNames(),
	}}
}

func aboutCommand(c *Context, args []string) (string, error) {
	summary := Summarize(c)
	for _, a := range args {
		if a == "--json" {
			data, err := json.Marshal(summary)
			if err != nil {
				return "", err
			}
			return string(data), nil
		}
	}

	env := summary.Environment
	return fmt.Sprintf("Application Name %s\nEnvironment %s\nDebug Mode %s\nURL %s\nTimezone %s\nLocale %s",
		env.ApplicationName, env.Environment, onOff(env.DebugMode), env.URL, env.Timezone, env.Locale), nil
}

func onOff(b bool) string {
	if b {
		return "ENABLED"
	}
	return "OFF"
}

// LegacyProvider mirrors the alias table into the global registry under
// "alias." names, for hosted code that still resolves aliases globally.
type LegacyProvider struct{}

// Name implements Provider.
func (LegacyProvider) Name() string { return LegacyProviderName }

// Register implements Provider.
func (LegacyProvider) Register(c *Context) error {
	for _, a := range c.Aliases() {
		c.Globals().Set("alias."+a.Name, a.Target)
	}
	return nil
}
