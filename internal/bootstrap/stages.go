package bootstrap

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/testbench/internal/app"
	"github.com/roach88/testbench/internal/canonical"
	"github.com/roach88/testbench/internal/config"
	"github.com/roach88/testbench/internal/override"
)

// resolveApplication creates the context, parses declarations and binds
// the configuration loader selected by the capability mix.
func (p *pipeline) resolveApplication() error {
	const stage = StageResolveApplication

	p.app = app.New(p.opts.BasePath, p.logger)
	p.app.Tracker().Enter(int(stage))
	p.env = &envSession{tracker: p.app.Tracker(), logger: p.logger, owner: p.tc.Name()}

	if cp, ok := p.tc.(CapabilityProvider); ok {
		p.caps = cp.Capabilities()
	}

	if d, ok := p.tc.(Declarer); ok {
		reqs, err := override.Normalize(d.Declarations())
		if err != nil {
			return &StageError{Code: ErrCodeInvalidDeclaration, Stage: stage, Message: "declarations rejected", Err: err}
		}
		p.registry.RegisterAll(reqs)
	}

	concrete := app.ConcretePlainLoader
	if p.caps.Workbench {
		concrete = app.ConcreteWorkbenchLoader
	}
	return p.bind(stage, app.ConfigLoader, concrete, override.Request{Target: string(app.ConfigLoader)})
}

// resolveBindings applies binding overrides.
func (p *pipeline) resolveBindings() error {
	const stage = StageResolveBindings

	if bo, ok := p.tc.(BindingOverrider); ok {
		bindings := bo.OverrideApplicationBindings()
		keys := make([]string, 0, len(bindings))
		for k := range bindings {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		for i, k := range keys {
			req := override.Programmatic(override.KindBinding, k, bindings[app.Abstract(k)])
			req.Position = i
			p.registry.Register(req)
		}
	}

	for _, req := range p.registry.Drain(override.KindBinding) {
		abstract := app.Abstract(req.Target)
		if abstract.Reserved() {
			return stageErr(stage, ErrCodeReservedBinding, req, "abstract %q is bound by the pipeline", abstract)
		}
		if !p.opts.Catalog.Declared(abstract) {
			return stageErr(stage, ErrCodeUnknownBinding, req, "abstract %q does not accept overrides", abstract)
		}
		name, ok := req.Value.(string)
		if !ok {
			return stageErr(stage, ErrCodeUnknownConcrete, req, "binding value must be a concrete name, got %T", req.Value)
		}
		if err := p.bind(stage, abstract, name, req); err != nil {
			return err
		}
	}
	return nil
}

// resolveExceptionHandling installs the exception handler binding.
func (p *pipeline) resolveExceptionHandling() error {
	return p.bind(StageResolveExceptionHandling, app.ExceptionHandler, app.ConcreteExceptionHandler,
		override.Request{Target: string(app.ExceptionHandler)})
}

// resolveCore resets the global registry and forces the testing
// environment under a test runner.
func (p *pipeline) resolveCore() error {
	p.app.ClearGlobalBindings()
	if p.opts.RunningInTests {
		p.app.SetEnvironment("testing")
	}
	return nil
}

// resolveEnvironmentVariables loads .env, applies environment overrides and
// evaluates guards.
func (p *pipeline) resolveEnvironmentVariables() error {
	const stage = StageResolveEnvironmentVariables

	if p.caps.LoadEnvironmentVariables {
		vars, err := readDotenv(p.opts.FS, p.app.BasePath())
		if err != nil {
			return &StageError{Code: ErrCodeEnv, Stage: stage, Message: "cannot load .env", Err: err}
		}
		// .env never overrides variables already present in the process.
		for _, key := range canonical.SortedKeys(vars) {
			if _, exists := lookupEnv(key); exists {
				continue
			}
			if err := p.env.set(key, vars[key]); err != nil {
				return &StageError{Code: ErrCodeEnv, Stage: stage, Message: "cannot apply .env", Target: key, Err: err}
			}
		}
	}

	if ev, ok := p.tc.(EnvironmentVariables); ok {
		vars := ev.EnvironmentVariables()
		for i, key := range canonical.SortedKeys(vars) {
			req := override.Programmatic(override.KindEnv, key, vars[key])
			req.Position = i
			p.registry.Register(req)
		}
	}

	for _, req := range p.registry.Drain(override.KindEnv) {
		if err := p.env.set(req.Target, envString(req.Value)); err != nil {
			return &StageError{Code: ErrCodeEnv, Stage: stage, Message: "cannot set environment variable",
				Target: req.Target, Origin: req.Origin, Err: err}
		}
	}

	for _, req := range p.registry.Drain(override.KindRequireEnv) {
		if v, ok := lookupEnv(req.Target); ok && v != "" {
			continue
		}
		msg := fmt.Sprintf("Missing required environment variable `%s`", req.Target)
		if custom, ok := req.Value.(string); ok && custom != "" {
			msg = custom
		}
		return &SkipError{Stage: stage, Key: req.Target, Message: msg}
	}
	return nil
}

// resolveConfiguration loads configuration units and applies the alias,
// provider and config-key overrides.
func (p *pipeline) resolveConfiguration() error {
	const stage = StageResolveConfiguration
	store := p.app.Configuration()

	inst, err := p.app.Make(app.ConfigLoader)
	if err != nil {
		return &StageError{Code: ErrCodeConfig, Stage: stage, Message: "cannot resolve configuration loader", Err: err}
	}
	loader, ok := inst.(config.Loader)
	if !ok {
		return &StageError{Code: ErrCodeConfig, Stage: stage, Message: fmt.Sprintf("configuration loader has type %T", inst)}
	}
	p.loader = loader.Name()

	opts := config.LoadOptions{
		FS:       p.opts.FS,
		BasePath: p.app.BasePath(),
		Lookup:   lookupEnv,
	}
	if p.caps.Workbench {
		opts.WorkbenchPath = p.opts.WorkbenchPath
	}
	if err := loader.Load(store, opts); err != nil {
		se := &StageError{Code: ErrCodeConfig, Stage: stage, Message: "cannot load configuration", Err: err}
		var ue *config.UnitError
		if errors.As(err, &ue) {
			se.Unit = ue.Unit
		}
		return se
	}

	tz := store.String("app.timezone", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return &StageError{Code: ErrCodeInvalidTimezone, Stage: stage, Message: fmt.Sprintf("unknown timezone %q", tz),
			Target: "app.timezone", Err: err}
	}
	p.app.SetLocation(loc)

	if !p.app.EnvironmentBound() {
		p.app.SetEnvironment(store.String("app.env", "workbench"))
	}

	if err := p.applyAliases(stage); err != nil {
		return err
	}
	if err := p.applyProviders(stage); err != nil {
		return err
	}
	return p.applyConfig(stage)
}

func (p *pipeline) applyAliases(stage Stage) error {
	store := p.app.Configuration()

	aliases, ok := store.Get("app.aliases", map[string]any{}).(map[string]any)
	if !ok {
		return &StageError{Code: ErrCodeConfig, Stage: stage, Message: "app.aliases must be a mapping", Unit: "app"}
	}

	if ao, ok := p.tc.(AliasOverrider); ok {
		overrides := ao.OverrideApplicationAliases()
		for i, name := range canonical.SortedKeys(overrides) {
			req := override.Programmatic(override.KindAlias, name, overrides[name])
			req.Position = i
			p.registry.Register(req)
		}
	}
	for _, req := range p.registry.Drain(override.KindAlias) {
		if _, exists := aliases[req.Target]; !exists {
			p.warn(stage, req, "alias is not defined")
			continue
		}
		aliases[req.Target] = req.Value
	}
	store.Set("app.aliases", aliases)

	if pa, ok := p.tc.(PackageAliases); ok {
		pkg := pa.PackageAliases()
		partial := make(map[string]any, len(pkg))
		for k, v := range pkg {
			partial[k] = v
		}
		store.Merge("app.aliases", partial)
	}
	return nil
}

func (p *pipeline) applyProviders(stage Stage) error {
	store := p.app.Configuration()

	names, err := providerNames(store.Get("app.providers", []any{}))
	if err != nil {
		return &StageError{Code: ErrCodeConfig, Stage: stage, Message: err.Error(), Unit: "app", Target: "app.providers"}
	}

	if po, ok := p.tc.(ProviderOverrider); ok {
		overrides := po.OverrideApplicationProviders()
		for i, name := range canonical.SortedKeys(overrides) {
			req := override.Programmatic(override.KindProvider, name, overrides[name])
			req.Position = i
			p.registry.Register(req)
		}
	}
	// Requests drain lowest precedence first, so the last one per target
	// wins. Each target is rewritten once against the configured list.
	winners := make(map[string]override.Request)
	var targets []string
	for _, req := range p.registry.Drain(override.KindProvider) {
		if _, seen := winners[req.Target]; !seen {
			targets = append(targets, req.Target)
		}
		winners[req.Target] = req
	}
	found := make(map[string]bool, len(targets))
	next := make([]string, 0, len(names))
	for _, n := range names {
		req, ok := winners[n]
		if !ok {
			next = append(next, n)
			continue
		}
		found[n] = true
		if replacement, _ := req.Value.(string); replacement != "" {
			next = append(next, replacement)
		}
	}
	names = next
	for _, target := range targets {
		if !found[target] {
			p.warn(stage, winners[target], "provider is not configured")
		}
	}

	if pp, ok := p.tc.(PackageProviders); ok {
		for _, n := range pp.PackageProviders() {
			if !contains(names, n) {
				names = append(names, n)
			}
		}
	}

	list := make([]any, len(names))
	for i, n := range names {
		list[i] = n
	}
	store.Set("app.providers", list)
	return nil
}

func (p *pipeline) applyConfig(stage Stage) error {
	store := p.app.Configuration()

	if co, ok := p.tc.(ConfigOverrider); ok {
		values := co.ConfigOverrides()
		for i, path := range canonical.SortedKeys(values) {
			req := override.Programmatic(override.KindConfig, path, values[path])
			req.Position = i
			p.registry.Register(req)
		}
	}
	for _, req := range p.registry.Drain(override.KindConfig) {
		store.Set(req.Target, req.Value)
		if req.Target == "app.env" {
			env, ok := req.Value.(string)
			if !ok {
				return stageErr(stage, ErrCodeConfig, req, "app.env must be a string, got %T", req.Value)
			}
			p.app.SetEnvironment(env)
		}
	}
	return nil
}

// resolveKernels binds the HTTP and console kernels.
func (p *pipeline) resolveKernels() error {
	const stage = StageResolveKernels
	if err := p.bind(stage, app.HTTPKernel, app.ConcreteHTTPKernel, override.Request{Target: string(app.HTTPKernel)}); err != nil {
		return err
	}
	return p.bind(stage, app.ConsoleKernel, app.ConcreteConsoleKernel, override.Request{Target: string(app.ConsoleKernel)})
}

// bootstrapper is one step of stage 8.
type bootstrapper struct {
	name string
	run  func() error
}

// resolveBootstrappers runs the stage 8 steps in order. The environment
// name is locked: any step that changes it fails the stage.
func (p *pipeline) resolveBootstrappers() error {
	const stage = StageResolveBootstrappers
	locked := p.app.Environment()

	steps := []bootstrapper{
		{"exception-handling", p.installExceptionHandler},
		{"globals", p.registerGlobals},
		{"request", p.seedRequest},
		{"providers", p.registerProviders},
		{"legacy-provider", p.registerLegacyProvider},
		{"environment-definition", p.defineEnvironment},
		{"boot", p.bootProviders},
		{"package-bootstrappers", p.runPackageBootstrappers},
		{"console-kernel", p.bootstrapConsole},
		{"routes", p.refreshRoutes},
		{"fingerprint", p.freezeConfiguration},
	}

	for _, step := range steps {
		if err := step.run(); err != nil {
			return p.stepError(stage, step.name, err)
		}
		if env := p.app.Environment(); env != locked {
			return &StageError{
				Code:    ErrCodeEnvironmentLocked,
				Stage:   stage,
				Message: fmt.Sprintf("environment changed from %q to %q during %s", locked, env, step.name),
			}
		}
		if step.name == "legacy-provider" {
			p.app.Seal()
		}
	}
	return nil
}

// stepError wraps a stage 8 failure, keeping an existing StageError and
// classifying sealed-table violations.
func (p *pipeline) stepError(stage Stage, step string, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, app.ErrSealed) {
		target := ""
		var sealed *app.SealedError
		if errors.As(err, &sealed) {
			target = sealed.Target
		}
		return &StageError{Code: ErrCodeBindingSealed, Stage: stage, Message: step + " modified a sealed table", Target: target, Err: err}
	}
	return &StageError{Code: ErrCodeHookFailed, Stage: stage, Message: step + " failed", Err: err}
}

func (p *pipeline) installExceptionHandler() error {
	_, err := p.app.Make(app.ExceptionHandler)
	return err
}

func (p *pipeline) registerGlobals() error {
	aliases, _ := p.app.Configuration().Get("app.aliases", map[string]any{}).(map[string]any)
	for _, name := range canonical.SortedKeys(aliases) {
		target := fmt.Sprint(aliases[name])
		if err := p.app.SetAlias(name, target); err != nil {
			return err
		}
		p.app.Globals().Set("facade."+name, target)
	}
	p.app.Globals().Set("app", p.app)
	return nil
}

func (p *pipeline) seedRequest() error {
	p.app.SeedRequest(app.RequestContext{URL: p.app.Configuration().String("app.url", "http://localhost")})
	return nil
}

func (p *pipeline) registerProviders() error {
	const stage = StageResolveBootstrappers

	names, err := providerNames(p.app.Configuration().Get("app.providers", []any{}))
	if err != nil {
		return &StageError{Code: ErrCodeConfig, Stage: stage, Message: err.Error(), Target: "app.providers"}
	}

	providers := make([]app.Provider, 0, len(names))
	for _, n := range names {
		prov, ok := p.opts.Catalog.Provider(n)
		if !ok {
			return &StageError{Code: ErrCodeUnknownProvider, Stage: stage, Message: fmt.Sprintf("provider %q is not in the catalog", n), Target: n}
		}
		providers = append(providers, prov)
	}

	if err := p.app.SetProviders(providers); err != nil {
		return err
	}
	if err := p.app.RegisterProviders(); err != nil {
		if errors.Is(err, app.ErrSealed) {
			return err
		}
		return &StageError{Code: ErrCodeProviderFailed, Stage: stage, Message: "provider registration failed", Err: err}
	}
	return nil
}

func (p *pipeline) registerLegacyProvider() error {
	if !p.opts.LegacyProvider {
		return nil
	}
	prov, ok := p.opts.Catalog.Provider(app.LegacyProviderName)
	if !ok {
		return &StageError{Code: ErrCodeUnknownProvider, Stage: StageResolveBootstrappers,
			Message: "legacy provider is not in the catalog", Target: app.LegacyProviderName}
	}
	if err := p.app.RegisterProvider(prov); err != nil {
		return &StageError{Code: ErrCodeProviderFailed, Stage: StageResolveBootstrappers, Message: "legacy provider registration failed", Err: err}
	}
	return nil
}

// defineEnvironment runs every environment-definition form: the
// programmatic method, the legacy method, annotations, then attributes.
func (p *pipeline) defineEnvironment() error {
	const stage = StageResolveBootstrappers

	if d, ok := p.tc.(EnvironmentDefiner); ok {
		if err := d.DefineEnvironment(p.app); err != nil {
			return fmt.Errorf("DefineEnvironment: %w", err)
		}
	}
	if d, ok := p.tc.(LegacyEnvironmentSetUp); ok {
		if err := d.GetEnvironmentSetUp(p.app); err != nil {
			return fmt.Errorf("GetEnvironmentSetUp: %w", err)
		}
	}

	for _, req := range p.registry.Drain(override.KindDefineEnvironment) {
		hook, ok := p.opts.Catalog.Environment(req.Target)
		if !ok {
			return stageErr(stage, ErrCodeUnknownHook, req, "environment hook %q is not in the catalog", req.Target)
		}
		if err := hook(p.app); err != nil {
			if errors.Is(err, app.ErrSealed) {
				return err
			}
			se := stageErr(stage, ErrCodeHookFailed, req, "environment hook %q failed", req.Target)
			se.Err = err
			return se
		}
	}
	return nil
}

func (p *pipeline) bootProviders() error {
	if err := p.app.BootProviders(); err != nil {
		if errors.Is(err, app.ErrSealed) {
			return err
		}
		return &StageError{Code: ErrCodeProviderFailed, Stage: StageResolveBootstrappers, Message: "provider boot failed", Err: err}
	}
	return nil
}

func (p *pipeline) runPackageBootstrappers() error {
	pb, ok := p.tc.(PackageBootstrappers)
	if !ok {
		return nil
	}
	for i, fn := range pb.PackageBootstrappers() {
		if err := fn(p.app); err != nil {
			return fmt.Errorf("package bootstrapper %d: %w", i, err)
		}
	}
	return nil
}

func (p *pipeline) bootstrapConsole() error {
	inst, err := p.app.Make(app.ConsoleKernel)
	if err != nil {
		return err
	}
	kernel, ok := inst.(app.Kernel)
	if !ok {
		return fmt.Errorf("console kernel has type %T", inst)
	}
	return kernel.Bootstrap(p.app)
}

func (p *pipeline) refreshRoutes() error {
	p.app.Routes().RefreshNameLookups()
	return nil
}

// freezeConfiguration makes the store read-only and fingerprints it.
func (p *pipeline) freezeConfiguration() error {
	store := p.app.Configuration()
	store.Freeze()
	fp, err := store.Fingerprint()
	if err != nil {
		return &StageError{
			Code:    ErrCodeConfig,
			Stage:   StageResolveBootstrappers,
			Message: "configuration cannot be fingerprinted",
			Err:     err,
		}
	}
	p.fingerprint = fp
	return nil
}

// bind installs the named catalog concrete for abstract.
func (p *pipeline) bind(stage Stage, abstract app.Abstract, concrete string, req override.Request) error {
	b, ok := p.opts.Catalog.BindingFor(abstract, concrete)
	if !ok {
		return stageErr(stage, ErrCodeUnknownConcrete, req, "concrete %q is not in the catalog", concrete)
	}
	if err := p.app.SetBinding(b); err != nil {
		se := stageErr(stage, ErrCodeBindingSealed, req, "cannot bind %q", abstract)
		se.Err = err
		return se
	}
	return nil
}

func providerNames(v any) ([]string, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("app.providers must be a list, got %T", v)
	}
	names := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("app.providers[%d] must be a string, got %T", i, item)
		}
		names = append(names, s)
	}
	return names, nil
}

func envString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "(true)"
		}
		return "(false)"
	}
	return fmt.Sprint(v)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
