package config

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var bundled embed.FS

// BundledDir is the directory inside Bundled() holding the default units.
const BundledDir = "defaults"

// Bundled returns a read-only filesystem over the default units shipped with
// this package.
func Bundled() afero.Fs {
	return afero.NewReadOnlyFs(afero.FromIOFS{FS: bundled})
}

// supportedExts lists the unit formats in lookup priority order.
var supportedExts = []string{".yaml", ".yml", ".json", ".cue"}

// Unit is one configuration file: the unit name is the file stem.
type Unit struct {
	Name string
	Path string
	FS   afero.Fs
}

// UnitError reports a configuration unit that could not be read or decoded.
type UnitError struct {
	Unit string
	Path string
	Err  error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("config unit %q (%s): %v", e.Unit, e.Path, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

// LoadOptions carries the inputs shared by every loader.
type LoadOptions struct {
	FS            afero.Fs
	BasePath      string
	WorkbenchPath string
	Lookup        LookupFunc
}

func (o LoadOptions) fs() afero.Fs {
	if o.FS == nil {
		return afero.NewOsFs()
	}
	return o.FS
}

func (o LoadOptions) lookup() LookupFunc {
	if o.Lookup == nil {
		return OSLookup
	}
	return o.Lookup
}

// Loader populates a Store from configuration units.
type Loader interface {
	Name() string
	Load(store *Store, opts LoadOptions) error
}

// PlainLoader reads units from <base>/config, or the bundled defaults when
// that directory does not exist.
type PlainLoader struct{}

// Name implements Loader.
func (PlainLoader) Name() string { return "plain" }

// Load implements Loader.
func (PlainLoader) Load(store *Store, opts LoadOptions) error {
	units, err := BaseUnits(opts)
	if err != nil {
		return err
	}
	return install(store, units, opts.lookup())
}

// WorkbenchLoader behaves like PlainLoader, but a unit found in
// <workbench>/config replaces the base unit of the same name.
type WorkbenchLoader struct{}

// Name implements Loader.
func (WorkbenchLoader) Name() string { return "workbench" }

// Load implements Loader.
func (WorkbenchLoader) Load(store *Store, opts LoadOptions) error {
	units, err := BaseUnits(opts)
	if err != nil {
		return err
	}

	if opts.WorkbenchPath != "" {
		dir := filepath.Join(opts.WorkbenchPath, "config")
		overrides, err := ListUnits(opts.fs(), dir)
		if err != nil {
			return err
		}
		units = overlay(units, overrides)
	}

	return install(store, units, opts.lookup())
}

// BaseUnits resolves the base configuration directory and lists its units.
func BaseUnits(opts LoadOptions) ([]Unit, error) {
	fs := opts.fs()
	dir := filepath.Join(opts.BasePath, "config")
	if opts.BasePath != "" {
		ok, err := afero.DirExists(fs, dir)
		if err != nil {
			return nil, fmt.Errorf("stat config directory %s: %w", dir, err)
		}
		if ok {
			return ListUnits(fs, dir)
		}
	}
	return ListUnits(Bundled(), BundledDir)
}

// ListUnits returns the units in dir sorted by file name. A missing
// directory yields no units. Two files sharing a stem are an error.
func ListUnits(fs afero.Fs, dir string) ([]Unit, error) {
	ok, err := afero.DirExists(fs, dir)
	if err != nil || !ok {
		return nil, nil
	}

	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read config directory %s: %w", dir, err)
	}

	var units []Unit
	seen := make(map[string]string)
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(info.Name()))
		if !isSupported(ext) {
			continue
		}
		name := strings.TrimSuffix(info.Name(), path.Ext(info.Name()))
		p := path.Join(filepath.ToSlash(dir), info.Name())
		if prev, dup := seen[name]; dup {
			return nil, &UnitError{Unit: name, Path: p, Err: fmt.Errorf("duplicate unit, already defined by %s", prev)}
		}
		seen[name] = p
		units = append(units, Unit{Name: name, Path: p, FS: fs})
	}
	return units, nil
}

// overlay replaces base units with same-named overrides, keeping base order.
func overlay(base, overrides []Unit) []Unit {
	byName := make(map[string]Unit, len(overrides))
	for _, u := range overrides {
		byName[u.Name] = u
	}
	out := make([]Unit, len(base))
	for i, u := range base {
		if o, ok := byName[u.Name]; ok {
			u = o
		}
		out[i] = u
	}
	return out
}

func install(store *Store, units []Unit, lookup LookupFunc) error {
	for _, u := range units {
		value, err := DecodeUnit(u)
		if err != nil {
			return err
		}
		store.Set(u.Name, Expand(value, lookup))
	}
	applyTestingConnection(store, lookup)
	return nil
}

// applyTestingConnection installs the in-memory "testing" database
// connection unless a unit already defined one.
func applyTestingConnection(store *Store, lookup LookupFunc) {
	if store.Has("database.connections.testing") {
		return
	}
	fk := any(false)
	if raw, ok := lookup("DB_FOREIGN_KEYS"); ok {
		fk = CastEnvValue(raw)
	}
	store.Set("database.connections.testing", map[string]any{
		"driver":                  "sqlite",
		"database":                ":memory:",
		"foreign_key_constraints": fk,
	})
}

// DecodeUnit reads and decodes one unit. The decoded value must be a
// mapping; an empty file decodes to an empty mapping.
func DecodeUnit(u Unit) (map[string]any, error) {
	data, err := afero.ReadFile(u.FS, u.Path)
	if err != nil {
		return nil, &UnitError{Unit: u.Name, Path: u.Path, Err: err}
	}

	var raw any
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	case ".json":
		err = json.Unmarshal(data, &raw)
	case ".cue":
		raw, err = decodeCUE(u.Path, data)
	default:
		err = fmt.Errorf("unsupported unit format")
	}
	if err != nil {
		return nil, &UnitError{Unit: u.Name, Path: u.Path, Err: err}
	}

	if raw == nil {
		return map[string]any{}, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, &UnitError{Unit: u.Name, Path: u.Path, Err: fmt.Errorf("unit must be a mapping, got %T", raw)}
	}
	return m, nil
}

func decodeCUE(filename string, data []byte) (any, error) {
	v := cuecontext.New().CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, err
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, err
	}
	var out map[string]any
	if err := v.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func isSupported(ext string) bool {
	for _, s := range supportedExts {
		if s == ext {
			return true
		}
	}
	return false
}
