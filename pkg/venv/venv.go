// Package venv manages the project's Python virtual environment: finding or
// creating it, asking its interpreter for marker values, and installing
// locked packages into it with pip.
//
// Every process goes through a [Runner], so callers and tests can replace
// process execution.
package venv

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/manifest"
	"github.com/matzehuels/wheelhouse/pkg/marker"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

// DirName is the environment directory created next to the manifest.
const DirName = ".venv"

// DefaultPython is the interpreter used to create environments when none is
// configured.
var DefaultPython = defaultPython()

func defaultPython() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

// Options configures environment operations.
type Options struct {
	Runner Runner               // process runner (default: ExecRunner)
	Logger func(string, ...any) // debug callback (optional)
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.Logger == nil {
		opts.Logger = func(string, ...any) {}
	}
	return opts
}

// Venv is a virtual environment on disk.
type Venv struct {
	Root string
	opts Options
}

// Open returns the environment at root without checking it.
func Open(root string, opts Options) *Venv {
	return &Venv{Root: root, opts: opts.WithDefaults()}
}

// Find locates the environment for the project in dir: dir/.venv when it
// has an interpreter, otherwise the active $VIRTUAL_ENV. It fails with
// errors.ErrCodeEnvironmentNotFound.
func Find(dir string, opts Options) (*Venv, error) {
	candidates := []string{filepath.Join(dir, DirName)}
	if active := os.Getenv("VIRTUAL_ENV"); active != "" {
		candidates = append(candidates, active)
	}
	for _, root := range candidates {
		v := Open(root, opts)
		if _, err := os.Stat(v.Python()); err == nil {
			return v, nil
		}
	}
	return nil, errors.New(errors.ErrCodeEnvironmentNotFound, "no virtual environment in %s", filepath.Join(dir, DirName))
}

// Create makes dir/.venv with the given interpreter (DefaultPython when
// empty) and returns it.
func Create(ctx context.Context, dir, python string, opts Options) (*Venv, error) {
	if python == "" {
		python = DefaultPython
	}
	v := Open(filepath.Join(dir, DirName), opts)
	v.opts.Logger("create %s with %s", v.Root, python)
	cmd := Command{Path: python, Args: []string{"-m", "venv", DirName}, Dir: dir}
	if _, err := v.opts.Runner.Run(ctx, cmd); err != nil {
		return nil, v.commandError(ctx, err, "create virtual environment with %s", python)
	}
	return v, nil
}

// FindOrCreate returns the project's environment, creating it when missing.
func FindOrCreate(ctx context.Context, dir, python string, opts Options) (*Venv, error) {
	v, err := Find(dir, opts)
	if errors.Is(err, errors.ErrCodeEnvironmentNotFound) {
		return Create(ctx, dir, python, opts)
	}
	return v, err
}

// Remove deletes the environment directory.
func (v *Venv) Remove() error {
	v.opts.Logger("remove %s", v.Root)
	return os.RemoveAll(v.Root)
}

// BinDir returns the directory holding the environment's executables.
func (v *Venv) BinDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(v.Root, "Scripts")
	}
	return filepath.Join(v.Root, "bin")
}

// Python returns the path of the environment's interpreter.
func (v *Venv) Python() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(v.BinDir(), "python.exe")
	}
	return filepath.Join(v.BinDir(), "python")
}

// Env returns base with VIRTUAL_ENV pointing at the environment and its
// executables first on PATH.
func (v *Venv) Env(base []string) []string {
	out := make([]string, 0, len(base)+2)
	path := v.BinDir()
	for _, kv := range base {
		key, value, _ := strings.Cut(kv, "=")
		switch {
		case key == "VIRTUAL_ENV", key == "PYTHONHOME":
			continue
		case strings.EqualFold(key, "PATH"):
			if value != "" {
				path += string(os.PathListSeparator) + value
			}
			continue
		}
		out = append(out, kv)
	}
	return append(out, "PATH="+path, "VIRTUAL_ENV="+v.Root)
}

// markerScript prints the interpreter's marker values as JSON.
const markerScript = `import json, os, platform, sys
impl = sys.implementation
iv = "{0.major}.{0.minor}.{0.micro}".format(impl.version)
if impl.version.releaselevel != "final":
    iv += impl.version.releaselevel[0] + str(impl.version.serial)
print(json.dumps({
    "implementation_name": impl.name,
    "implementation_version": iv,
    "os_name": os.name,
    "platform_machine": platform.machine(),
    "platform_python_implementation": platform.python_implementation(),
    "platform_release": platform.release(),
    "platform_system": platform.system(),
    "platform_version": platform.version(),
    "python_full_version": platform.python_version(),
    "python_version": ".".join(platform.python_version_tuple()[:2]),
    "sys_platform": sys.platform,
}))`

// MarkerEnvironment asks the environment's interpreter for its marker
// values.
func (v *Venv) MarkerEnvironment(ctx context.Context) (marker.Environment, error) {
	out, err := v.run(ctx, "-c", markerScript)
	if err != nil {
		return nil, v.commandError(ctx, err, "query interpreter")
	}
	return decodeMarkers(out)
}

// QueryMarkers asks an interpreter outside any environment for its marker
// values. An empty python means DefaultPython.
func QueryMarkers(ctx context.Context, python string, opts Options) (marker.Environment, error) {
	if python == "" {
		python = DefaultPython
	}
	opts = opts.WithDefaults()
	out, err := opts.Runner.Run(ctx, Command{Path: python, Args: []string{"-c", markerScript}})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(errors.ErrCodeEnvironmentNotFound, err, "query interpreter %s", python)
	}
	return decodeMarkers(out)
}

func decodeMarkers(out []byte) (marker.Environment, error) {
	var env marker.Environment
	if err := json.Unmarshal(out, &env); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "decode marker environment")
	}
	if env[marker.VarPythonVersion] == "" {
		return nil, errors.New(errors.ErrCodeInternal, "interpreter reported no python_version")
	}
	return env, nil
}

// Installed returns the installed distributions as normalized name to
// version.
func (v *Venv) Installed(ctx context.Context) (map[string]string, error) {
	out, err := v.run(ctx, "-m", "pip", "list", "--format=json", "--disable-pip-version-check")
	if err != nil {
		return nil, v.commandError(ctx, err, "list installed packages")
	}
	var dists []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(out, &dists); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "decode pip list output")
	}
	installed := make(map[string]string, len(dists))
	for _, d := range dists {
		installed[requirement.NormalizeName(d.Name)] = d.Version
	}
	return installed, nil
}

// Install installs the pinned entries without resolving their
// dependencies again. Entries already installed at the pinned version are
// skipped. It returns the entries it installed.
func (v *Venv) Install(ctx context.Context, entries []manifest.LockEntry) ([]manifest.LockEntry, error) {
	installed, err := v.Installed(ctx)
	if err != nil {
		return nil, err
	}
	var todo []manifest.LockEntry
	for _, e := range entries {
		if installed[e.Name] != e.Version {
			todo = append(todo, e)
		}
	}
	if len(todo) == 0 {
		return nil, nil
	}

	args := []string{"-m", "pip", "install", "--no-deps", "--disable-pip-version-check"}
	for _, e := range todo {
		args = append(args, e.Name+"=="+e.Version)
	}
	v.opts.Logger("pip install %d packages", len(todo))
	if _, err := v.run(ctx, args...); err != nil {
		return nil, v.commandError(ctx, err, "install packages")
	}
	return todo, nil
}

// Uninstall removes the named distributions. Names that are not installed
// are ignored.
func (v *Venv) Uninstall(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	sorted := make([]string, len(names))
	for i, n := range names {
		sorted[i] = requirement.NormalizeName(n)
	}
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	args := append([]string{"-m", "pip", "uninstall", "-y", "--disable-pip-version-check"}, sorted...)
	v.opts.Logger("pip uninstall %s", strings.Join(sorted, " "))
	if _, err := v.run(ctx, args...); err != nil {
		return v.commandError(ctx, err, "uninstall packages")
	}
	return nil
}

func (v *Venv) run(ctx context.Context, args ...string) ([]byte, error) {
	return v.opts.Runner.Run(ctx, Command{
		Path: v.Python(),
		Args: args,
		Env:  v.Env(os.Environ()),
	})
}

func (v *Venv) commandError(ctx context.Context, err error, format string, args ...any) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.Wrap(errors.ErrCodeInternal, err, format, args...)
}
