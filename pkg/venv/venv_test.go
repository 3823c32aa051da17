package venv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	wherrors "github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/manifest"
	"github.com/matzehuels/wheelhouse/pkg/marker"
)

// fakeRunner records commands and answers them from outputs, keyed by the
// pip subcommand ("pip list"), the -m module ("venv") or the first argument
// ("-c").
type fakeRunner struct {
	calls   []Command
	outputs map[string]string
	err     error
}

func (f *fakeRunner) Run(_ context.Context, cmd Command) ([]byte, error) {
	f.calls = append(f.calls, cmd)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.outputs[key(cmd)]), nil
}

func key(cmd Command) string {
	switch {
	case len(cmd.Args) >= 3 && cmd.Args[0] == "-m" && cmd.Args[1] == "pip":
		return "pip " + cmd.Args[2]
	case len(cmd.Args) >= 2 && cmd.Args[0] == "-m":
		return cmd.Args[1]
	case len(cmd.Args) >= 1:
		return cmd.Args[0]
	}
	return ""
}

// fakeVenv creates dir/.venv with an interpreter file.
func fakeVenv(t *testing.T, dir string) string {
	t.Helper()
	v := Open(filepath.Join(dir, DirName), Options{})
	if err := os.MkdirAll(v.BinDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(v.Python(), nil, 0o755); err != nil {
		t.Fatal(err)
	}
	return v.Root
}

func TestFind(t *testing.T) {
	t.Setenv("VIRTUAL_ENV", "")

	dir := t.TempDir()
	if _, err := Find(dir, Options{}); !wherrors.Is(err, wherrors.ErrCodeEnvironmentNotFound) {
		t.Errorf("Find() error = %v, want %s", err, wherrors.ErrCodeEnvironmentNotFound)
	}

	root := fakeVenv(t, dir)
	v, err := Find(dir, Options{})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if v.Root != root {
		t.Errorf("Find() = %s, want %s", v.Root, root)
	}
}

func TestFindActive(t *testing.T) {
	active := fakeVenv(t, t.TempDir())
	t.Setenv("VIRTUAL_ENV", active)

	v, err := Find(t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if v.Root != active {
		t.Errorf("Find() = %s, want the active environment %s", v.Root, active)
	}
}

func TestCreate(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{}
	v, err := Create(context.Background(), dir, "/usr/bin/python3.12", Options{Runner: r})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if v.Root != filepath.Join(dir, DirName) {
		t.Errorf("Root = %s", v.Root)
	}
	if len(r.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(r.calls))
	}
	got := r.calls[0]
	if got.String() != "/usr/bin/python3.12 -m venv .venv" || got.Dir != dir {
		t.Errorf("command = %q in %q", got, got.Dir)
	}

	r = &fakeRunner{}
	if _, err := Create(context.Background(), dir, "", Options{Runner: r}); err != nil {
		t.Fatal(err)
	}
	if r.calls[0].Path != DefaultPython {
		t.Errorf("default interpreter = %s, want %s", r.calls[0].Path, DefaultPython)
	}

	r = &fakeRunner{err: errors.New("exit status 1")}
	if _, err := Create(context.Background(), dir, "python3", Options{Runner: r}); err == nil {
		t.Error("Create() error = nil, want failure")
	}
}

func TestFindOrCreate(t *testing.T) {
	t.Setenv("VIRTUAL_ENV", "")
	dir := t.TempDir()

	r := &fakeRunner{}
	if _, err := FindOrCreate(context.Background(), dir, "", Options{Runner: r}); err != nil {
		t.Fatal(err)
	}
	if len(r.calls) != 1 {
		t.Errorf("calls = %d, want the venv command", len(r.calls))
	}

	fakeVenv(t, dir)
	r = &fakeRunner{}
	if _, err := FindOrCreate(context.Background(), dir, "", Options{Runner: r}); err != nil {
		t.Fatal(err)
	}
	if len(r.calls) != 0 {
		t.Errorf("calls = %d, want none for an existing environment", len(r.calls))
	}
}

func TestEnv(t *testing.T) {
	v := Open("/proj/.venv", Options{})
	sep := string(os.PathListSeparator)
	base := []string{"HOME=/home/me", "PATH=/usr/bin" + sep + "/bin", "VIRTUAL_ENV=/other", "PYTHONHOME=/x"}

	got := v.Env(base)
	want := []string{
		"HOME=/home/me",
		"PATH=" + v.BinDir() + sep + "/usr/bin" + sep + "/bin",
		"VIRTUAL_ENV=/proj/.venv",
	}
	if !slices.Equal(got, want) {
		t.Errorf("Env() = %q, want %q", got, want)
	}

	if got := v.Env(nil); !slices.Equal(got, []string{"PATH=" + v.BinDir(), "VIRTUAL_ENV=/proj/.venv"}) {
		t.Errorf("Env(nil) = %q", got)
	}
}

func TestMarkerEnvironment(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{
		"-c": `{"python_version": "3.12", "python_full_version": "3.12.4", "sys_platform": "linux", "os_name": "posix"}`,
	}}
	v := Open("/proj/.venv", Options{Runner: r})

	env, err := v.MarkerEnvironment(context.Background())
	if err != nil {
		t.Fatalf("MarkerEnvironment() error = %v", err)
	}
	if env[marker.VarPythonFullVersion] != "3.12.4" || env[marker.VarSysPlatform] != "linux" {
		t.Errorf("MarkerEnvironment() = %v", env)
	}
	if r.calls[0].Path != v.Python() {
		t.Errorf("ran %s, want the environment interpreter", r.calls[0].Path)
	}

	r.outputs["-c"] = "not json"
	if _, err := v.MarkerEnvironment(context.Background()); err == nil {
		t.Error("MarkerEnvironment() error = nil for bad output")
	}
	r.outputs["-c"] = "{}"
	if _, err := v.MarkerEnvironment(context.Background()); err == nil {
		t.Error("MarkerEnvironment() error = nil without python_version")
	}
}

func TestQueryMarkers(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{"-c": `{"python_version": "3.11"}`}}
	env, err := QueryMarkers(context.Background(), "", Options{Runner: r})
	if err != nil {
		t.Fatalf("QueryMarkers() error = %v", err)
	}
	if env[marker.VarPythonVersion] != "3.11" {
		t.Errorf("QueryMarkers() = %v", env)
	}
	if r.calls[0].Path != DefaultPython || r.calls[0].Env != nil {
		t.Errorf("command = %q, want the bare default interpreter", r.calls[0])
	}

	r = &fakeRunner{err: errors.New("executable file not found")}
	if _, err := QueryMarkers(context.Background(), "python9", Options{Runner: r}); !wherrors.Is(err, wherrors.ErrCodeEnvironmentNotFound) {
		t.Errorf("QueryMarkers() error = %v, want %s", err, wherrors.ErrCodeEnvironmentNotFound)
	}
}

func TestInstall(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{
		"pip list": `[{"name": "Requests", "version": "2.32.3"}, {"name": "idna", "version": "3.6"}]`,
	}}
	v := Open("/proj/.venv", Options{Runner: r})

	entries := []manifest.LockEntry{
		{Name: "idna", Version: "3.7"},
		{Name: "requests", Version: "2.32.3"},
		{Name: "urllib3", Version: "2.2.2"},
	}
	done, err := v.Install(context.Background(), entries)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if len(done) != 2 || done[0].Name != "idna" || done[1].Name != "urllib3" {
		t.Errorf("Install() = %v, want idna and urllib3", done)
	}

	last := r.calls[len(r.calls)-1]
	if !strings.HasSuffix(last.String(), "--no-deps --disable-pip-version-check idna==3.7 urllib3==2.2.2") {
		t.Errorf("install command = %q", last)
	}
	if !slices.Contains(last.Env, "VIRTUAL_ENV=/proj/.venv") {
		t.Error("install command does not run inside the environment")
	}

	// Nothing left to do.
	r.calls = nil
	r.outputs["pip list"] = `[{"name": "idna", "version": "3.7"}]`
	done, err = v.Install(context.Background(), entries[:1])
	if err != nil || len(done) != 0 || len(r.calls) != 1 {
		t.Errorf("Install() = %v, %v with %d calls, want no install", done, err, len(r.calls))
	}
}

func TestUninstall(t *testing.T) {
	r := &fakeRunner{}
	v := Open("/proj/.venv", Options{Runner: r})

	if err := v.Uninstall(context.Background(), nil); err != nil || len(r.calls) != 0 {
		t.Errorf("Uninstall(nil) = %v with %d calls", err, len(r.calls))
	}
	if err := v.Uninstall(context.Background(), []string{"Requests", "idna", "requests"}); err != nil {
		t.Fatalf("Uninstall() error = %v", err)
	}
	if got := r.calls[0].String(); !strings.HasSuffix(got, "uninstall -y --disable-pip-version-check idna requests") {
		t.Errorf("uninstall command = %q", got)
	}
}

func TestCommandCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &fakeRunner{err: errors.New("signal: killed")}
	v := Open("/proj/.venv", Options{Runner: r})
	if _, err := v.Installed(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Installed() error = %v, want context.Canceled", err)
	}
}
