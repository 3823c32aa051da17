package deps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	wherrors "github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/manifest"
	"github.com/matzehuels/wheelhouse/pkg/marker"
	"github.com/matzehuels/wheelhouse/pkg/observability"
	"github.com/matzehuels/wheelhouse/pkg/pep440"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

// release is one entry of a test index.
type release struct {
	name    string
	version string
	deps    []string
}

func newProvider(t *testing.T, rels ...release) *MemoryProvider {
	t.Helper()
	p := NewMemoryProvider()
	for _, r := range rels {
		if err := p.Add(r.name, r.version, r.deps...); err != nil {
			t.Fatalf("Add(%s, %s) error = %v", r.name, r.version, err)
		}
	}
	return p
}

func roots(reqs ...string) []requirement.Requirement {
	out := make([]requirement.Requirement, len(reqs))
	for i, r := range reqs {
		out[i] = requirement.MustParse(r)
	}
	return out
}

func pins(entries []manifest.LockEntry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.Name + "==" + e.Version
	}
	return strings.Join(parts, " ")
}

func entry(t *testing.T, entries []manifest.LockEntry, name string) manifest.LockEntry {
	t.Helper()
	for _, e := range entries {
		if e.Name == name {
			return e
		}
	}
	t.Fatalf("no lock entry for %s in %s", name, pins(entries))
	return manifest.LockEntry{}
}

func linux(python string) marker.Environment {
	return marker.DefaultEnvironment(python).
		With(marker.VarOSName, "posix").
		With(marker.VarSysPlatform, "linux").
		With(marker.VarPlatformSystem, "Linux")
}

func requestsIndex(t *testing.T) *MemoryProvider {
	return newProvider(t,
		release{"requests", "2.31.0", []string{"idna<4,>=2.5", "urllib3<3,>=1.21.1", "certifi>=2017.4.17", "charset-normalizer<4,>=2"}},
		release{"requests", "2.32.3", []string{"idna<4,>=2.5", "urllib3<3,>=1.21.1", "certifi>=2017.4.17", "charset-normalizer<4,>=2", "PySocks!=1.5.7,>=1.5.6; extra == 'socks'"}},
		release{"idna", "3.7", nil},
		release{"idna", "4.0", nil},
		release{"urllib3", "1.26.18", nil},
		release{"urllib3", "2.2.2", nil},
		release{"urllib3", "3.0.0a1", nil},
		release{"certifi", "2024.7.4", nil},
		release{"charset-normalizer", "3.3.2", nil},
		release{"pysocks", "1.7.1", nil},
	)
}

func TestResolveSimple(t *testing.T) {
	r := NewResolver(requestsIndex(t), Options{Environment: linux("3.12")})
	res, err := r.Resolve(context.Background(), roots("requests"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := "certifi==2024.7.4 charset-normalizer==3.3.2 idna==3.7 requests==2.32.3 urllib3==2.2.2"
	if got := pins(res.Packages); got != want {
		t.Errorf("Resolve() = %s, want %s", got, want)
	}
	if res.Rounds == 0 {
		t.Error("Resolve() Rounds = 0, want > 0")
	}

	deps := entry(t, res.Packages, "requests").Dependencies
	if got := strings.Join(deps, ","); got != "certifi,charset-normalizer,idna,urllib3" {
		t.Errorf("requests dependencies = %s", got)
	}
	if e := entry(t, res.Packages, "idna"); e.Markers != "" || len(e.Dependencies) != 0 {
		t.Errorf("idna entry = %+v, want no markers and no dependencies", e)
	}
}

// Every pinned version satisfies every requirement that points at it.
func TestResolveSatisfiesConstraints(t *testing.T) {
	p := requestsIndex(t)
	env := linux("3.12")
	r := NewResolver(p, Options{Environment: env})
	res, err := r.Resolve(context.Background(), roots("requests[socks]", "urllib3<2"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	pinned := make(map[string]pep440.Version)
	for _, e := range res.Packages {
		pinned[e.Name] = pep440.MustParse(e.Version)
	}
	check := func(from string, reqs []requirement.Requirement, extras []string) {
		for _, req := range reqs {
			if !req.Applies(env, extras) {
				continue
			}
			v, ok := pinned[req.Name]
			if !ok {
				t.Errorf("%s requires %s, which is not locked", from, req)
				continue
			}
			if !req.Specifiers.Contains(v, true) {
				t.Errorf("%s requires %s, locked %s", from, req, v)
			}
		}
	}
	check("project", roots("requests[socks]", "urllib3<2"), nil)
	for _, e := range res.Packages {
		deps, err := p.GetDependencies(context.Background(), e.Name, pinned[e.Name])
		if err != nil {
			t.Fatal(err)
		}
		var extras []string
		if e.Name == "requests" {
			extras = []string{"socks"}
		}
		check(e.Name, deps, extras)
	}
	if got := entry(t, res.Packages, "urllib3").Version; got != "1.26.18" {
		t.Errorf("urllib3 = %s, want 1.26.18", got)
	}
}

func TestResolveDeterministic(t *testing.T) {
	encode := func(workers int) []byte {
		t.Helper()
		r := NewResolver(requestsIndex(t), Options{Environment: linux("3.12"), Workers: workers})
		res, err := r.Resolve(context.Background(), roots("requests[socks]", "idna"))
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		data, err := manifest.NewLock("fp", "3.12", res.Packages).Encode()
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		return data
	}

	first := encode(1)
	for _, workers := range []int{1, 4, 16} {
		for range 3 {
			if got := encode(workers); string(got) != string(first) {
				t.Fatalf("lock differs between runs (workers=%d):\n%s\nvs\n%s", workers, got, first)
			}
		}
	}
}

func TestResolveConflict(t *testing.T) {
	p := newProvider(t,
		release{"pkg", "0.9", nil},
		release{"pkg", "2.0", nil},
		release{"other", "1.0", []string{"pkg<1.0"}},
	)
	r := NewResolver(p, Options{})
	res, err := r.Resolve(context.Background(), roots("pkg>=2.0", "other"))
	if err == nil {
		t.Fatalf("Resolve() = %s, want conflict", pins(res.Packages))
	}

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Resolve() error = %T %v, want *ConflictError", err, err)
	}
	if !wherrors.Is(err, wherrors.ErrCodeResolutionConflict) {
		t.Errorf("error code = %q, want %q", wherrors.GetCode(err), wherrors.ErrCodeResolutionConflict)
	}
	if conflict.Package != "pkg" {
		t.Errorf("Package = %q, want pkg", conflict.Package)
	}

	var got []string
	for _, c := range conflict.Constraints {
		got = append(got, c.String())
	}
	want := []string{">=2.0 (from project)", "<1.0 (from other==1.0)"}
	if strings.Join(got, "; ") != strings.Join(want, "; ") {
		t.Errorf("Constraints = %q, want %q", got, want)
	}
	for _, s := range want {
		if !strings.Contains(err.Error(), s) {
			t.Errorf("Error() = %q, missing %q", err.Error(), s)
		}
	}
}

func TestResolveMissingPackage(t *testing.T) {
	r := NewResolver(NewMemoryProvider(), Options{})
	_, err := r.Resolve(context.Background(), roots("nope>=1"))

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Resolve() error = %v, want *ConflictError", err)
	}
	if !conflict.Missing || conflict.Package != "nope" {
		t.Errorf("conflict = %+v, want missing nope", conflict)
	}
	if !strings.Contains(err.Error(), "package nope not found") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !wherrors.Is(err, wherrors.ErrCodePackageNotFound) {
		t.Errorf("error code = %q, want %q", wherrors.GetCode(err), wherrors.ErrCodePackageNotFound)
	}

	p := newProvider(t, release{"app", "1.0", []string{"ghost>=1"}})
	_, err = NewResolver(p, Options{}).Resolve(context.Background(), roots("app"))
	if !errors.As(err, &conflict) || !conflict.Missing || conflict.Package != "ghost" {
		t.Fatalf("Resolve(app) error = %v, want missing ghost", err)
	}
	if !wherrors.Is(err, wherrors.ErrCodeResolutionConflict) {
		t.Errorf("transitive error code = %q, want %q", wherrors.GetCode(err), wherrors.ErrCodeResolutionConflict)
	}
}

func TestResolveBacktracks(t *testing.T) {
	p := newProvider(t,
		release{"a", "1.0", []string{"c==1.0"}},
		release{"a", "2.0", []string{"c==2.0"}},
		release{"b", "1.0", []string{"c==1.0"}},
		release{"b", "2.0", []string{"c==1.0"}},
		release{"b", "3.0", []string{"c==1.0"}},
		release{"c", "1.0", nil},
		release{"c", "2.0", nil},
	)
	hooks := &countingResolverHooks{}
	observability.SetResolverHooks(hooks)
	t.Cleanup(observability.Reset)

	res, err := NewResolver(p, Options{}).Resolve(context.Background(), roots("a", "b"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got, want := pins(res.Packages), "a==1.0 b==3.0 c==1.0"; got != want {
		t.Errorf("Resolve() = %s, want %s", got, want)
	}
	if hooks.backtracks == 0 {
		t.Error("OnBacktrack was not called")
	}
	if hooks.starts != 1 || hooks.completes != 1 || hooks.lastErr != nil || hooks.lastPackages != 3 {
		t.Errorf("hooks = %+v, want one successful run of 3 packages", hooks)
	}
}

func TestResolveNotFoundBacktracks(t *testing.T) {
	p := newProvider(t,
		release{"app", "1.0", nil},
		release{"app", "2.0", []string{"ghost>=1"}},
	)
	res, err := NewResolver(p, Options{}).Resolve(context.Background(), roots("app"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := pins(res.Packages); got != "app==1.0" {
		t.Errorf("Resolve() = %s, want app==1.0", got)
	}
}

func TestResolveMissingMetadata(t *testing.T) {
	p := &stubProvider{
		versions: map[string][]string{"app": {"1.0", "2.0"}},
		deps:     map[string][]string{"app==1.0": nil},
	}
	res, err := NewResolver(p, Options{}).Resolve(context.Background(), roots("app"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := pins(res.Packages); got != "app==1.0" {
		t.Errorf("Resolve() = %s, want app==1.0", got)
	}
}

func TestResolveMarkers(t *testing.T) {
	p := newProvider(t,
		release{"app", "1.0", []string{
			"colorama; sys_platform == 'win32'",
			"tomli>=1.1; python_version < '3.11'",
			"uvloop; sys_platform != 'win32'",
		}},
		release{"colorama", "0.4.6", []string{"helper"}},
		release{"tomli", "2.0.1", []string{"helper"}},
		release{"uvloop", "0.19.0", nil},
		release{"helper", "1.0", nil},
	)

	tests := []struct {
		name    string
		env     marker.Environment
		want    string
		markers map[string]string
	}{
		{
			name: "linux 3.12",
			env:  linux("3.12"),
			want: "app==1.0 uvloop==0.19.0",
			markers: map[string]string{
				"app":    "",
				"uvloop": `sys_platform != "win32"`,
			},
		},
		{
			name: "linux 3.10",
			env:  linux("3.10"),
			want: "app==1.0 helper==1.0 tomli==2.0.1 uvloop==0.19.0",
			markers: map[string]string{
				"tomli":  `python_version < "3.11"`,
				"helper": `python_version < "3.11"`,
			},
		},
		{
			name: "windows 3.10",
			env:  linux("3.10").With(marker.VarSysPlatform, "win32").With(marker.VarOSName, "nt"),
			want: "app==1.0 colorama==0.4.6 helper==1.0 tomli==2.0.1",
			markers: map[string]string{
				"colorama": `sys_platform == "win32"`,
				"helper":   `python_version < "3.11" or sys_platform == "win32"`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewResolver(p, Options{Environment: tt.env}).Resolve(context.Background(), roots("app"))
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got := pins(res.Packages); got != tt.want {
				t.Errorf("Resolve() = %s, want %s", got, tt.want)
			}
			for name, want := range tt.markers {
				if got := entry(t, res.Packages, name).Markers; got != want {
					t.Errorf("%s markers = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestResolveDefaultEnvironment(t *testing.T) {
	p := newProvider(t,
		release{"app", "1.0", []string{`importlib-metadata>=4; python_version < "3.8"`}},
		release{"importlib-metadata", "6.0", nil},
	)
	res, err := NewResolver(p, Options{}).Resolve(context.Background(), roots("app"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := pins(res.Packages); got != "app==1.0" {
		t.Errorf("Resolve() = %s, want app==1.0", got)
	}
}

func TestResolveRootMarker(t *testing.T) {
	p := newProvider(t, release{"pywin32", "306", nil}, release{"idna", "3.7", nil})
	res, err := NewResolver(p, Options{Environment: linux("3.12")}).
		Resolve(context.Background(), roots("pywin32; sys_platform == 'win32'", "idna"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := pins(res.Packages); got != "idna==3.7" {
		t.Errorf("Resolve() = %s, want idna==3.7", got)
	}
}

func TestResolveExtras(t *testing.T) {
	p := requestsIndex(t)
	env := linux("3.12")

	res, err := NewResolver(p, Options{Environment: env}).Resolve(context.Background(), roots("requests"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(pins(res.Packages), "pysocks") {
		t.Errorf("Resolve(requests) = %s, want no pysocks", pins(res.Packages))
	}

	res, err = NewResolver(p, Options{Environment: env}).Resolve(context.Background(), roots("requests[socks]"))
	if err != nil {
		t.Fatal(err)
	}
	if e := entry(t, res.Packages, "pysocks"); e.Version != "1.7.1" || e.Markers != "" {
		t.Errorf("pysocks entry = %+v, want 1.7.1 without markers", e)
	}
}

// An extra requested after its package is already pinned still pulls in
// the dependencies it gates.
func TestResolveLateExtra(t *testing.T) {
	p := newProvider(t,
		release{"a", "1.0", []string{"speedup>=2; extra == 'fast'"}},
		release{"b", "1.0", []string{"a[fast]"}},
		release{"speedup", "1.0", nil},
		release{"speedup", "2.0", nil},
	)
	res, err := NewResolver(p, Options{}).Resolve(context.Background(), roots("a", "b"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got, want := pins(res.Packages), "a==1.0 b==1.0 speedup==2.0"; got != want {
		t.Errorf("Resolve() = %s, want %s", got, want)
	}
	if got := entry(t, res.Packages, "a").Dependencies; len(got) != 1 || got[0] != "speedup" {
		t.Errorf("a dependencies = %v, want [speedup]", got)
	}
}

func TestResolvePrereleases(t *testing.T) {
	p := newProvider(t,
		release{"pkg", "1.0", nil},
		release{"pkg", "2.0b1", nil},
	)

	tests := []struct {
		name  string
		root  string
		allow bool
		want  string
	}{
		{"finals only", "pkg", false, "1.0"},
		{"named pre-release", "pkg>=2.0b1", false, "2.0b1"},
		{"allowed", "pkg", true, "2.0b1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewResolver(p, Options{AllowPrereleases: tt.allow}).Resolve(context.Background(), roots(tt.root))
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got := entry(t, res.Packages, "pkg").Version; got != tt.want {
				t.Errorf("pkg = %s, want %s", got, tt.want)
			}
		})
	}

	// Only pre-releases match and none is named: no fallback.
	_, err := NewResolver(p, Options{}).Resolve(context.Background(), roots("pkg>1.0"))
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Errorf("Resolve(pkg>1.0) error = %v, want *ConflictError", err)
	}
}

func TestResolveTooComplex(t *testing.T) {
	r := NewResolver(requestsIndex(t), Options{MaxRounds: 2})
	_, err := r.Resolve(context.Background(), roots("requests"))
	if !wherrors.Is(err, wherrors.ErrCodeResolutionTooComplex) {
		t.Errorf("Resolve() error = %v, want %s", err, wherrors.ErrCodeResolutionTooComplex)
	}
}

func TestResolveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewResolver(requestsIndex(t), Options{}).Resolve(ctx, roots("requests"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Resolve() error = %v, want context.Canceled", err)
	}
}

func TestResolveProviderFailure(t *testing.T) {
	p := &stubProvider{
		versions: map[string][]string{"app": {"1.0"}},
		fail:     errors.New("connection reset"),
	}
	_, err := NewResolver(p, Options{}).Resolve(context.Background(), roots("app"))
	if !wherrors.Is(err, wherrors.ErrCodeNetwork) {
		t.Errorf("Resolve() error = %v, want %s", err, wherrors.ErrCodeNetwork)
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		t.Error("provider failure reported as a conflict")
	}
}

func TestResolveLogger(t *testing.T) {
	var lines []string
	opts := Options{Logger: func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}}
	if _, err := NewResolver(requestsIndex(t), opts).Resolve(context.Background(), roots("requests")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(strings.Join(lines, "\n"), "pin requests==2.32.3") {
		t.Errorf("log lines = %q, want a pin of requests", lines)
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{}.WithDefaults()
	if opts.MaxRounds != DefaultMaxRounds {
		t.Errorf("MaxRounds = %d, want %d", opts.MaxRounds, DefaultMaxRounds)
	}
	if opts.Workers != DefaultWorkers {
		t.Errorf("Workers = %d, want %d", opts.Workers, DefaultWorkers)
	}
	if opts.Environment == nil || opts.Logger == nil {
		t.Error("WithDefaults() left Environment or Logger nil")
	}

	opts = Options{MaxRounds: 10, Workers: 2}.WithDefaults()
	if opts.MaxRounds != 10 || opts.Workers != 2 {
		t.Errorf("WithDefaults() overrode explicit values: %+v", opts)
	}
}

// stubProvider serves fixed version lists. Dependencies missing from deps
// are ErrNotFound; fail, when set, is returned by GetDependencies.
type stubProvider struct {
	versions map[string][]string
	deps     map[string][]string
	fail     error
}

func (p *stubProvider) ListVersions(_ context.Context, name string) ([]pep440.Version, error) {
	raw, ok := p.versions[name]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]pep440.Version, len(raw))
	for i, s := range raw {
		out[i] = pep440.MustParse(s)
	}
	return out, nil
}

func (p *stubProvider) GetDependencies(_ context.Context, name string, v pep440.Version) ([]requirement.Requirement, error) {
	if p.fail != nil {
		return nil, p.fail
	}
	raw, ok := p.deps[name+"=="+v.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return roots(raw...), nil
}

type countingResolverHooks struct {
	mu           sync.Mutex
	starts       int
	completes    int
	backtracks   int
	lastPackages int
	lastErr      error
}

func (h *countingResolverHooks) OnResolveStart(context.Context, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts++
}

func (h *countingResolverHooks) OnResolveComplete(_ context.Context, packages, _ int, _ time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completes++
	h.lastPackages = packages
	h.lastErr = err
}

func (h *countingResolverHooks) OnBacktrack(context.Context, string, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.backtracks++
}
