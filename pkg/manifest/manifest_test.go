package manifest

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

const sampleManifest = `# Demo project
[project]
name = "demo"
version = "0.3.1"
requires-python = ">=3.9"
dependencies = [
    "Requests >= 2.28",  # http
    "click",
]

[project.optional-dependencies]
socks = ["PySocks"]
docs = [
  "sphinx>=7",
]

[tool.wheelhouse]
dev-dependencies = ["pytest"]

[tool.black]
line-length = 100
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func names(reqs []requirement.Requirement) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.Name
	}
	return out
}

func TestLoadManifest(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, sampleManifest))
	if err != nil {
		t.Fatalf("LoadManifest() error: %v", err)
	}
	if m.Name != "demo" || m.Version != "0.3.1" || m.RequiresPython != ">=3.9" {
		t.Errorf("project = %q %q %q", m.Name, m.Version, m.RequiresPython)
	}
	if got := names(m.Dependencies); !slices.Equal(got, []string{"requests", "click"}) {
		t.Errorf("Dependencies = %v", got)
	}
	if got := m.Groups(); !slices.Equal(got, []string{"dev", "docs", "socks"}) {
		t.Errorf("Groups() = %v", got)
	}
	if got := names(m.DevDependencies); !slices.Equal(got, []string{"pytest"}) {
		t.Errorf("DevDependencies = %v", got)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    errors.Code
	}{
		{"syntax", "[project\nname = 1", errors.ErrCodeManifestParse},
		{"missing name", "[project]\nversion = \"1\"\n", errors.ErrCodeInvalidManifest},
		{"bad requirement", "[project]\nname = \"x\"\ndependencies = [\"requests >= \"]\n", errors.ErrCodeInvalidManifest},
		{"wrong type", "[project]\nname = \"x\"\ndependencies = \"requests\"\n", errors.ErrCodeInvalidManifest},
		{"conflicting extras", "[project]\nname = \"x\"\ndependencies = [\"a[x]\", \"A[y]\"]\n", errors.ErrCodeInvalidManifest},
		{"conflicting extras across groups", "[project]\nname = \"x\"\ndependencies = [\"a\"]\n[project.optional-dependencies]\nfast = [\"a[speedups]\"]\n", errors.ErrCodeInvalidManifest},
		{"conflicting extras in dev", "[project]\nname = \"x\"\ndependencies = [\"a[x]\"]\n[tool.wheelhouse]\ndev-dependencies = [\"a\"]\n", errors.ErrCodeInvalidManifest},
		{"dev group declared twice", "[project]\nname = \"x\"\n[project.optional-dependencies]\ndev = [\"black\"]\n[tool.wheelhouse]\ndev-dependencies = [\"pytest\"]\n", errors.ErrCodeInvalidManifest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadManifest(writeManifest(t, tt.content))
			if !errors.Is(err, tt.code) {
				t.Errorf("LoadManifest() error = %v, want %s", err, tt.code)
			}
		})
	}

	_, err := LoadManifest(filepath.Join(t.TempDir(), FileName))
	if !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("LoadManifest(missing) error = %v, want %s", err, errors.ErrCodeFileNotFound)
	}
}

func TestDuplicateWithSameExtrasAllowed(t *testing.T) {
	_, err := LoadManifest(writeManifest(t, "[project]\nname = \"x\"\ndependencies = [\"a[x]>=1\", \"a[x]<3\"]\n"))
	if err != nil {
		t.Errorf("LoadManifest() error = %v, want nil", err)
	}
	_, err = LoadManifest(writeManifest(t, "[project]\nname = \"x\"\ndependencies = [\"a[x]>=1\"]\n[project.optional-dependencies]\nold = [\"A[x]<3\"]\n"))
	if err != nil {
		t.Errorf("LoadManifest(same extras in two groups) error = %v, want nil", err)
	}
}

func TestOptionalDevGroup(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, "[project]\nname = \"x\"\n[project.optional-dependencies]\ndev = [\"black\"]\n"))
	if err != nil {
		t.Fatal(err)
	}
	reqs, err := m.Requirements(DevGroup)
	if err != nil || !slices.Equal(names(reqs), []string{"black"}) {
		t.Errorf("Requirements(dev) = %v, %v; want [black]", names(reqs), err)
	}
	if err := m.AddDependency(requirement.MustParse("pytest"), DevGroup); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(m.Bytes()), "dev-dependencies") {
		t.Errorf("dev group written to [tool.wheelhouse]:\n%s", m.Bytes())
	}
	if reqs, _ := m.Group(DevGroup); !slices.Equal(names(reqs), []string{"black", "pytest"}) {
		t.Errorf("Group(dev) = %v", names(reqs))
	}
}

func TestRequirements(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, sampleManifest))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		groups []string
		want   []string
	}{
		{nil, []string{"requests", "click", "pytest", "sphinx", "pysocks"}},
		{[]string{RequiredGroup}, []string{"requests", "click"}},
		{[]string{"socks"}, []string{"requests", "click", "pysocks"}},
		{[]string{"docs", "dev"}, []string{"requests", "click", "sphinx", "pytest"}},
	}
	for _, tt := range tests {
		reqs, err := m.Requirements(tt.groups...)
		if err != nil {
			t.Fatalf("Requirements(%v) error: %v", tt.groups, err)
		}
		if got := names(reqs); !slices.Equal(got, tt.want) {
			t.Errorf("Requirements(%v) = %v, want %v", tt.groups, got, tt.want)
		}
	}

	if _, err := m.Requirements("nope"); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Requirements(nope) error = %v, want %s", err, errors.ErrCodeNotFound)
	}
}

func TestFingerprint(t *testing.T) {
	a, err := ParseManifest("a", []byte(sampleManifest))
	if err != nil {
		t.Fatal(err)
	}

	reformatted := strings.NewReplacer(
		`"Requests >= 2.28",  # http`, `"click",  # cli`,
		`    "click",`, `    "requests>=2.28",`,
		`version = "0.3.1"`, `version = "9.9.9"`,
	).Replace(sampleManifest)
	b, err := ParseManifest("b", []byte(reformatted))
	if err != nil {
		t.Fatal(err)
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("Fingerprint() changed for a reordered, respelled, version-bumped manifest")
	}
	if !strings.HasPrefix(a.Fingerprint(), "sha256:") {
		t.Errorf("Fingerprint() = %q, want sha256: prefix", a.Fingerprint())
	}

	changed := strings.Replace(sampleManifest, `"click",`, `"click>=8",`, 1)
	c, err := ParseManifest("c", []byte(changed))
	if err != nil {
		t.Fatal(err)
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("Fingerprint() did not change when a constraint changed")
	}
}

func TestFind(t *testing.T) {
	path := writeManifest(t, sampleManifest)
	nested := filepath.Join(filepath.Dir(path), "src", "pkg")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := Find(nested)
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if got != path {
		t.Errorf("Find() = %q, want %q", got, path)
	}
}
