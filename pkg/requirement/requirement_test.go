package requirement

import (
	"slices"
	"testing"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/marker"
)

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"Requests":          "requests",
		"zope.interface":    "zope-interface",
		"Foo__Bar--baz..q":  "foo-bar-baz-q",
		"a-_.-b":            "a-b",
		"typing_extensions": "typing-extensions",
	}
	for in, want := range tests {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidName(t *testing.T) {
	for _, name := range []string{"a", "A1", "foo.bar", "foo-bar_baz", "9lives"} {
		if !ValidName(name) {
			t.Errorf("ValidName(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"", "-foo", "foo-", "foo bar", "foo!", "_x"} {
		if ValidName(name) {
			t.Errorf("ValidName(%q) = true, want false", name)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in     string
		name   string
		extras []string
		specs  string
		marker string
		str    string
	}{
		{
			in: "requests", name: "requests",
			str: "requests",
		},
		{
			in: "Django>=4.2,<5", name: "django", specs: "<5,>=4.2",
			str: "django<5,>=4.2",
		},
		{
			in: "  Requests [Security , socks]  >= 2.28 ", name: "requests",
			extras: []string{"security", "socks"}, specs: ">=2.28",
			str: "requests[security,socks]>=2.28",
		},
		{
			in: "zope.interface (>=5.0)", name: "zope-interface", specs: ">=5.0",
			str: "zope-interface>=5.0",
		},
		{
			in: `tomli>=1.1.0; python_version < "3.11"`, name: "tomli", specs: ">=1.1.0",
			marker: `python_version < "3.11"`,
			str:    `tomli>=1.1.0; python_version < "3.11"`,
		},
		{
			in: `pysocks!=1.5.7,>=1.5.6 ; extra == 'socks'`, name: "pysocks", specs: "!=1.5.7,>=1.5.6",
			marker: `extra == "socks"`,
			str:    `pysocks!=1.5.7,>=1.5.6; extra == "socks"`,
		},
		{
			in: "pkg[]", name: "pkg",
			str: "pkg",
		},
		{
			in: "numpy==1.26.*", name: "numpy", specs: "==1.26.*",
			str: "numpy==1.26.*",
		},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.in, err)
			}
			if r.Name != tt.name {
				t.Errorf("Name = %q, want %q", r.Name, tt.name)
			}
			if !slices.Equal(r.Extras, tt.extras) {
				t.Errorf("Extras = %v, want %v", r.Extras, tt.extras)
			}
			if got := r.Specifiers.String(); got != tt.specs {
				t.Errorf("Specifiers = %q, want %q", got, tt.specs)
			}
			gotMarker := ""
			if r.Marker != nil {
				gotMarker = r.Marker.String()
			}
			if gotMarker != tt.marker {
				t.Errorf("Marker = %q, want %q", gotMarker, tt.marker)
			}
			if got := r.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		in   string
		near string
	}{
		{"", ""},
		{">=1.0", ">=1.0"},
		{"-pkg", "-pkg"},
		{"pkg[sec", "[sec"},
		{"pkg[a,,b]", ",b]"},
		{"pkg[-x]", "-x]"},
		{"pkg @ https://example.com/pkg.whl", "@ https://exampl"},
		{"pkg 1.0", "1.0"},
		{"pkg>=1.0.x", ".x"},
		{"pkg (>=1.0", "(>=1.0"},
		{`pkg; python_version <`, ""},
		{`pkg; os_name = "nt"`, `= "nt"`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := Parse(tt.in)
			if !errors.Is(err, errors.ErrCodeInvalidRequirement) {
				t.Fatalf("Parse(%q) error = %v, want %s", tt.in, err, errors.ErrCodeInvalidRequirement)
			}
			var pe *errors.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Parse(%q) error is not a ParseError", tt.in)
			}
			if pe.Near() != tt.near {
				t.Errorf("Near() = %q, want %q", pe.Near(), tt.near)
			}
		})
	}
}

func TestApplies(t *testing.T) {
	env := marker.Environment{
		marker.VarPythonVersion: "3.10",
		marker.VarSysPlatform:   "linux",
	}
	tests := []struct {
		req    string
		extras []string
		want   bool
	}{
		{"plain", nil, true},
		{`tomli; python_version < "3.11"`, nil, true},
		{`pywin32; sys_platform == "win32"`, nil, false},
		{`pysocks; extra == "socks"`, nil, false},
		{`pysocks; extra == "socks"`, []string{"socks"}, true},
		{`pysocks; extra == "socks" and sys_platform == "win32"`, []string{"socks"}, false},
	}
	for _, tt := range tests {
		if got := MustParse(tt.req).Applies(env, tt.extras); got != tt.want {
			t.Errorf("Applies(%s, %v) = %v, want %v", tt.req, tt.extras, got, tt.want)
		}
	}
}

func TestHasExtra(t *testing.T) {
	r := MustParse("pkg[Fast_IO,tls]")
	if !r.HasExtra("fast-io") || !r.HasExtra("TLS") {
		t.Errorf("HasExtra() missed a requested extra in %v", r.Extras)
	}
	if r.HasExtra("other") {
		t.Error("HasExtra(other) = true, want false")
	}
}
