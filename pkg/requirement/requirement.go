// Package requirement parses dependency requirements such as
//
//	requests[socks,security] >=2.28,<3 ; python_version >= "3.8"
//
// into a normalized name, a set of extras, a version specifier set and an
// optional environment marker.
//
// Direct references ("name @ https://...") are rejected: wheelhouse only
// installs from a package index.
package requirement

import (
	"slices"
	"strings"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/marker"
	"github.com/matzehuels/wheelhouse/pkg/pep440"
)

// Requirement is a parsed dependency requirement.
type Requirement struct {
	Name       string              // normalized project name
	Extras     []string            // normalized, sorted, unique
	Specifiers pep440.SpecifierSet // empty matches any version
	Marker     marker.Expr         // nil means unconditional
}

// NormalizeName returns the canonical form of a project or extra name:
// lowercase with each run of "-", "_" and "." replaced by a single "-".
func NormalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	sep := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '-' || c == '_' || c == '.' {
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte('-')
		}
		sep = false
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		b.WriteByte(c)
	}
	return b.String()
}

// ValidName reports whether name is a well-formed project name.
func ValidName(name string) bool {
	return name != "" && nameEnd(name, 0) == len(name)
}

// nameEnd returns the end of the name starting at i, or i if there is none.
// Names start and end with an ASCII letter or digit.
func nameEnd(s string, i int) int {
	if i >= len(s) || !isAlnum(s[i]) {
		return i
	}
	end := i + 1
	for j := i + 1; j < len(s) && isNameChar(s[j]); j++ {
		if isAlnum(s[j]) {
			end = j + 1
		}
	}
	return end
}

func isAlnum(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isAlnum(c) || c == '-' || c == '_' || c == '.'
}

// Parse parses a requirement string.
func Parse(text string) (Requirement, error) {
	fail := func(pos int, format string, args ...any) (Requirement, error) {
		return Requirement{}, errors.Parse(errors.ErrCodeInvalidRequirement, text, pos, format, args...)
	}
	skip := func(i int) int {
		for i < len(text) && (text[i] == ' ' || text[i] == '\t') {
			i++
		}
		return i
	}

	i := skip(0)
	end := nameEnd(text, i)
	if end == i {
		return fail(i, "expected package name")
	}
	req := Requirement{Name: NormalizeName(text[i:end])}
	i = skip(end)

	if i < len(text) && text[i] == '[' {
		closeAt := strings.IndexByte(text[i:], ']')
		if closeAt < 0 {
			return fail(i, "unterminated extras list")
		}
		pos := i + 1
		for _, part := range strings.Split(text[i+1:i+closeAt], ",") {
			name := strings.TrimSpace(part)
			if name == "" {
				if strings.TrimSpace(text[i+1:i+closeAt]) != "" {
					return fail(pos, "empty extra name")
				}
			} else if !ValidName(name) {
				return fail(pos+strings.Index(part, name), "invalid extra name %q", name)
			} else {
				req.Extras = append(req.Extras, NormalizeName(name))
			}
			pos += len(part) + 1
		}
		slices.Sort(req.Extras)
		req.Extras = slices.Compact(req.Extras)
		i = skip(i + closeAt + 1)
	}

	if i < len(text) && text[i] == '@' {
		return fail(i, "direct references are not supported")
	}

	specEnd := len(text)
	if semi := strings.IndexByte(text[i:], ';'); semi >= 0 {
		specEnd = i + semi
	}
	specText := text[i:specEnd]
	specAt := i
	if trimmed := strings.TrimSpace(specText); strings.HasPrefix(trimmed, "(") {
		if !strings.HasSuffix(trimmed, ")") {
			return fail(specAt+strings.Index(specText, "("), "unterminated \"(\"")
		}
		open := strings.Index(specText, "(")
		specAt += open + 1
		specText = trimmed[1 : len(trimmed)-1]
	}
	if strings.TrimSpace(specText) != "" {
		first := strings.TrimSpace(specText)[0]
		if isAlnum(first) {
			return fail(specAt+strings.Index(specText, string(first)), "unexpected %q after package name", first)
		}
		set, err := pep440.ParseSpecifierSet(specText)
		if err != nil {
			var pe *errors.ParseError
			if errors.As(err, &pe) {
				return fail(specAt+pe.Pos, "%s", pe.Message)
			}
			return Requirement{}, err
		}
		req.Specifiers = set
	}

	if specEnd < len(text) {
		markerAt := specEnd + 1
		m, err := marker.Parse(text[markerAt:])
		if err != nil {
			var pe *errors.ParseError
			if errors.As(err, &pe) {
				return fail(markerAt+pe.Pos, "invalid marker: %s", pe.Message)
			}
			return Requirement{}, err
		}
		req.Marker = m
	}
	return req, nil
}

// MustParse is like Parse but panics on error.
func MustParse(text string) Requirement {
	r, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the canonical form: normalized name, sorted extras,
// sorted specifiers and the canonical marker.
func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		b.WriteByte('[')
		b.WriteString(strings.Join(r.Extras, ","))
		b.WriteByte(']')
	}
	b.WriteString(r.Specifiers.String())
	if r.Marker != nil {
		b.WriteString("; ")
		b.WriteString(r.Marker.String())
	}
	return b.String()
}

// Applies reports whether the requirement is active in env when the
// given extras of its parent are requested.
func (r Requirement) Applies(env marker.Environment, extras []string) bool {
	return marker.EvaluateExtras(r.Marker, env, extras)
}

// HasExtra reports whether r requests the named extra.
func (r Requirement) HasExtra(extra string) bool {
	_, ok := slices.BinarySearch(r.Extras, NormalizeName(extra))
	return ok
}
