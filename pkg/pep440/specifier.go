package pep440

import (
	"slices"
	"strings"

	"github.com/matzehuels/wheelhouse/pkg/errors"
)

// Operator is a version comparison operator.
type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpLessEqual    Operator = "<="
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpGreater      Operator = ">"
	OpCompatible   Operator = "~="
	OpArbitrary    Operator = "==="
)

// Longest operators first so "===" is not read as "==".
var operators = []Operator{
	OpArbitrary, OpCompatible, OpEqual, OpNotEqual,
	OpLessEqual, OpGreaterEqual, OpLess, OpGreater,
}

// Specifier is a single version constraint such as ">=1.2" or "==1.4.*".
type Specifier struct {
	Op       Operator
	Version  Version // unset for === with a non-conformant version
	Wildcard bool    // trailing ".*" on == and !=
	Raw      string  // version text as written
}

// ParseSpecifier parses a single specifier.
func ParseSpecifier(text string) (Specifier, error) {
	s := strings.TrimSpace(text)
	fail := func(pos int, format string, args ...any) (Specifier, error) {
		return Specifier{}, errors.Parse(errors.ErrCodeInvalidSpecifier, text, pos+strings.Index(text, s), format, args...)
	}

	var op Operator
	for _, candidate := range operators {
		if strings.HasPrefix(s, string(candidate)) {
			op = candidate
			break
		}
	}
	if op == "" {
		return fail(0, "expected comparison operator")
	}

	raw := strings.TrimSpace(s[len(op):])
	at := len(op) + (len(s[len(op):]) - len(strings.TrimLeft(s[len(op):], " \t")))
	if raw == "" {
		return fail(at, "missing version after %q", op)
	}

	spec := Specifier{Op: op, Raw: raw}
	if op == OpArbitrary {
		if strings.ContainsAny(raw, " \t,;") {
			return fail(at, "invalid arbitrary version")
		}
		if v, err := Parse(raw); err == nil {
			spec.Version = v
		}
		return spec, nil
	}

	versionText := raw
	if strings.HasSuffix(raw, ".*") {
		if op != OpEqual && op != OpNotEqual {
			return fail(at+len(raw)-2, "wildcard not allowed with %q", op)
		}
		spec.Wildcard = true
		versionText = strings.TrimSuffix(raw, ".*")
	}

	v, err := Parse(versionText)
	if err != nil {
		pos := at
		var pe *errors.ParseError
		if errors.As(err, &pe) {
			pos += pe.Pos
		}
		return fail(pos, "invalid version %q", versionText)
	}
	spec.Version = v

	switch {
	case spec.Wildcard && (v.IsLocal() || v.PreKind != "" || v.HasPost || v.HasDev):
		return fail(at, "wildcard prefix must be a plain release")
	case op == OpCompatible && len(v.Release) < 2:
		return fail(at, "%q needs at least two release segments", op)
	case v.IsLocal() && op != OpEqual && op != OpNotEqual:
		return fail(at, "local version not allowed with %q", op)
	}
	return spec, nil
}

// MustParseSpecifier is like ParseSpecifier but panics on error.
func MustParseSpecifier(text string) Specifier {
	s, err := ParseSpecifier(text)
	if err != nil {
		panic(err)
	}
	return s
}

// String returns the specifier in normalized form.
func (s Specifier) String() string {
	switch {
	case s.Op == OpArbitrary:
		return string(s.Op) + s.Raw
	case s.Wildcard:
		return string(s.Op) + s.Version.String() + ".*"
	default:
		return string(s.Op) + s.Version.String()
	}
}

// NamesPrerelease reports whether s explicitly admits pre-releases by
// naming one. Exclusions (!=) never do.
func (s Specifier) NamesPrerelease() bool {
	switch s.Op {
	case OpNotEqual:
		return false
	case OpArbitrary:
		return s.Version.Release != nil && s.Version.IsPrerelease()
	}
	return s.Version.IsPrerelease()
}

// Matches reports whether v satisfies s. Pre-releases only match when
// prereleases is true or s names a pre-release itself.
func (s Specifier) Matches(v Version, prereleases bool) bool {
	if v.IsPrerelease() && !prereleases && !s.NamesPrerelease() {
		return false
	}
	return s.matches(v)
}

func (s Specifier) matches(v Version) bool {
	switch s.Op {
	case OpEqual:
		return s.equal(v)
	case OpNotEqual:
		return !s.equal(v)
	case OpLessEqual:
		return Compare(v.Public(), s.Version) <= 0
	case OpGreaterEqual:
		return Compare(v.Public(), s.Version) >= 0
	case OpLess:
		return s.less(v)
	case OpGreater:
		return s.greater(v)
	case OpCompatible:
		prefix := Specifier{Op: OpEqual, Wildcard: true, Version: Version{
			Epoch:   s.Version.Epoch,
			Release: s.Version.Release[:len(s.Version.Release)-1],
		}}
		return Compare(v.Public(), s.Version) >= 0 && prefix.equal(v)
	case OpArbitrary:
		return strings.EqualFold(v.Raw(), s.Raw)
	}
	return false
}

func (s Specifier) equal(v Version) bool {
	if s.Wildcard {
		if v.Epoch != s.Version.Epoch {
			return false
		}
		for i, n := range s.Version.Release {
			if v.segment(i) != n {
				return false
			}
		}
		return true
	}
	if s.Version.IsLocal() {
		return Compare(v, s.Version) == 0
	}
	return Compare(v.Public(), s.Version) == 0
}

// less excludes pre-releases of the bound's own release unless the bound is
// itself a pre-release, so "<2.0" never admits "2.0a1".
func (s Specifier) less(v Version) bool {
	p := v.Public()
	if Compare(p, s.Version) >= 0 {
		return false
	}
	if !s.Version.IsPrerelease() && v.IsPrerelease() &&
		Compare(v.BaseVersion(), s.Version.BaseVersion()) == 0 {
		return false
	}
	return true
}

// greater excludes post-releases and local versions of the bound, so ">1.0"
// never admits "1.0.post1" or "1.0+local".
func (s Specifier) greater(v Version) bool {
	p := v.Public()
	if Compare(p, s.Version) <= 0 {
		return false
	}
	if !s.Version.IsPostRelease() && v.IsPostRelease() &&
		Compare(v.BaseVersion(), s.Version.BaseVersion()) == 0 {
		return false
	}
	if v.IsLocal() && Compare(v.BaseVersion(), s.Version.BaseVersion()) == 0 {
		return false
	}
	return true
}

// SpecifierSet is a conjunction of specifiers. The empty set matches every
// version.
type SpecifierSet []Specifier

// ParseSpecifierSet parses a comma separated list of specifiers. Empty or
// blank input yields the empty set.
func ParseSpecifierSet(text string) (SpecifierSet, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	var set SpecifierSet
	offset := 0
	for _, part := range strings.Split(text, ",") {
		s, err := ParseSpecifier(part)
		if err != nil {
			var pe *errors.ParseError
			if errors.As(err, &pe) {
				return nil, errors.Parse(errors.ErrCodeInvalidSpecifier, text, offset+pe.Pos, "%s", pe.Message)
			}
			return nil, err
		}
		set = append(set, s)
		offset += len(part) + 1
	}
	return set, nil
}

// MustParseSpecifierSet is like ParseSpecifierSet but panics on error.
func MustParseSpecifierSet(text string) SpecifierSet {
	s, err := ParseSpecifierSet(text)
	if err != nil {
		panic(err)
	}
	return s
}

// NamesPrerelease reports whether any member names a pre-release.
func (set SpecifierSet) NamesPrerelease() bool {
	return slices.ContainsFunc(set, Specifier.NamesPrerelease)
}

// Contains reports whether v satisfies every specifier in the set.
// Pre-releases are admitted when prereleases is true or any member of the
// set names a pre-release.
func (set SpecifierSet) Contains(v Version, prereleases bool) bool {
	if v.IsPrerelease() && !prereleases && !set.NamesPrerelease() {
		return false
	}
	for _, s := range set {
		if !s.matches(v) {
			return false
		}
	}
	return true
}

// Intersect returns the conjunction of set and other, without duplicates.
func (set SpecifierSet) Intersect(other SpecifierSet) SpecifierSet {
	out := make(SpecifierSet, 0, len(set)+len(other))
	seen := make(map[string]bool, len(set)+len(other))
	for _, s := range slices.Concat(set, other) {
		key := s.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// String returns the members sorted and comma joined, so equal sets
// always print the same way.
func (set SpecifierSet) String() string {
	parts := make([]string, len(set))
	for i, s := range set {
		parts[i] = s.String()
	}
	slices.Sort(parts)
	parts = slices.Compact(parts)
	return strings.Join(parts, ",")
}
