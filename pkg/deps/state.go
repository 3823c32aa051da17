package deps

import (
	"maps"
	"slices"
	"strings"

	"github.com/matzehuels/wheelhouse/pkg/pep440"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

// constraint is an active requirement together with the decision that
// introduced it. An empty parent means the manifest.
type constraint struct {
	req           requirement.Requirement
	parent        string
	parentVersion pep440.Version
}

func (c constraint) origin() string {
	if c.parent == "" {
		return RootOrigin
	}
	return c.parent + "==" + c.parentVersion.String()
}

// state is everything a decision depends on. States are treated as
// values: every decision works on a clone, so a frame can restore the state
// it started from.
type state struct {
	constraints map[string][]constraint
	decided     map[string]pep440.Version
	extras      map[string][]string
}

func newState() *state {
	return &state{
		constraints: make(map[string][]constraint),
		decided:     make(map[string]pep440.Version),
		extras:      make(map[string][]string),
	}
}

// clone copies the maps. Slices are shared and only ever replaced, never
// appended to in place.
func (s *state) clone() *state {
	return &state{
		constraints: maps.Clone(s.constraints),
		decided:     maps.Clone(s.decided),
		extras:      maps.Clone(s.extras),
	}
}

func (s *state) addConstraint(c constraint) {
	name := c.req.Name
	s.constraints[name] = append(slices.Clip(s.constraints[name]), c)
}

// specifiers returns the intersection of every constraint on name.
func (s *state) specifiers(name string) pep440.SpecifierSet {
	var set pep440.SpecifierSet
	for _, c := range s.constraints[name] {
		set = set.Intersect(c.req.Specifiers)
	}
	return set
}

// mergeExtras adds extras to the set requested for name and returns the
// previous set and whether it grew.
func (s *state) mergeExtras(name string, extras []string) ([]string, bool) {
	old := s.extras[name]
	merged := slices.Clone(old)
	for _, e := range extras {
		if !slices.Contains(merged, e) {
			merged = append(merged, e)
		}
	}
	if len(merged) == len(old) {
		return old, false
	}
	slices.Sort(merged)
	s.extras[name] = merged
	return old, true
}

// pending returns the constrained but undecided names, sorted.
func (s *state) pending() []string {
	var out []string
	for name := range s.constraints {
		if _, ok := s.decided[name]; !ok {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

func (s *state) String() string {
	names := slices.Sorted(maps.Keys(s.decided))
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + "==" + s.decided[n].String()
	}
	return strings.Join(parts, " ")
}

// frame is one entry of the decision trail.
type frame struct {
	name         string
	version      pep440.Version
	alternatives []pep440.Version // untried compatible versions, newest first
	before       *state           // state the decision was made in
}
