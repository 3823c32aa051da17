package deps

import (
	"maps"
	"slices"
	"strings"

	"github.com/matzehuels/wheelhouse/pkg/manifest"
	"github.com/matzehuels/wheelhouse/pkg/marker"
)

// emit turns a finished state into lock entries, sorted by name.
func emit(st *state) []manifest.LockEntry {
	edges := make(map[string][]string)
	for _, name := range slices.Sorted(maps.Keys(st.constraints)) {
		for _, c := range st.constraints[name] {
			if c.parent != "" && c.parent != name && !slices.Contains(edges[c.parent], name) {
				edges[c.parent] = append(edges[c.parent], name)
			}
		}
	}

	mk := &markerSolver{st: st, memo: make(map[string]marker.Expr), visiting: make(map[string]bool)}
	names := slices.Sorted(maps.Keys(st.decided))
	out := make([]manifest.LockEntry, 0, len(names))
	for _, name := range names {
		e := manifest.LockEntry{
			Name:         name,
			Version:      st.decided[name].String(),
			Dependencies: edges[name],
		}
		slices.Sort(e.Dependencies)
		if m := mk.of(name); m != nil {
			e.Markers = m.String()
		}
		out = append(out, e)
	}
	return out
}

// markerSolver computes the condition under which each package is needed:
// the or of, over every requirement on it, the requirement's marker and the
// condition of the package that declared it. A nil result means always.
//
// Markers that test extra are treated as always true; the extras were
// chosen when resolving and the lock is installed as a whole. Cycles are
// cut by treating the package being computed as always needed.
type markerSolver struct {
	st       *state
	memo     map[string]marker.Expr
	visiting map[string]bool
}

func (m *markerSolver) of(name string) marker.Expr {
	if expr, ok := m.memo[name]; ok {
		return expr
	}
	if m.visiting[name] {
		return nil
	}
	m.visiting[name] = true
	defer delete(m.visiting, name)

	var terms []marker.Expr
	seen := make(map[string]bool)
	for _, c := range m.st.constraints[name] {
		own := c.req.Marker
		if own != nil && marker.References(own, marker.VarExtra) {
			own = nil
		}
		var parent marker.Expr
		if c.parent != "" && c.parent != name {
			parent = m.of(c.parent)
		}
		term := marker.Combine("and", parent, own)
		if term == nil {
			m.memo[name] = nil
			return nil
		}
		if key := term.String(); !seen[key] {
			seen[key] = true
			terms = append(terms, term)
		}
	}
	slices.SortFunc(terms, func(a, b marker.Expr) int { return strings.Compare(a.String(), b.String()) })
	expr := marker.Combine("or", terms...)
	m.memo[name] = expr
	return expr
}
