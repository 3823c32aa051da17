// Package marker parses and evaluates environment markers, the conditions
// attached to requirements such as `python_version < "3.11"` or
// `sys_platform == "win32" and extra == "tls"`.
//
// A parsed marker is a tree of [And], [Or] and [Compare] nodes. Evaluation
// walks the tree against an [Environment], a fixed map of variable values
// for the target interpreter and platform.
//
// Comparisons where both sides parse as versions use version semantics
// (so "3.10" > "3.9"); everything else compares as strings. A variable that
// is missing from the environment makes its comparison false.
package marker

import (
	"slices"
	"strconv"
	"strings"

	"github.com/matzehuels/wheelhouse/pkg/pep440"
)

// Op is a marker comparison operator.
type Op string

const (
	OpEqual        Op = "=="
	OpNotEqual     Op = "!="
	OpLessEqual    Op = "<="
	OpGreaterEqual Op = ">="
	OpLess         Op = "<"
	OpGreater      Op = ">"
	OpCompatible   Op = "~="
	OpArbitrary    Op = "==="
	OpIn           Op = "in"
	OpNotIn        Op = "not in"
)

// Expr is a node of a marker tree. The concrete types are *And, *Or and
// *Compare.
type Expr interface {
	// Evaluate reports whether the marker holds in env. The "extra"
	// variable is taken from env and defaults to the empty string.
	Evaluate(env Environment) bool

	// String returns the canonical text of the marker.
	String() string

	eval(env Environment) bool
}

// And holds when every term holds.
type And struct{ Terms []Expr }

// Or holds when any term holds.
type Or struct{ Terms []Expr }

// Value is one side of a comparison: either a variable or a literal.
type Value struct {
	Variable string // canonical variable name; empty for literals
	Literal  string
}

// Var returns a variable operand.
func Var(name string) Value { return Value{Variable: canonicalVariable(name)} }

// Lit returns a literal operand.
func Lit(s string) Value { return Value{Literal: s} }

// IsVariable reports whether v names a variable.
func (v Value) IsVariable() bool { return v.Variable != "" }

func (v Value) String() string {
	if v.IsVariable() {
		return v.Variable
	}
	return quote(v.Literal)
}

func (v Value) resolve(env Environment) (string, bool) {
	if !v.IsVariable() {
		return v.Literal, true
	}
	s, ok := env[v.Variable]
	if !ok && v.Variable == VarExtra {
		return "", true
	}
	return s, ok
}

// Compare is a single `left op right` test.
type Compare struct {
	Left  Value
	Op    Op
	Right Value
}

func (a *And) Evaluate(env Environment) bool     { return a.eval(env) }
func (o *Or) Evaluate(env Environment) bool      { return o.eval(env) }
func (c *Compare) Evaluate(env Environment) bool { return c.eval(env) }

func (a *And) eval(env Environment) bool {
	for _, t := range a.Terms {
		if !t.eval(env) {
			return false
		}
	}
	return true
}

func (o *Or) eval(env Environment) bool {
	for _, t := range o.Terms {
		if t.eval(env) {
			return true
		}
	}
	return false
}

func (c *Compare) eval(env Environment) bool {
	lhs, ok := c.Left.resolve(env)
	if !ok {
		return false
	}
	rhs, ok := c.Right.resolve(env)
	if !ok {
		return false
	}
	if c.Left.Variable == VarExtra || c.Right.Variable == VarExtra {
		lhs, rhs = normalizeExtra(lhs), normalizeExtra(rhs)
	}

	switch c.Op {
	case OpIn:
		return strings.Contains(rhs, lhs)
	case OpNotIn:
		return !strings.Contains(rhs, lhs)
	}

	if spec, err := pep440.ParseSpecifier(string(c.Op) + rhs); err == nil {
		if v, err := pep440.Parse(lhs); err == nil {
			return spec.Matches(v, true)
		}
	}

	switch c.Op {
	case OpEqual:
		return lhs == rhs
	case OpNotEqual:
		return lhs != rhs
	case OpLess:
		return lhs < rhs
	case OpLessEqual:
		return lhs <= rhs
	case OpGreater:
		return lhs > rhs
	case OpGreaterEqual:
		return lhs >= rhs
	case OpArbitrary:
		return strings.EqualFold(lhs, rhs)
	}
	// ~= has no string meaning.
	return false
}

// EvaluateExtras reports whether expr holds in env for the given set of
// requested extras. The marker is evaluated once with extra set to the
// empty string and once per requested extra; any success counts. A nil
// expr always holds.
func EvaluateExtras(expr Expr, env Environment, extras []string) bool {
	if expr == nil {
		return true
	}
	if expr.Evaluate(env.With(VarExtra, "")) {
		return true
	}
	for _, e := range extras {
		if expr.Evaluate(env.With(VarExtra, e)) {
			return true
		}
	}
	return false
}

func (a *And) String() string { return join(a.Terms, " and ", true) }
func (o *Or) String() string  { return join(o.Terms, " or ", false) }

func (c *Compare) String() string {
	return c.Left.String() + " " + string(c.Op) + " " + c.Right.String()
}

// join prints terms; inside an and, nested or terms are parenthesized.
func join(terms []Expr, sep string, parenOr bool) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		s := t.String()
		if _, isOr := t.(*Or); isOr && parenOr {
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, sep)
}

// Combine joins markers with op ("and" or "or"), skipping nils. It returns
// nil when every marker is nil and the single marker when only one is left.
func Combine(op string, exprs ...Expr) Expr {
	var terms []Expr
	for _, e := range exprs {
		if e == nil {
			continue
		}
		// Flatten same-kind nodes so printing stays canonical.
		switch n := e.(type) {
		case *And:
			if op == "and" {
				terms = append(terms, n.Terms...)
				continue
			}
		case *Or:
			if op == "or" {
				terms = append(terms, n.Terms...)
				continue
			}
		}
		terms = append(terms, e)
	}
	switch {
	case len(terms) == 0:
		return nil
	case len(terms) == 1:
		return terms[0]
	case op == "and":
		return &And{Terms: terms}
	default:
		return &Or{Terms: terms}
	}
}

func quote(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	return strconv.Quote(s)
}

// normalizeExtra lowercases and folds runs of "-", "_" and "." into "-".
func normalizeExtra(s string) string {
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if r == '-' || r == '_' || r == '.' {
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte('-')
		}
		sep = false
		b.WriteRune(r)
	}
	return b.String()
}

// Values returns the sorted, unique literals that expr compares the given
// variable against. Values of extra are normalized.
func Values(expr Expr, variable string) []string {
	variable = canonicalVariable(variable)
	var out []string
	walk(expr, func(c *Compare) {
		var lit string
		switch {
		case c.Left.Variable == variable && !c.Right.IsVariable():
			lit = c.Right.Literal
		case c.Right.Variable == variable && !c.Left.IsVariable():
			lit = c.Left.Literal
		default:
			return
		}
		if variable == VarExtra {
			lit = normalizeExtra(lit)
		}
		out = append(out, lit)
	})
	slices.Sort(out)
	return slices.Compact(out)
}

// References reports whether expr uses the given variable.
func References(expr Expr, variable string) bool {
	variable = canonicalVariable(variable)
	found := false
	walk(expr, func(c *Compare) {
		if c.Left.Variable == variable || c.Right.Variable == variable {
			found = true
		}
	})
	return found
}

func walk(expr Expr, fn func(*Compare)) {
	switch n := expr.(type) {
	case *And:
		for _, t := range n.Terms {
			walk(t, fn)
		}
	case *Or:
		for _, t := range n.Terms {
			walk(t, fn)
		}
	case *Compare:
		fn(n)
	}
}
