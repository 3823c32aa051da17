package deps

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/pep440"
)

// RootOrigin is the Origin of constraints that come from the manifest.
const RootOrigin = "project"

// Constraint is one requirement on a package, with the package that
// imposed it.
type Constraint struct {
	Specifiers pep440.SpecifierSet
	Extras     []string
	Origin     string // RootOrigin or "name==version"
}

func (c Constraint) String() string {
	spec := c.Specifiers.String()
	if spec == "" {
		spec = "any version"
	}
	return spec + " (from " + c.Origin + ")"
}

// ConflictError reports that no assignment satisfies every constraint.
// It describes the conflict that exhausted the search.
type ConflictError struct {
	// Package is the package that could not be satisfied.
	Package string

	// Constraints are the active constraints on Package, in the order
	// they were added.
	Constraints []Constraint

	// Pinned is the already chosen version that a new constraint
	// excluded. Empty when no version was compatible at all.
	Pinned string

	// Missing is set when the index has no such project.
	Missing bool

	// Reason overrides the generic explanation.
	Reason string
}

// Code reports errors.ErrCodePackageNotFound when a project the manifest
// names directly is missing from the index, and
// errors.ErrCodeResolutionConflict otherwise.
func (e *ConflictError) Code() errors.Code {
	if e.Missing && len(e.Constraints) > 0 && !slices.ContainsFunc(e.Constraints, func(c Constraint) bool {
		return c.Origin != RootOrigin
	}) {
		return errors.ErrCodePackageNotFound
	}
	return errors.ErrCodeResolutionConflict
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	var b strings.Builder
	switch {
	case e.Reason != "":
		b.WriteString(e.Reason)
	case e.Missing:
		fmt.Fprintf(&b, "package %s not found", e.Package)
	case e.Pinned != "":
		fmt.Fprintf(&b, "%s==%s conflicts with the other requirements on %s", e.Package, e.Pinned, e.Package)
	default:
		fmt.Fprintf(&b, "no version of %s satisfies all requirements", e.Package)
	}
	for _, c := range e.Constraints {
		b.WriteString("\n  ")
		b.WriteString(e.Package)
		b.WriteByte(' ')
		b.WriteString(c.String())
	}
	return b.String()
}

func (s *state) conflict(name string) *ConflictError {
	cs := s.constraints[name]
	out := &ConflictError{Package: name, Constraints: make([]Constraint, len(cs))}
	for i, c := range cs {
		out.Constraints[i] = Constraint{
			Specifiers: c.req.Specifiers,
			Extras:     c.req.Extras,
			Origin:     c.origin(),
		}
	}
	return out
}
