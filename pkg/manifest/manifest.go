// Package manifest reads and edits the project manifest (pyproject.toml)
// and reads and writes the lock file (wheelhouse.lock).
//
// # Manifest
//
// The manifest is the standard [project] table:
//
//	[project]
//	name = "demo"
//	version = "0.1.0"
//	dependencies = ["requests>=2.28"]
//
//	[project.optional-dependencies]
//	socks = ["pysocks"]
//
//	[tool.wheelhouse]
//	dev-dependencies = ["pytest"]
//
// Dev dependencies form the group named "dev". [Manifest.AddDependency] and
// [Manifest.RemoveDependency] edit the document in place: only the affected
// array is rewritten and every other byte of the file is preserved.
//
// # Lock
//
// The lock records one exact version per package plus a fingerprint of the
// manifest's dependency section. A lock whose fingerprint no longer matches
// the manifest is stale; see [LoadLock].
package manifest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

// FileName is the manifest file name.
const FileName = "pyproject.toml"

// DevGroup is the group name of [tool.wheelhouse] dev-dependencies.
const DevGroup = "dev"

// RequiredGroup selects only the main dependencies when no group of that
// name exists.
const RequiredGroup = "required"

// Manifest is a parsed pyproject.toml.
type Manifest struct {
	Path           string
	Name           string
	Version        string
	RequiresPython string

	Dependencies         []requirement.Requirement
	OptionalDependencies map[string][]requirement.Requirement
	DevDependencies      []requirement.Requirement

	// Python is the interpreter pinned with `wheelhouse python use`.
	Python string

	raw []byte
}

type pyproject struct {
	Project struct {
		Name                 string              `toml:"name"`
		Version              string              `toml:"version"`
		RequiresPython       string              `toml:"requires-python"`
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		Wheelhouse struct {
			DevDependencies []string `toml:"dev-dependencies"`
			Python          string   `toml:"python"`
		} `toml:"wheelhouse"`
	} `toml:"tool"`
}

// Find walks up from dir to the nearest directory holding a manifest and
// returns the manifest path.
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New(errors.ErrCodeFileNotFound, "no %s found", FileName)
		}
		dir = parent
	}
}

// LoadManifest reads and validates the manifest at path.
//
// TOML syntax errors fail with errors.ErrCodeManifestParse. A missing
// project name, an unparsable requirement, one name listed twice with
// different extras anywhere in the manifest, or a "dev" group declared both
// as an optional group and as dev-dependencies fail with
// errors.ErrCodeInvalidManifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "%s not found", path)
		}
		return nil, err
	}
	return ParseManifest(path, data)
}

// ParseManifest parses manifest text. path is only used in messages and
// for Save.
func ParseManifest(path string, data []byte) (*Manifest, error) {
	var doc pyproject
	if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		var perr toml.ParseError
		if errors.As(err, &perr) {
			return nil, errors.Wrap(errors.ErrCodeManifestParse, err, "%s: line %d", path, perr.Position.Line)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "%s", path)
	}

	p := doc.Project
	if strings.TrimSpace(p.Name) == "" {
		return nil, errors.New(errors.ErrCodeInvalidManifest, "%s: [project] name is required", path)
	}

	m := &Manifest{
		Path:           path,
		Name:           p.Name,
		Version:        p.Version,
		RequiresPython: p.RequiresPython,
		Python:         doc.Tool.Wheelhouse.Python,
		raw:            data,
	}

	seen := make(map[string]listed)
	var err error
	if m.Dependencies, err = parseGroup(path, "dependencies", p.Dependencies, seen); err != nil {
		return nil, err
	}
	if len(p.OptionalDependencies) > 0 {
		m.OptionalDependencies = make(map[string][]requirement.Requirement, len(p.OptionalDependencies))
		for _, group := range slices.Sorted(maps.Keys(p.OptionalDependencies)) {
			reqs, err := parseGroup(path, "optional-dependencies."+group, p.OptionalDependencies[group], seen)
			if err != nil {
				return nil, err
			}
			m.OptionalDependencies[group] = reqs
		}
	}
	if m.DevDependencies, err = parseGroup(path, "dev-dependencies", doc.Tool.Wheelhouse.DevDependencies, seen); err != nil {
		return nil, err
	}
	if len(m.DevDependencies) > 0 && !m.devIsTool() {
		return nil, errors.New(errors.ErrCodeInvalidManifest,
			"%s: group %q is declared both in optional-dependencies and as dev-dependencies", path, DevGroup)
	}
	return m, nil
}

// listed records where a name was first seen and with which extras.
type listed struct {
	where  string
	extras []string
}

func parseGroup(path, where string, lines []string, seen map[string]listed) ([]requirement.Requirement, error) {
	reqs := make([]requirement.Requirement, 0, len(lines))
	for _, line := range lines {
		r, err := requirement.Parse(line)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "%s: %s", path, where)
		}
		if prev, ok := seen[r.Name]; ok && !slices.Equal(prev.extras, r.Extras) {
			return nil, errors.New(errors.ErrCodeInvalidManifest,
				"%s: %s lists %s with extras that differ from %s", path, where, r.Name, prev.where)
		}
		if _, ok := seen[r.Name]; !ok {
			seen[r.Name] = listed{where: where, extras: r.Extras}
		}
		reqs = append(reqs, r)
	}
	return reqs, nil
}

// Groups returns the names of the optional groups, plus DevGroup when dev
// dependencies are declared, sorted.
func (m *Manifest) Groups() []string {
	groups := make([]string, 0, len(m.OptionalDependencies)+1)
	for g := range m.OptionalDependencies {
		groups = append(groups, g)
	}
	if len(m.DevDependencies) > 0 && !slices.Contains(groups, DevGroup) {
		groups = append(groups, DevGroup)
	}
	slices.Sort(groups)
	return groups
}

// Group returns the requirements of one group and whether it exists.
func (m *Manifest) Group(name string) ([]requirement.Requirement, bool) {
	if reqs, ok := m.OptionalDependencies[name]; ok {
		return reqs, true
	}
	for g, reqs := range m.OptionalDependencies {
		if requirement.NormalizeName(g) == requirement.NormalizeName(name) {
			return reqs, true
		}
	}
	if name == DevGroup && len(m.DevDependencies) > 0 {
		return m.DevDependencies, true
	}
	return nil, false
}

// Requirements returns the root requirements for the given install groups.
//
// With no groups it returns every dependency: main, optional and dev.
// RequiredGroup (unless a group of that name exists) selects the main
// dependencies only. Otherwise the main dependencies are returned together
// with the named groups; an unknown group is an error.
func (m *Manifest) Requirements(groups ...string) ([]requirement.Requirement, error) {
	reqs := slices.Clone(m.Dependencies)
	if len(groups) == 0 {
		groups = m.Groups()
	}
	for _, g := range groups {
		group, ok := m.Group(g)
		switch {
		case ok:
			reqs = append(reqs, group...)
		case g == RequiredGroup:
		default:
			return nil, errors.New(errors.ErrCodeNotFound, "no dependency group %q in %s", g, m.Path)
		}
	}
	return reqs, nil
}

// Fingerprint returns the sha256 of the canonical dependency section. It
// is insensitive to formatting, ordering and name spelling.
func (m *Manifest) Fingerprint() string {
	var b strings.Builder
	b.WriteString("requires-python=" + strings.TrimSpace(m.RequiresPython) + "\n")
	writeGroup := func(name string, reqs []requirement.Requirement) {
		lines := make([]string, len(reqs))
		for i, r := range reqs {
			lines[i] = r.String()
		}
		slices.Sort(lines)
		b.WriteString("[" + name + "]\n")
		for _, l := range lines {
			b.WriteString(l + "\n")
		}
	}
	writeGroup("", m.Dependencies)
	for _, g := range m.Groups() {
		reqs, _ := m.Group(g)
		writeGroup(requirement.NormalizeName(g), reqs)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// Bytes returns the current manifest text, including unsaved edits.
func (m *Manifest) Bytes() []byte { return m.raw }

// Save writes the manifest text back to Path.
func (m *Manifest) Save() error {
	return writeFileAtomic(m.Path, m.raw)
}
