package manifest

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/marker"
	"github.com/matzehuels/wheelhouse/pkg/pep440"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

// LockFileName is the lock file name, next to the manifest.
const LockFileName = "wheelhouse.lock"

// LockVersion is the lock format version written by this package.
const LockVersion = 1

const lockHeader = "# This file is generated by wheelhouse. Do not edit it by hand.\n\n"

// LockEntry pins one package.
type LockEntry struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`

	// Markers is the condition under which the package is needed. Empty
	// means always.
	Markers string `toml:"markers,omitempty"`

	// Dependencies lists the names of the locked packages this one pulled
	// in, sorted.
	Dependencies []string `toml:"dependencies,omitempty"`
}

// Lock is the resolved, pinned dependency set of a project.
type Lock struct {
	Version     int         `toml:"version"`
	Fingerprint string      `toml:"fingerprint"`
	Python      string      `toml:"python,omitempty"`
	Packages    []LockEntry `toml:"package"`

	// Stale is set by LoadLock when Fingerprint no longer matches the
	// manifest.
	Stale bool `toml:"-"`
}

// NewLock builds a lock from resolved entries, sorted by name.
func NewLock(fingerprint, python string, entries []LockEntry) *Lock {
	entries = slices.Clone(entries)
	slices.SortFunc(entries, func(a, b LockEntry) int { return strings.Compare(a.Name, b.Name) })
	return &Lock{
		Version:     LockVersion,
		Fingerprint: fingerprint,
		Python:      python,
		Packages:    entries,
	}
}

// LockPath returns the lock path for a manifest path.
func LockPath(manifestPath string) string {
	return filepath.Join(filepath.Dir(manifestPath), LockFileName)
}

// LoadLock reads the lock at path. When m is non-nil the lock's Stale flag
// reports whether it was produced for a different dependency section.
//
// A missing file fails with errors.ErrCodeFileNotFound, malformed TOML with
// errors.ErrCodeLockParse, and well-formed TOML that is not a valid lock
// with errors.ErrCodeInvalidLock.
func LoadLock(path string, m *Manifest) (*Lock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "%s not found", path)
		}
		return nil, err
	}
	lock, err := ParseLock(path, data)
	if err != nil {
		return nil, err
	}
	if m != nil {
		lock.Stale = lock.Fingerprint != m.Fingerprint()
	}
	return lock, nil
}

// ParseLock parses and validates lock text.
func ParseLock(path string, data []byte) (*Lock, error) {
	var lock Lock
	if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&lock); err != nil {
		return nil, errors.Wrap(errors.ErrCodeLockParse, err, "%s", path)
	}
	if lock.Version != LockVersion {
		return nil, errors.New(errors.ErrCodeInvalidLock, "%s: unsupported lock version %d", path, lock.Version)
	}
	seen := make(map[string]bool, len(lock.Packages))
	for i, p := range lock.Packages {
		switch {
		case p.Name == "" || p.Name != requirement.NormalizeName(p.Name):
			return nil, errors.New(errors.ErrCodeInvalidLock, "%s: package %d: invalid name %q", path, i, p.Name)
		case seen[p.Name]:
			return nil, errors.New(errors.ErrCodeInvalidLock, "%s: package %s listed twice", path, p.Name)
		}
		seen[p.Name] = true
		if _, err := pep440.Parse(p.Version); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidLock, err, "%s: package %s", path, p.Name)
		}
		if p.Markers != "" {
			if _, err := marker.Parse(p.Markers); err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidLock, err, "%s: package %s", path, p.Name)
			}
		}
	}
	slices.SortFunc(lock.Packages, func(a, b LockEntry) int { return strings.Compare(a.Name, b.Name) })
	return &lock, nil
}

// Encode returns the canonical lock text. Equal locks encode to identical
// bytes.
func (l *Lock) Encode() ([]byte, error) {
	sorted := *l
	sorted.Packages = slices.Clone(l.Packages)
	slices.SortFunc(sorted.Packages, func(a, b LockEntry) int { return strings.Compare(a.Name, b.Name) })

	var buf bytes.Buffer
	buf.WriteString(lockHeader)
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(sorted); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode lock")
	}
	return buf.Bytes(), nil
}

// WriteLock writes l to path atomically. On failure the previous file, if
// any, is left untouched.
func WriteLock(path string, l *Lock) error {
	data, err := l.Encode()
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// Get returns the entry for a package name.
func (l *Lock) Get(name string) (LockEntry, bool) {
	name = requirement.NormalizeName(name)
	i, ok := slices.BinarySearchFunc(l.Packages, name, func(e LockEntry, n string) int { return strings.Compare(e.Name, n) })
	if !ok {
		return LockEntry{}, false
	}
	return l.Packages[i], true
}

// Select returns the entries reachable from roots through recorded
// dependencies whose markers hold in env, sorted by name. A nil env skips
// marker checks.
func (l *Lock) Select(roots []string, env marker.Environment) []LockEntry {
	var out []LockEntry
	seen := make(map[string]bool)
	queue := make([]string, 0, len(roots))
	for _, r := range roots {
		queue = append(queue, requirement.NormalizeName(r))
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		seen[name] = true
		e, ok := l.Get(name)
		if !ok || !e.Applies(env) {
			continue
		}
		out = append(out, e)
		queue = append(queue, e.Dependencies...)
	}
	slices.SortFunc(out, func(a, b LockEntry) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Applies reports whether the entry's markers hold in env. A nil env or an
// entry without markers always applies.
func (e LockEntry) Applies(env marker.Environment) bool {
	if env == nil || e.Markers == "" {
		return true
	}
	m, err := marker.Parse(e.Markers)
	if err != nil {
		return false
	}
	return m.Evaluate(env)
}

// writeFileAtomic writes data to a temporary file in the target directory
// and renames it into place.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
