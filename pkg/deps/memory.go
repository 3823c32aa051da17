package deps

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/pep440"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

// MemoryProvider serves metadata from memory. It backs tests and offline
// index files. It is safe for concurrent use.
type MemoryProvider struct {
	mu       sync.RWMutex
	releases map[string][]memoryRelease
}

type memoryRelease struct {
	version pep440.Version
	deps    []requirement.Requirement
}

// NewMemoryProvider returns an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{releases: make(map[string][]memoryRelease)}
}

// Add registers a release with its dependency requirements. Adding an equal
// version again ("1.0" after "1.0.0") replaces the earlier release.
func (p *MemoryProvider) Add(name, version string, deps ...string) error {
	if !requirement.ValidName(name) {
		return errors.New(errors.ErrCodeInvalidRequirement, "invalid package name %q", name)
	}
	v, err := pep440.Parse(version)
	if err != nil {
		return err
	}
	reqs := make([]requirement.Requirement, 0, len(deps))
	for _, d := range deps {
		r, err := requirement.Parse(d)
		if err != nil {
			return fmt.Errorf("%s %s: %w", name, version, err)
		}
		reqs = append(reqs, r)
	}

	name = requirement.NormalizeName(name)
	p.mu.Lock()
	defer p.mu.Unlock()
	rel := memoryRelease{version: v, deps: reqs}
	if i := p.find(name, v); i >= 0 {
		p.releases[name][i] = rel
		return nil
	}
	p.releases[name] = append(p.releases[name], rel)
	return nil
}

// find returns the index of the release of name equal to v, or -1.
// Callers hold p.mu.
func (p *MemoryProvider) find(name string, v pep440.Version) int {
	return slices.IndexFunc(p.releases[name], func(r memoryRelease) bool {
		return pep440.Compare(r.version, v) == 0
	})
}

// ListVersions implements Provider.
func (p *MemoryProvider) ListVersions(ctx context.Context, name string) ([]pep440.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	rels, ok := p.releases[requirement.NormalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	out := make([]pep440.Version, 0, len(rels))
	for _, r := range rels {
		out = append(out, r.version)
	}
	pep440.SortAscending(out)
	return out, nil
}

// GetDependencies implements Provider.
func (p *MemoryProvider) GetDependencies(ctx context.Context, name string, version pep440.Version) ([]requirement.Requirement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	name = requirement.NormalizeName(name)
	i := p.find(name, version)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s==%s", ErrNotFound, name, version)
	}
	return slices.Clone(p.releases[name][i].deps), nil
}

// indexFile is the TOML layout of an offline index:
//
//	[[package]]
//	name = "requests"
//	version = "2.32.3"
//	dependencies = ["idna<4,>=2.5", "urllib3<3,>=1.21.1"]
type indexFile struct {
	Packages []struct {
		Name         string   `toml:"name"`
		Version      string   `toml:"version"`
		Dependencies []string `toml:"dependencies"`
	} `toml:"package"`
}

// LoadIndexFile reads an offline index file into a MemoryProvider.
func LoadIndexFile(path string) (*MemoryProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "%s not found", path)
		}
		return nil, err
	}
	var idx indexFile
	if err := toml.Unmarshal(data, &idx); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "index file %s", path)
	}
	p := NewMemoryProvider()
	for i, pkg := range idx.Packages {
		if err := p.Add(pkg.Name, pkg.Version, pkg.Dependencies...); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "index file %s: package %d", path, i)
		}
	}
	return p, nil
}
