package deps

import (
	"context"
	"errors"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/wheelhouse/pkg/marker"
	"github.com/matzehuels/wheelhouse/pkg/pep440"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

// Candidate is one release of a package together with its declared
// dependencies. Candidates are immutable once cached.
type Candidate struct {
	Name         string
	Version      pep440.Version
	Dependencies []requirement.Requirement

	// Extras lists the extras the release's dependency markers mention,
	// sorted.
	Extras []string
}

// HasExtra reports whether the release declares dependencies for extra.
func (c *Candidate) HasExtra(extra string) bool {
	_, ok := slices.BinarySearch(c.Extras, requirement.NormalizeName(extra))
	return ok
}

// Candidates is the metadata cache of a single resolution run. Version
// lists are keyed by name and candidates by name and version. Concurrent
// lookups of the same key share one provider call, and the first stored
// result wins.
//
// Permanent results (including ErrNotFound) are cached; transient errors
// are not, so a later lookup retries them.
type Candidates struct {
	provider Provider
	group    singleflight.Group

	mu         sync.Mutex
	versions   map[string]versionsEntry
	candidates map[string]candidateEntry
}

type versionsEntry struct {
	versions []pep440.Version
	err      error
}

type candidateEntry struct {
	candidate *Candidate
	err       error
}

// NewCandidates returns an empty run cache over p.
func NewCandidates(p Provider) *Candidates {
	return &Candidates{
		provider:   p,
		versions:   make(map[string]versionsEntry),
		candidates: make(map[string]candidateEntry),
	}
}

// Versions returns the releases of name, newest first. The slice is shared
// and must not be modified.
func (c *Candidates) Versions(ctx context.Context, name string) ([]pep440.Version, error) {
	name = requirement.NormalizeName(name)
	if e, ok := c.cachedVersions(name); ok {
		return e.versions, e.err
	}

	v, err, _ := c.group.Do("versions:"+name, func() (any, error) {
		if e, ok := c.cachedVersions(name); ok {
			return e, nil
		}
		vs, err := c.provider.ListVersions(ctx, name)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		vs = slices.Clone(vs)
		pep440.SortDescending(vs)
		return c.storeVersions(name, versionsEntry{versions: vs, err: err}), nil
	})
	if err != nil {
		return nil, err
	}
	e := v.(versionsEntry)
	return e.versions, e.err
}

// Get returns the candidate for name at version.
func (c *Candidates) Get(ctx context.Context, name string, version pep440.Version) (*Candidate, error) {
	name = requirement.NormalizeName(name)
	key := name + "==" + version.String()
	if e, ok := c.cachedCandidate(key); ok {
		return e.candidate, e.err
	}

	v, err, _ := c.group.Do("candidate:"+key, func() (any, error) {
		if e, ok := c.cachedCandidate(key); ok {
			return e, nil
		}
		reqs, err := c.provider.GetDependencies(ctx, name, version)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		var cand *Candidate
		if err == nil {
			cand = newCandidate(name, version, reqs)
		}
		return c.storeCandidate(key, candidateEntry{candidate: cand, err: err}), nil
	})
	if err != nil {
		return nil, err
	}
	e := v.(candidateEntry)
	return e.candidate, e.err
}

// Prefetch warms the version lists of names with at most workers
// concurrent provider calls. Unknown projects are not an error; the first
// other failure cancels the remaining lookups and is returned.
func (c *Candidates) Prefetch(ctx context.Context, names []string, workers int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, name := range names {
		if _, ok := c.cachedVersions(requirement.NormalizeName(name)); ok {
			continue
		}
		g.Go(func() error {
			_, err := c.Versions(ctx, name)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

func (c *Candidates) cachedVersions(name string) (versionsEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.versions[name]
	return e, ok
}

func (c *Candidates) storeVersions(name string, e versionsEntry) versionsEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.versions[name]; ok {
		return existing
	}
	c.versions[name] = e
	return e
}

func (c *Candidates) cachedCandidate(key string) (candidateEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.candidates[key]
	return e, ok
}

func (c *Candidates) storeCandidate(key string, e candidateEntry) candidateEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.candidates[key]; ok {
		return existing
	}
	c.candidates[key] = e
	return e
}

func newCandidate(name string, version pep440.Version, reqs []requirement.Requirement) *Candidate {
	cand := &Candidate{
		Name:         name,
		Version:      version,
		Dependencies: slices.Clone(reqs),
	}
	for _, r := range reqs {
		cand.Extras = append(cand.Extras, marker.Values(r.Marker, marker.VarExtra)...)
	}
	slices.Sort(cand.Extras)
	cand.Extras = slices.Compact(cand.Extras)
	return cand
}
