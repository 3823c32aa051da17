package pypi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/matzehuels/wheelhouse/pkg/cache"
	"github.com/matzehuels/wheelhouse/pkg/integrations"
	"github.com/matzehuels/wheelhouse/pkg/pep440"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

// DefaultIndexURL is the base of the PyPI JSON API.
const DefaultIndexURL = "https://pypi.org/pypi"

// Options configures a Client.
type Options struct {
	// IndexURL is the JSON API base. Default DefaultIndexURL.
	IndexURL string

	// CacheTTL is how long responses stay cached. Default 24h.
	CacheTTL time.Duration

	// Python is the target interpreter version. Releases whose files all
	// exclude it through requires-python are not listed. Empty disables
	// the filter.
	Python string

	// Refresh bypasses cached responses (they are still written).
	Refresh bool

	// Backoff is the retry policy for transient failures. Default
	// cache.DefaultBackoff.
	Backoff cache.Backoff

	// Logger receives debug messages. Default discards them.
	Logger func(string, ...any)
}

// WithDefaults returns a copy of o with zero fields set to their defaults.
func (o Options) WithDefaults() Options {
	if o.IndexURL == "" {
		o.IndexURL = DefaultIndexURL
	}
	o.IndexURL = strings.TrimRight(o.IndexURL, "/")
	if o.CacheTTL <= 0 {
		o.CacheTTL = 24 * time.Hour
	}
	if o.Backoff.Attempts == 0 {
		o.Backoff = cache.DefaultBackoff
	}
	if o.Logger == nil {
		o.Logger = func(string, ...any) {}
	}
	return o
}

// Client reads release lists and dependency metadata from a PyPI-compatible
// JSON API. It is safe for concurrent use.
type Client struct {
	*integrations.Client
	opts   Options
	python *pep440.Version
}

// NewClient creates a client caching responses in backend. A nil backend
// disables caching.
func NewClient(backend cache.Cache, opts Options) *Client {
	opts = opts.WithDefaults()
	c := &Client{
		Client: integrations.NewClient(backend, "pypi", opts.CacheTTL, map[string]string{"Accept": "application/json"}).
			WithKeyer(cache.IndexKeyer(opts.IndexURL)).
			WithBackoff(opts.Backoff),
		opts: opts,
	}
	if opts.Python != "" {
		if v, err := pep440.Parse(opts.Python); err == nil {
			c.python = &v
		} else {
			opts.Logger("pypi: ignoring python version %q: %v", opts.Python, err)
		}
	}
	return c
}

// ListVersions returns the installable releases of a project. The order is
// unspecified. Versions that are not valid PEP 440 are skipped.
func (c *Client) ListVersions(ctx context.Context, name string) ([]pep440.Version, error) {
	name = requirement.NormalizeName(name)
	path := "/" + url.PathEscape(name) + "/json"

	var idx projectIndex
	err := c.Cached(ctx, path, c.opts.Refresh, &idx, func() error {
		var data projectResponse
		if err := c.Get(ctx, c.opts.IndexURL+path, &data); err != nil {
			return wrapNotFound(err, name)
		}
		idx = reduceProject(data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]pep440.Version, 0, len(idx.Releases))
	for _, r := range idx.Releases {
		if !r.installable(c.python) {
			continue
		}
		v, err := pep440.Parse(r.Version)
		if err != nil {
			c.opts.Logger("pypi: %s: skipping release %q: %v", name, r.Version, err)
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// GetDependencies returns the requirements a release declares.
func (c *Client) GetDependencies(ctx context.Context, name string, version pep440.Version) ([]requirement.Requirement, error) {
	name = requirement.NormalizeName(name)
	path := "/" + url.PathEscape(name) + "/" + url.PathEscape(version.Raw()) + "/json"

	var requires []string
	err := c.Cached(ctx, path, c.opts.Refresh, &requires, func() error {
		var data releaseResponse
		if err := c.Get(ctx, c.opts.IndexURL+path, &data); err != nil {
			return wrapNotFound(err, name+"=="+version.String())
		}
		requires = data.Info.RequiresDist
		if requires == nil {
			requires = []string{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	reqs := make([]requirement.Requirement, 0, len(requires))
	for _, text := range requires {
		r, err := requirement.Parse(text)
		if err != nil {
			c.opts.Logger("pypi: %s %s: skipping requirement %q: %v", name, version, text, err)
			continue
		}
		reqs = append(reqs, r)
	}
	return reqs, nil
}

func wrapNotFound(err error, what string) error {
	if errors.Is(err, integrations.ErrNotFound) {
		return fmt.Errorf("%w: pypi package %s", err, what)
	}
	return err
}

// projectIndex is the cached, reduced form of a project response.
type projectIndex struct {
	Releases []releaseFiles `json:"releases"`
}

type releaseFiles struct {
	Version        string   `json:"version"`
	Files          int      `json:"files"`
	RequiresPython []string `json:"requires_python,omitempty"`
}

// installable reports whether some non-yanked file of the release accepts
// python. A nil python accepts every release with files.
func (r releaseFiles) installable(python *pep440.Version) bool {
	if r.Files == 0 {
		return false
	}
	if python == nil || len(r.RequiresPython) < r.Files {
		return true
	}
	for _, rp := range r.RequiresPython {
		set, err := pep440.ParseSpecifierSet(rp)
		if err != nil || set.Contains(*python, true) {
			return true
		}
	}
	return false
}

func reduceProject(data projectResponse) projectIndex {
	idx := projectIndex{Releases: make([]releaseFiles, 0, len(data.Releases))}
	for version, files := range data.Releases {
		r := releaseFiles{Version: version}
		for _, f := range files {
			if f.Yanked {
				continue
			}
			r.Files++
			if f.RequiresPython != "" {
				r.RequiresPython = append(r.RequiresPython, f.RequiresPython)
			}
		}
		idx.Releases = append(idx.Releases, r)
	}
	slices.SortFunc(idx.Releases, func(a, b releaseFiles) int { return strings.Compare(a.Version, b.Version) })
	return idx
}

type projectResponse struct {
	Releases map[string][]fileInfo `json:"releases"`
}

type fileInfo struct {
	Filename       string `json:"filename"`
	Yanked         bool   `json:"yanked"`
	RequiresPython string `json:"requires_python"`
}

type releaseResponse struct {
	Info struct {
		Name         string   `json:"name"`
		Version      string   `json:"version"`
		RequiresDist []string `json:"requires_dist"`
	} `json:"info"`
}
