package deps

import (
	"context"

	"github.com/matzehuels/wheelhouse/pkg/cache"
	"github.com/matzehuels/wheelhouse/pkg/marker"
	"github.com/matzehuels/wheelhouse/pkg/pep440"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

const (
	DefaultMaxRounds = 200000 // same bound pip uses
	DefaultWorkers   = 8      // concurrent prefetch lookups
)

// ErrNotFound is returned by providers for projects or releases the index
// does not have. It is the same value as cache.ErrNotFound, so index clients
// need not import this package.
var ErrNotFound = cache.ErrNotFound

// Provider supplies package metadata.
//
// ErrNotFound (possibly wrapped) is permanent and makes the resolver treat
// the project or release as unavailable. Any other error aborts the run.
type Provider interface {
	// ListVersions returns every release of a project, in any order.
	ListVersions(ctx context.Context, name string) ([]pep440.Version, error)

	// GetDependencies returns the requirements a release declares,
	// including marker-gated ones.
	GetDependencies(ctx context.Context, name string, version pep440.Version) ([]requirement.Requirement, error)
}

// Options configures a resolution run.
type Options struct {
	// Environment is the target the markers are evaluated against. Default
	// marker.DefaultEnvironment with no python version.
	Environment marker.Environment

	// AllowPrereleases admits pre-releases for every package. Without it a
	// pre-release is only chosen when a constraint names one.
	AllowPrereleases bool

	MaxRounds int                  // search bound (default: 200000)
	Workers   int                  // prefetch concurrency (default: 8)
	Logger    func(string, ...any) // debug callback (optional)
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.Environment == nil {
		opts.Environment = marker.DefaultEnvironment("")
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = func(string, ...any) {}
	}
	return opts
}
