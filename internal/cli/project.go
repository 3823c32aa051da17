package cli

import (
	"context"
	"path/filepath"
	"slices"

	"github.com/matzehuels/wheelhouse/pkg/cache"
	"github.com/matzehuels/wheelhouse/pkg/deps"
	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/integrations/pypi"
	"github.com/matzehuels/wheelhouse/pkg/manifest"
	"github.com/matzehuels/wheelhouse/pkg/marker"
	"github.com/matzehuels/wheelhouse/pkg/venv"
)

// project is the manifest a command operates on.
type project struct {
	dir      string
	manifest *manifest.Manifest
	lockPath string
}

// loadProject finds and parses the manifest at or above the -C directory.
func (c *CLI) loadProject() (*project, error) {
	if err := ensureDir(c.flags.dir); err != nil {
		return nil, err
	}
	path, err := manifest.Find(c.flags.dir)
	if err != nil {
		return nil, err
	}
	m, err := manifest.LoadManifest(path)
	if err != nil {
		return nil, err
	}
	return &project{
		dir:      filepath.Dir(path),
		manifest: m,
		lockPath: manifest.LockPath(path),
	}, nil
}

// python returns the interpreter for new environments: the one pinned in
// the manifest, else the configured one.
func (c *CLI) python(p *project) string {
	if p.manifest.Python != "" {
		return p.manifest.Python
	}
	return c.config.Python
}

// environment returns the marker values to resolve for: those of the
// project's environment, else those of the configured interpreter, else the
// running platform's defaults.
func (c *CLI) environment(ctx context.Context, p *project) (marker.Environment, error) {
	logger := loggerFromContext(ctx)
	opts := c.venvOptions()

	if v, err := venv.Find(p.dir, opts); err == nil {
		env, err := v.MarkerEnvironment(ctx)
		if err == nil {
			logger.Debugf("markers from %s: python %s", v.Root, env[marker.VarPythonFullVersion])
			return env, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warnf("query %s: %v", v.Python(), err)
	}

	env, err := venv.QueryMarkers(ctx, c.python(p), opts)
	if err == nil {
		logger.Debugf("markers from interpreter: python %s", env[marker.VarPythonFullVersion])
		return env, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	logger.Warnf("no Python interpreter found, resolving for platform defaults: %v", err)
	return marker.DefaultEnvironment(""), nil
}

// provider opens the metadata source: the --index-file when given, else the
// configured index behind the configured cache. The returned close func
// releases the cache backend.
func (c *CLI) provider(ctx context.Context, env marker.Environment, refresh bool) (deps.Provider, func(), error) {
	if c.flags.indexFile != "" {
		p, err := deps.LoadIndexFile(c.flags.indexFile)
		if err != nil {
			return nil, nil, err
		}
		return p, func() {}, nil
	}

	backend, err := c.cacheBackend(ctx)
	if err != nil {
		return nil, nil, err
	}
	client := pypi.NewClient(backend, pypi.Options{
		IndexURL: c.config.IndexURL,
		CacheTTL: c.config.CacheTTL,
		Python:   env[marker.VarPythonFullVersion],
		Refresh:  refresh,
		Logger:   loggerFromContext(ctx).Debugf,
	})
	return client, func() { _ = backend.Close() }, nil
}

// cacheBackend opens the metadata cache selected by the flags and config.
func (c *CLI) cacheBackend(ctx context.Context) (cache.Cache, error) {
	switch {
	case c.flags.noCache:
		return cache.NewNullCache(), nil
	case c.config.RedisURL != "":
		return cache.NewRedisCache(ctx, c.config.RedisURL, cache.DefaultRedisPrefix)
	default:
		return cache.NewFileCache(c.config.CacheDir)
	}
}

// lock resolves every dependency group of p and writes the lock file.
func (c *CLI) lock(ctx context.Context, p *project, refresh bool) (*manifest.Lock, error) {
	logger := loggerFromContext(ctx)

	roots, err := p.manifest.Requirements()
	if err != nil {
		return nil, err
	}
	env, err := c.environment(ctx, p)
	if err != nil {
		return nil, err
	}
	prov, closeProvider, err := c.provider(ctx, env, refresh)
	if err != nil {
		return nil, err
	}
	defer closeProvider()

	prog := newProgress(logger)
	spin := newSpinner(ctx, c.errOut(), "Resolving dependencies...")
	spin.Start()
	res, err := deps.NewResolver(prov, deps.Options{
		Environment:      env,
		AllowPrereleases: c.config.AllowPrereleases,
		MaxRounds:        c.config.MaxRounds,
		Workers:          c.config.Workers,
		Logger:           logger.Debugf,
	}).Resolve(ctx, roots)
	spin.Stop()
	if err != nil {
		return nil, err
	}
	prog.done("Resolved " + pluralize(len(res.Packages), "package"))

	lock := manifest.NewLock(p.manifest.Fingerprint(), env[marker.VarPythonFullVersion], res.Packages)
	if err := manifest.WriteLock(p.lockPath, lock); err != nil {
		return nil, err
	}
	return lock, nil
}

// currentLock returns the project's lock, resolving again when it is
// missing or stale.
func (c *CLI) currentLock(ctx context.Context, p *project) (*manifest.Lock, error) {
	lock, err := manifest.LoadLock(p.lockPath, p.manifest)
	switch {
	case errors.Is(err, errors.ErrCodeFileNotFound):
		loggerFromContext(ctx).Debugf("no lock file, resolving")
	case err != nil:
		return nil, err
	case lock.Stale:
		loggerFromContext(ctx).Infof("%s is out of date, resolving", manifest.LockFileName)
	default:
		return lock, nil
	}
	return c.lock(ctx, p, false)
}

// sync installs the locked packages needed by groups into the project's
// environment, creating it when missing.
func (c *CLI) sync(ctx context.Context, p *project, lock *manifest.Lock, groups []string) ([]manifest.LockEntry, error) {
	roots, err := p.manifest.Requirements(groups...)
	if err != nil {
		return nil, err
	}
	v, err := venv.FindOrCreate(ctx, p.dir, c.python(p), c.venvOptions())
	if err != nil {
		return nil, err
	}
	env, err := v.MarkerEnvironment(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(roots))
	for _, r := range roots {
		if r.Applies(env, nil) {
			names = append(names, r.Name)
		}
	}
	return v.Install(ctx, lock.Select(names, env))
}

// dropped returns the names locked in before but not in after, sorted.
func dropped(before, after *manifest.Lock) []string {
	var names []string
	for _, e := range before.Packages {
		if _, ok := after.Get(e.Name); !ok {
			names = append(names, e.Name)
		}
	}
	slices.Sort(names)
	return names
}
