// Package pkg provides the libraries behind wheelhouse, a package manager
// for Python projects.
//
// # Overview
//
// wheelhouse reads the dependencies declared in pyproject.toml, resolves
// them into one consistent set of pinned versions, records that set in
// wheelhouse.lock, and installs it into the project's virtual environment.
// The pkg directory is organized by layer:
//
//  1. Model: [pep440] versions and specifiers, [marker] environment
//     markers, [requirement] PEP 508 requirements
//  2. Resolution: [deps] (backtracking resolver, provider interface, run
//     cache)
//  3. Storage: [manifest] (pyproject.toml editing, lock files), [cache]
//     (file, Redis and null response caches)
//  4. Integrations: [integrations] and [integrations/pypi] (PyPI JSON API)
//  5. Environment: [venv] (virtual environments, pip)
//  6. Support: [config], [errors], [observability], [render], [buildinfo]
//
// # Architecture
//
//	pyproject.toml
//	     ↓
//	[manifest] root requirements
//	     ↓
//	[deps] resolver ← [integrations/pypi] ← [cache]
//	     ↓
//	wheelhouse.lock
//	     ↓
//	[venv] pip install --no-deps
//
// # Quick Start
//
// Resolve a project and write its lock file:
//
//	import (
//	    "context"
//
//	    "github.com/matzehuels/wheelhouse/pkg/cache"
//	    "github.com/matzehuels/wheelhouse/pkg/deps"
//	    "github.com/matzehuels/wheelhouse/pkg/integrations/pypi"
//	    "github.com/matzehuels/wheelhouse/pkg/manifest"
//	    "github.com/matzehuels/wheelhouse/pkg/marker"
//	)
//
//	m, _ := manifest.LoadManifest("pyproject.toml")
//	roots, _ := m.Requirements()
//
//	client := pypi.NewClient(cache.NewNullCache(), pypi.Options{Python: "3.12.4"})
//	res, err := deps.NewResolver(client, deps.Options{
//	    Environment: marker.DefaultEnvironment("3.12.4"),
//	}).Resolve(context.Background(), roots)
//	if err != nil {
//	    // *deps.ConflictError lists the constraints that could not be met
//	}
//
//	lock := manifest.NewLock(m.Fingerprint(), "3.12.4", res.Packages)
//	_ = manifest.WriteLock(manifest.LockPath(m.Path), lock)
//
// # Error Handling
//
// Errors carry machine-readable codes from [errors]; test them with
// errors.Is(err, errors.ErrCodeResolutionConflict) and friends.
//
// [pep440]: github.com/matzehuels/wheelhouse/pkg/pep440
// [marker]: github.com/matzehuels/wheelhouse/pkg/marker
// [requirement]: github.com/matzehuels/wheelhouse/pkg/requirement
// [deps]: github.com/matzehuels/wheelhouse/pkg/deps
// [manifest]: github.com/matzehuels/wheelhouse/pkg/manifest
// [cache]: github.com/matzehuels/wheelhouse/pkg/cache
// [integrations]: github.com/matzehuels/wheelhouse/pkg/integrations
// [integrations/pypi]: github.com/matzehuels/wheelhouse/pkg/integrations/pypi
// [venv]: github.com/matzehuels/wheelhouse/pkg/venv
// [config]: github.com/matzehuels/wheelhouse/pkg/config
// [errors]: github.com/matzehuels/wheelhouse/pkg/errors
// [observability]: github.com/matzehuels/wheelhouse/pkg/observability
// [render]: github.com/matzehuels/wheelhouse/pkg/render
// [buildinfo]: github.com/matzehuels/wheelhouse/pkg/buildinfo
package pkg
