// Package integrations provides the shared HTTP client for package index
// APIs.
//
// [Client] wraps net/http with response caching through a [cache.Cache],
// bounded retry of transient failures through [cache.Backoff], default
// headers, and observability hooks. Index-specific clients embed it; the
// only one wheelhouse ships is [pypi], the PyPI JSON API.
//
// Status handling is shared: 404 becomes [ErrNotFound] (permanent, never
// retried), 429 and 5xx become a retryable [ErrNetwork], and any other
// non-200 status a plain [ErrNetwork].
//
// [pypi]: github.com/matzehuels/wheelhouse/pkg/integrations/pypi
package integrations
