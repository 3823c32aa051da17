// Package cache stores raw package index responses between runs.
//
// Three backends implement [Cache]: [FileCache] under the user cache
// directory (the CLI default), [RedisCache] for a metadata cache shared by
// several machines, and [NewNullCache] when caching is disabled. Keys come
// from a [Keyer] so that responses from different indexes never collide.
//
// The cache only holds bytes; decoding and expiry policy belong to the
// caller. A failed cache read is never fatal, callers fall back to the
// network.
package cache

import (
	"context"
	"time"
)

// Cache is a byte store with per-entry expiry.
type Cache interface {
	// Get returns the stored data and whether the key was present and
	// unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Clearer is implemented by backends that can drop every entry they own.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Keyer builds cache keys.
type Keyer interface {
	// HTTPKey returns the key for a response identified by namespace and a
	// request-specific key such as a URL path.
	HTTPKey(namespace, key string) string
}

// DefaultKeyer produces unscoped keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns a DefaultKeyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// HTTPKey returns "http:<namespace>:<key>".
func (DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}
