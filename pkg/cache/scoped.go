package cache

// ScopedKeyer prefixes every key produced by an inner Keyer.
//
// wheelhouse scopes keys by index URL, so switching between a mirror and
// the public index never serves one's metadata for the other:
//
//	keyer := cache.IndexKeyer("https://pypi.org/pypi")
//	keyer.HTTPKey("pypi", "/requests/json")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix. A nil inner keyer means
// DefaultKeyer.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// HTTPKey generates a prefixed key for HTTP response caching.
func (k *ScopedKeyer) HTTPKey(namespace, key string) string {
	return k.prefix + k.inner.HTTPKey(namespace, key)
}

// IndexKeyer returns a keyer scoped to one index base URL.
func IndexKeyer(indexURL string) Keyer {
	return NewScopedKeyer(nil, "index:"+Hash([]byte(indexURL))[:16]+":")
}

// Ensure ScopedKeyer implements Keyer.
var _ Keyer = (*ScopedKeyer)(nil)
