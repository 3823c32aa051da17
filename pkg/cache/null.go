package cache

import (
	"context"
	"time"
)

// nullCache stores nothing: every Get misses and writes are dropped. It
// backs --no-cache, where index responses are always fetched fresh.
type nullCache struct{}

// NewNullCache returns a cache that never holds an entry.
func NewNullCache() Cache { return nullCache{} }

func (nullCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (nullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (nullCache) Delete(context.Context, string) error                     { return nil }
func (nullCache) Close() error                                             { return nil }
