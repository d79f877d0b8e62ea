// Package cache provides the read-through/write-through search result cache.
// Every operation degrades to a miss or a soft failure when the backend is
// unreachable; cache trouble never fails a search.
package cache

import (
	"context"
	"strconv"
	"time"
)

// Cache is the adapter contract consumed by the search engine. Set, Del and
// FlushAll return false (soft failure) instead of an error when the backend
// is unavailable; Get reports a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool
	Del(ctx context.Context, key string) bool
	FlushAll(ctx context.Context) bool
	Available() bool
	Close() error
}

// SearchKey derives the cache key for a search. The exact string form is a
// persisted contract: changing it invalidates every existing entry.
func SearchKey(zipcode string, radiusMiles float64) string {
	return "search:" + zipcode + ":" + strconv.FormatFloat(radiusMiles, 'f', -1, 64)
}

// Noop is a Cache that stores nothing. Used when Redis is disabled.
type Noop struct{}

// NewNoop returns a cache that always misses.
func NewNoop() *Noop { return &Noop{} }

func (*Noop) Get(context.Context, string) ([]byte, bool)                { return nil, false }
func (*Noop) Set(context.Context, string, []byte, time.Duration) bool   { return false }
func (*Noop) Del(context.Context, string) bool                          { return false }
func (*Noop) FlushAll(context.Context) bool                             { return false }
func (*Noop) Available() bool                                           { return false }
func (*Noop) Close() error                                              { return nil }
