package cache

import (
	"context"
	"slices"
	"sync"

	"github.com/dnldd/klinescope/shared"
)

// Cache is a caller-owned, concurrency safe keyed cache with explicit invalidation.
type Cache[K comparable, V any] struct {
	entries    map[K]V
	entriesMtx sync.RWMutex
}

// New initializes a new cache.
func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[K]V),
	}
}

// Get returns the cached value for the provided key.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.entriesMtx.RLock()
	defer c.entriesMtx.RUnlock()

	v, ok := c.entries[key]
	return v, ok
}

// Put caches the provided value under the provided key.
func (c *Cache[K, V]) Put(key K, value V) {
	c.entriesMtx.Lock()
	defer c.entriesMtx.Unlock()

	c.entries[key] = value
}

// Invalidate removes the entry for the provided key.
func (c *Cache[K, V]) Invalidate(key K) {
	c.entriesMtx.Lock()
	defer c.entriesMtx.Unlock()

	delete(c.entries, key)
}

// InvalidateFunc removes every entry whose key matches the provided predicate and
// returns the number of entries removed.
func (c *Cache[K, V]) InvalidateFunc(match func(K) bool) int {
	c.entriesMtx.Lock()
	defer c.entriesMtx.Unlock()

	var removed int
	for k := range c.entries {
		if match(k) {
			delete(c.entries, k)
			removed++
		}
	}

	return removed
}

// Purge removes every entry.
func (c *Cache[K, V]) Purge() {
	c.entriesMtx.Lock()
	defer c.entriesMtx.Unlock()

	clear(c.entries)
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.entriesMtx.RLock()
	defer c.entriesMtx.RUnlock()

	return len(c.entries)
}

// CandleStore caches the candle series of an underlying store per symbol.
type CandleStore struct {
	store  shared.CandleStore
	series *Cache[string, []shared.Candle]
}

// Ensure the candle store cache implements the CandleStore interface.
var _ shared.CandleStore = (*CandleStore)(nil)

// NewCandleStore wraps the provided store with a per-symbol series cache.
func NewCandleStore(store shared.CandleStore) *CandleStore {
	return &CandleStore{
		store:  store,
		series: New[string, []shared.Candle](),
	}
}

// FetchCandles returns the cached series for the provided symbol, loading it from the
// underlying store on a miss. Errors are not cached.
func (s *CandleStore) FetchCandles(ctx context.Context, symbol string) ([]shared.Candle, error) {
	if candles, ok := s.series.Get(symbol); ok {
		return slices.Clone(candles), nil
	}

	candles, err := s.store.FetchCandles(ctx, symbol)
	if err != nil {
		return nil, err
	}

	s.series.Put(symbol, slices.Clone(candles))
	return candles, nil
}

// Invalidate drops the cached series for the provided symbol.
func (s *CandleStore) Invalidate(symbol string) {
	s.series.Invalidate(symbol)
}

// Purge drops every cached series.
func (s *CandleStore) Purge() {
	s.series.Purge()
}
