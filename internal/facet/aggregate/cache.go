package aggregate

import (
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/listing-discovery/internal/core/model"
	"github.com/mohammed-shakir/listing-discovery/internal/facet/selection"
	"github.com/mohammed-shakir/listing-discovery/internal/store/keys"
)

const DefaultCacheSize = 2048

// Cache holds recent snapshots per (scope, scope version, selection). Snapshots are shared
// between readers and are never mutated.
type Cache struct {
	lru    *lru.Cache[string, *AggregatedFacets]
	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, _ := lru.New[string, *AggregatedFacets](size)
	return &Cache{lru: c}
}

func (c *Cache) Get(scope string, version int64, sel selection.FilterSelection) (*AggregatedFacets, bool) {
	snap, ok := c.lru.Get(keys.SnapshotKey(scope, version, sel.Canonical()))
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return snap, ok
}

func (c *Cache) Put(scope string, version int64, sel selection.FilterSelection, snap *AggregatedFacets) {
	if snap == nil {
		return
	}
	c.lru.Add(keys.SnapshotKey(scope, version, sel.Canonical()), snap)
}

// GetOrCompute returns the cached snapshot or computes one from load. The bool is true on a hit.
func (c *Cache) GetOrCompute(
	scope string,
	version int64,
	sel selection.FilterSelection,
	load func() ([]model.Listing, error),
) (*AggregatedFacets, bool, error) {
	if snap, ok := c.Get(scope, version, sel); ok {
		return snap, true, nil
	}
	listings, err := load()
	if err != nil {
		return nil, false, err
	}
	snap := Compute(listings, sel)
	c.Put(scope, version, sel, snap)
	return snap, false, nil
}

// Invalidate drops every snapshot of scope and returns how many were removed
func (c *Cache) Invalidate(scope string) int {
	prefix := keys.SnapshotScopePrefix(scope)
	n := 0
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) && c.lru.Remove(k) {
			n++
		}
	}
	return n
}

func (c *Cache) Purge() { c.lru.Purge() }

func (c *Cache) Len() int { return c.lru.Len() }

func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
