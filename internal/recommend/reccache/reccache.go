// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reccache implements the Result Cache (C8): a sharded,
// fingerprint-keyed cache of recommendation lists with TTL and LRU
// eviction, request coalescing, and invalidation on variant switch.
//
// The per-shard eviction structure is a doubly-linked-list LRU, the same
// general shape this codebase uses elsewhere for bounded in-memory caches,
// generalized here from string-keyed time.Time values to recommendation
// result entries and split across shards to reduce lock contention under
// concurrent request handling.
package reccache

import (
	"hash/fnv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sonora-audio/sonora/internal/metrics"
	"github.com/sonora-audio/sonora/internal/recommend/rectypes"
)

// DefaultCapacity and DefaultTTL mirror spec §4.8's suggested defaults.
const (
	DefaultCapacity = 100
	DefaultTTL      = 60 * time.Minute
)

// Entry is one cached recommendation list (spec §3 CacheEntry).
type Entry struct {
	Recommendations []rectypes.Recommendation
	StoredAt        time.Time
	TTL             time.Duration
	VariantTag      string // fingerprint of the active_variant_ids this entry depends on
}

func (e *Entry) expired(now time.Time) bool {
	return now.After(e.StoredAt.Add(e.TTL))
}

// Cache is a sharded result cache. Each shard has its own lock and LRU
// list, and requests for the same key coalesce onto a single builder call
// via singleflight (spec §4.8 "at-most-one concurrent build per key").
type Cache struct {
	shards      []*shard
	shardMask   uint32
	capacity    int
	defaultTTL  time.Duration
	building    singleflight.Group
}

// New builds a Cache with shardCount shards (rounded up to a power of two)
// each holding up to capacity divided by that rounded count (at least 1).
func New(capacity, shardCount int, defaultTTL time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if shardCount <= 0 {
		shardCount = 1
	}
	n := nextPowerOfTwo(shardCount)

	perShard := capacity / n
	if perShard < 1 {
		perShard = 1
	}

	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = newShard(perShard)
	}

	return &Cache{
		shards:     shards,
		shardMask:  uint32(n - 1),
		capacity:   capacity,
		defaultTTL: defaultTTL,
	}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (c *Cache) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()&c.shardMask]
}

// Get returns the cached entry for key if present and not expired (spec §4.8).
func (c *Cache) Get(key string) (*Entry, bool) {
	return c.shardFor(key).get(key, time.Now())
}

// Put stores value under key with ttl (0 means DefaultTTL), tagged with
// variantTag for later invalidation (spec §4.8).
func (c *Cache) Put(key string, recs []rectypes.Recommendation, ttl time.Duration, variantTag string) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	entry := &Entry{
		Recommendations: recs,
		StoredAt:        time.Now(),
		TTL:             ttl,
		VariantTag:      variantTag,
	}
	c.shardFor(key).put(key, entry)
	metrics.CacheEntries.Set(float64(c.Len()))
}

// GetOrBuild returns the cached entry for key, or calls build exactly once
// across concurrent callers sharing the key, caching and returning its
// result (spec §4.8 request coalescing). The bool result reports whether
// the entry was already cached (a true hit) rather than just built.
func (c *Cache) GetOrBuild(key string, variantTag string, ttl time.Duration, build func() ([]rectypes.Recommendation, error)) (*Entry, bool, error) {
	if entry, ok := c.Get(key); ok {
		metrics.CacheHits.Inc()
		return entry, true, nil
	}

	v, err, shared := c.building.Do(key, func() (interface{}, error) {
		if entry, ok := c.Get(key); ok {
			return entry, nil
		}
		recs, err := build()
		if err != nil {
			return nil, err
		}
		c.Put(key, recs, ttl, variantTag)
		entry, _ := c.Get(key)
		return entry, nil
	})
	if err != nil {
		return nil, false, err
	}
	metrics.CacheMisses.Inc()
	if shared {
		metrics.CacheCoalescedWaits.Inc()
	}
	return v.(*Entry), false, nil
}

// InvalidateVariant drops every cached entry tagged with variantTag (spec
// §4.8 "a variant switch invalidates cache entries whose key depends on
// the switched variant").
func (c *Cache) InvalidateVariant(variantTag string) {
	for _, s := range c.shards {
		s.invalidateVariant(variantTag)
	}
	metrics.CacheEntries.Set(float64(c.Len()))
}

// Len returns the total number of live (non-expired) entries across all
// shards, for metrics (spec's SUPPLEMENTED FEATURES §/metrics).
func (c *Cache) Len() int {
	total := 0
	now := time.Now()
	for _, s := range c.shards {
		total += s.len(now)
	}
	return total
}
