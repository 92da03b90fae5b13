// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

// Package cache implements a two-tier TTL key/value cache: an in-process
// memory map backed by an optional durable store. Reads promote durable
// entries into memory; expired entries are removed lazily on access. When
// the durable tier is unavailable the cache degrades to memory-only.
package cache

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tilewarm/internal/logging"
	"github.com/tomtom215/tilewarm/internal/metrics"
	"github.com/tomtom215/tilewarm/internal/storage"
)

// keyPrefix scopes every durable cache key so Clear never touches
// unrelated storage (the ledger uses its own prefix).
const keyPrefix = "tilewarm:cache:"

// DefaultTTL is the medium-lived default applied by Set.
const DefaultTTL = 5 * time.Minute

// entry is a memory-tier item. A zero TTL means no expiry.
type entry struct {
	value     interface{}
	createdAt time.Time
	ttl       time.Duration
}

// expired reports whether the entry has outlived its TTL at time now.
func (e entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) > e.ttl
}

// envelope is the durable-tier JSON encoding of an entry.
// TTLMillis is nil for entries without expiry.
type envelope struct {
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	TTLMillis *int64          `json:"ttl,omitempty"`
}

// Stats tracks cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	TotalKeys int64
}

// Cache is a thread-safe expiring key/value store with a fast in-memory tier
// backed by a durable tier.
//
// Reads check memory first; on a miss the durable tier is consulted and a
// live durable hit re-populates the memory tier (read-through promotion).
// Expiry is lazy: stale entries are evicted as a side effect of the read that
// finds them, there is no background sweeper.
//
// If the durable store is unavailable at construction the cache degrades to
// memory-only operation for its lifetime. Runtime durable failures are logged
// and never surface to callers.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]entry
	store    storage.Store
	degraded bool
	ttl      time.Duration

	statsMu sync.Mutex
	stats   Stats
}

// New creates a cache over the given durable store with the given default TTL
// (DefaultTTL when zero).
//
// The durable tier is probed exactly once here with a write/read/remove
// round-trip; on any failure the cache remembers the degraded mode and serves
// from memory only. A nil store starts degraded without probing.
func New(store storage.Store, defaultTTL time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	c := &Cache{
		entries: make(map[string]entry),
		store:   store,
		ttl:     defaultTTL,
	}

	if store == nil {
		c.degraded = true
		return c
	}
	if err := probe(store); err != nil {
		c.degraded = true
		logging.Warn().Err(err).Msg("Durable cache tier unavailable, running memory-only")
	}
	return c
}

// probe verifies the store accepts a write/read/remove round-trip.
func probe(store storage.Store) error {
	const probeKey = keyPrefix + "__probe__"
	if err := store.Write(probeKey, []byte("ok")); err != nil {
		return err
	}
	if _, err := store.Read(probeKey); err != nil {
		return err
	}
	return store.Remove(probeKey)
}

// Get retrieves a value by key.
//
// Expired entries behave as misses and are evicted from both tiers as a side
// effect. A durable hit that survives the expiry check is promoted into the
// memory tier before returning.
func (c *Cache) Get(key string) (interface{}, bool) {
	now := time.Now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		if e.expired(now) {
			c.evict(key)
			c.recordMiss()
			return nil, false
		}
		c.recordHit("memory")
		return e.value, true
	}

	e, ok = c.durableGet(key, now)
	if !ok {
		c.recordMiss()
		return nil, false
	}

	// Read-through promotion
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	c.recordHit("durable")
	c.updateTotalKeys()
	return e.value, true
}

// durableGet loads and validates a durable entry. Expired or undecodable
// payloads are removed opportunistically and reported as a miss.
func (c *Cache) durableGet(key string, now time.Time) (entry, bool) {
	if c.degraded {
		return entry{}, false
	}

	raw, err := c.store.Read(keyPrefix + key)
	if err != nil {
		if err != storage.ErrNotFound {
			logging.Debug().Err(err).Str("key", key).Msg("Durable cache read failed")
		}
		return entry{}, false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logging.Debug().Err(err).Str("key", key).Msg("Removing corrupt cache payload")
		c.removeDurable(key)
		return entry{}, false
	}

	e := entry{createdAt: env.CreatedAt}
	if env.TTLMillis != nil {
		e.ttl = time.Duration(*env.TTLMillis) * time.Millisecond
	}
	if e.expired(now) {
		c.removeDurable(key)
		c.recordEviction()
		return entry{}, false
	}

	var value interface{}
	if err := json.Unmarshal(env.Value, &value); err != nil {
		c.removeDurable(key)
		return entry{}, false
	}
	e.value = value
	return e, true
}

// Set stores a value with the cache's default TTL.
func (c *Cache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value in both tiers, overwriting any prior entry.
// A ttl of NoExpiry (0) disables expiry for the entry.
func (c *Cache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	now := time.Now()

	c.mu.Lock()
	c.entries[key] = entry{value: value, createdAt: now, ttl: ttl}
	c.mu.Unlock()
	c.updateTotalKeys()

	if c.degraded {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		logging.Debug().Err(err).Str("key", key).Msg("Value not serializable, memory tier only")
		return
	}
	env := envelope{Value: raw, CreatedAt: now}
	if ttl > 0 {
		ms := ttl.Milliseconds()
		env.TTLMillis = &ms
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := c.store.Write(keyPrefix+key, payload); err != nil {
		logging.Debug().Err(err).Str("key", key).Msg("Durable cache write failed")
	}
}

// NoExpiry disables expiry when passed to SetWithTTL.
const NoExpiry time.Duration = 0

// Delete removes a key from both tiers. Deleting an absent key is a no-op.
func (c *Cache) Delete(key string) {
	c.evict(key)
	c.recordEviction()
	c.updateTotalKeys()
}

// DeleteByPattern removes every key in both tiers whose name matches the
// regular expression. Used for bulk invalidation, e.g. "^locations:".
func (c *Cache) DeleteByPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}

	c.mu.Lock()
	for key := range c.entries {
		if re.MatchString(key) {
			delete(c.entries, key)
			c.recordEviction()
		}
	}
	c.mu.Unlock()

	if !c.degraded {
		keys, err := c.store.Keys(keyPrefix)
		if err != nil {
			logging.Debug().Err(err).Msg("Durable cache scan failed")
		}
		for _, full := range keys {
			if re.MatchString(strings.TrimPrefix(full, keyPrefix)) {
				c.removeDurableFull(full)
			}
		}
	}

	c.updateTotalKeys()
	return nil
}

// Clear removes every entry this cache owns. The durable sweep is scoped by
// the cache key prefix so unrelated storage is untouched.
func (c *Cache) Clear() {
	c.mu.Lock()
	evicted := int64(len(c.entries))
	c.entries = make(map[string]entry)
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.Evictions += evicted
	c.statsMu.Unlock()

	if !c.degraded {
		keys, err := c.store.Keys(keyPrefix)
		if err != nil {
			logging.Debug().Err(err).Msg("Durable cache scan failed")
		}
		for _, full := range keys {
			c.removeDurableFull(full)
		}
	}

	c.updateTotalKeys()
}

// Degraded reports whether the cache is running memory-only.
func (c *Cache) Degraded() bool {
	return c.degraded
}

// GetStats returns a snapshot of the cache counters.
func (c *Cache) GetStats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// evict removes a key from both tiers without touching the miss counters.
func (c *Cache) evict(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.removeDurable(key)
}

func (c *Cache) removeDurable(key string) {
	c.removeDurableFull(keyPrefix + key)
}

func (c *Cache) removeDurableFull(fullKey string) {
	if c.degraded {
		return
	}
	if err := c.store.Remove(fullKey); err != nil {
		logging.Debug().Err(err).Str("key", fullKey).Msg("Durable cache remove failed")
	}
}

func (c *Cache) recordHit(tier string) {
	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
	metrics.CacheHits.WithLabelValues(tier).Inc()
}

func (c *Cache) recordMiss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
	metrics.CacheMisses.Inc()
}

func (c *Cache) recordEviction() {
	c.statsMu.Lock()
	c.stats.Evictions++
	c.statsMu.Unlock()
	metrics.CacheEvictions.Inc()
}

func (c *Cache) updateTotalKeys() {
	c.mu.RLock()
	n := int64(len(c.entries))
	c.mu.RUnlock()

	c.statsMu.Lock()
	c.stats.TotalKeys = n
	c.statsMu.Unlock()
	metrics.CacheEntries.Set(float64(n))
}

// Value retrieves a typed value from the cache.
//
// Entries promoted from the durable tier decode as generic JSON values, so a
// direct type assertion can fail after a process restart; in that case the
// value is re-marshaled into T. Returns the zero value and false on a miss or
// when the stored value cannot represent T.
func Value[T any](c *Cache, key string) (T, bool) {
	var zero T

	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	if typed, ok := v.(T); ok {
		return typed, true
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return zero, false
	}
	var typed T
	if err := json.Unmarshal(raw, &typed); err != nil {
		return zero, false
	}
	return typed, true
}
