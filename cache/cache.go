// Package cache implements the Response Cache and Intent Cache of spec
// §4.7/§4.8: capacity-bounded, TTL-expiring caches that let the orchestrator
// skip a repeated LLM call entirely. Both sit atop
// github.com/hashicorp/golang-lru/v2/expirable, which natively provides
// capacity-bounded LRU with per-entry TTL — satisfying invariants #4 and #5
// of spec §8 (expiry implies a subsequent miss; size never exceeds maxSize)
// without hand-rolled eviction bookkeeping. A thin wrapper layers the
// hits/misses/evictions/hitRate stats and lastAccessedAt/accessCount
// bump-on-hit semantics the library doesn't track natively.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Stats is the snapshot exposed by spec §4.7 ("stats {size, hits, misses,
// evictions, hitRate}").
type Stats struct {
	Size      int
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64
}

type meta struct {
	lastAccessedAt time.Time
	accessCount    int64
}

type counters struct {
	mu        sync.Mutex
	hits      int64
	misses    int64
	evictions int64
}

func (c *counters) hit()   { c.mu.Lock(); c.hits++; c.mu.Unlock() }
func (c *counters) miss()  { c.mu.Lock(); c.misses++; c.mu.Unlock() }
func (c *counters) evict() { c.mu.Lock(); c.evictions++; c.mu.Unlock() }

func (c *counters) snapshot() (hits, misses, evictions int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evictions
}

// ResponseKey hashes the quadruple spec §4.7 keys the Response Cache on.
func ResponseKey(normalizedPrompt, model string, temperature float64, maxTokens int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%f|%d", normalizedPrompt, model, temperature, maxTokens)))
	return hex.EncodeToString(sum[:])
}

// ResponseCache caches raw LLM response strings.
type ResponseCache struct {
	lru      *lru.LRU[string, string]
	metaMu   sync.Mutex
	metadata map[string]*meta
	counters counters
	maxSize  int
}

// NewResponseCache builds a Response Cache bounded by maxSize entries with a
// per-entry TTL (spec §4.7 defaults: maxSize 1000, ttl 60m).
func NewResponseCache(maxSize int, ttl time.Duration) *ResponseCache {
	c := &ResponseCache{
		metadata: make(map[string]*meta),
		maxSize:  maxSize,
	}
	c.lru = lru.NewLRU[string, string](maxSize, func(key string, _ string) {
		c.counters.evict()
		c.metaMu.Lock()
		delete(c.metadata, key)
		c.metaMu.Unlock()
	}, ttl)
	return c
}

// Get returns the cached response for key, or ("", false) on miss (absent or
// expired). On hit, lastAccessedAt is bumped and accessCount incremented.
func (c *ResponseCache) Get(key string) (string, bool) {
	value, ok := c.lru.Get(key)
	if !ok {
		c.counters.miss()
		return "", false
	}
	c.counters.hit()
	c.metaMu.Lock()
	if m, exists := c.metadata[key]; exists {
		m.lastAccessedAt = time.Now()
		m.accessCount++
	}
	c.metaMu.Unlock()
	return value, true
}

// Put inserts value under key, evicting the LRU entry if at capacity.
func (c *ResponseCache) Put(key, value string) {
	c.lru.Add(key, value)
	c.metaMu.Lock()
	c.metadata[key] = &meta{lastAccessedAt: time.Now(), accessCount: 0}
	c.metaMu.Unlock()
}

// Stats returns the current cache statistics.
func (c *ResponseCache) Stats() Stats {
	hits, misses, evictions := c.counters.snapshot()
	return buildStats(c.lru.Len(), hits, misses, evictions)
}

// CachedIntent is the value the Intent Cache stores (spec §4.8).
type CachedIntent struct {
	Intent      string
	TargetAgent string
	Confidence  float64
	Parameters  map[string]any
	Reasoning   string
}

// IntentCache caches planner decisions keyed by normalized user query, to
// short-circuit the Planner for repeat prompts (spec §4.8).
type IntentCache struct {
	lru      *lru.LRU[string, CachedIntent]
	metaMu   sync.Mutex
	metadata map[string]*meta
	counters counters
}

// NewIntentCache builds an Intent Cache with the same shape as
// NewResponseCache but storing CachedIntent values.
func NewIntentCache(maxSize int, ttl time.Duration) *IntentCache {
	c := &IntentCache{metadata: make(map[string]*meta)}
	c.lru = lru.NewLRU[string, CachedIntent](maxSize, func(key string, _ CachedIntent) {
		c.counters.evict()
		c.metaMu.Lock()
		delete(c.metadata, key)
		c.metaMu.Unlock()
	}, ttl)
	return c
}

// Get returns the cached intent for the normalized query key.
func (c *IntentCache) Get(key string) (CachedIntent, bool) {
	value, ok := c.lru.Get(key)
	if !ok {
		c.counters.miss()
		return CachedIntent{}, false
	}
	c.counters.hit()
	c.metaMu.Lock()
	if m, exists := c.metadata[key]; exists {
		m.lastAccessedAt = time.Now()
		m.accessCount++
	}
	c.metaMu.Unlock()
	return value, true
}

// Put inserts intent under the normalized query key.
func (c *IntentCache) Put(key string, intent CachedIntent) {
	c.lru.Add(key, intent)
	c.metaMu.Lock()
	c.metadata[key] = &meta{lastAccessedAt: time.Now(), accessCount: 0}
	c.metaMu.Unlock()
}

// Stats returns the current cache statistics.
func (c *IntentCache) Stats() Stats {
	hits, misses, evictions := c.counters.snapshot()
	return buildStats(c.lru.Len(), hits, misses, evictions)
}

func buildStats(size int, hits, misses, evictions int64) Stats {
	total := hits + misses
	var rate float64
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{Size: size, Hits: hits, Misses: misses, Evictions: evictions, HitRate: rate}
}
