// Package cache implements the price cache (C1): a sharded, TTL-bounded
// latest-value store keyed by (exchange, market, symbol). Sharding is by
// symbol so that every entry belonging to one symbol - regardless of which
// exchange or market produced it - lives in the same shard, which is what
// lets all_by_market take a point-in-time-consistent view per symbol while
// holding only that symbol's shard lock.
package cache

import (
	"sync"
	"time"

	"github.com/svyatogor/spreadup/internal/model"
	"github.com/svyatogor/spreadup/pkg/clock"
)

const (
	// DefaultTTL is how long an entry remains visible after insertion.
	DefaultTTL = 300 * time.Second

	defaultShards = 16
)

// fnvOffset32 and fnvPrime32 implement FNV-1a without allocating, mirroring
// the hot-path hashing used elsewhere in this codebase's price-update path.
const (
	fnvOffset32 = uint32(2166136261)
	fnvPrime32  = uint32(16777619)
)

func fnvHash(s string) uint32 {
	h := fnvOffset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime32
	}
	return h
}

// Stats reports cumulative cache activity.
type Stats struct {
	Hits    int64
	Misses  int64
	Updates int64
	Entries int64
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]model.CacheEntry
}

// Cache is the concurrent, sharded implementation of C1.
type Cache struct {
	shards    []*shard
	numShards uint32
	ttl       time.Duration
	clk       clock.Clock

	statsMu sync.Mutex
	hits    int64
	misses  int64
	updates int64
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithTTL overrides the default 300s entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock injects a Clock, used by tests to control expiry deterministically.
func WithClock(clk clock.Clock) Option {
	return func(c *Cache) { c.clk = clk }
}

// WithShards overrides the shard count (default 16).
func WithShards(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.numShards = uint32(n)
		}
	}
}

// New builds an empty cache ready for concurrent use.
func New(opts ...Option) *Cache {
	c := &Cache{
		numShards: defaultShards,
		ttl:       DefaultTTL,
		clk:       clock.Default,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.shards = make([]*shard, c.numShards)
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]model.CacheEntry)}
	}
	return c
}

func (c *Cache) shardFor(symbol model.Symbol) *shard {
	return c.shards[fnvHash(string(symbol))%c.numShards]
}

// Update upserts a PriceUpdate, setting its expiry to now+TTL. Last writer
// wins by wall-clock arrival order; out-of-order timestamps from the same
// source are accepted without rejection (futures venues observably backstep).
func (c *Cache) Update(u model.PriceUpdate) {
	sh := c.shardFor(u.Symbol)
	now := c.clk.Now()

	sh.mu.Lock()
	sh.entries[u.Key()] = model.CacheEntry{Update: u, ExpiresAt: now.Add(c.ttl)}
	sh.mu.Unlock()

	c.statsMu.Lock()
	c.updates++
	c.statsMu.Unlock()
}

// Get returns the live entry for (exchange, market, symbol), or false if
// absent or expired. A read that observes expiry lazily evicts the entry.
func (c *Cache) Get(exchange model.ExchangeId, market model.MarketKind, symbol model.Symbol) (model.PriceUpdate, bool) {
	sh := c.shardFor(symbol)
	key := string(exchange) + ":" + string(market) + ":" + string(symbol)
	now := c.clk.Now()

	sh.mu.RLock()
	entry, ok := sh.entries[key]
	sh.mu.RUnlock()

	if !ok || entry.Expired(now) {
		if ok && entry.Expired(now) {
			sh.mu.Lock()
			if e2, still := sh.entries[key]; still && e2.Expired(c.clk.Now()) {
				delete(sh.entries, key)
			}
			sh.mu.Unlock()
		}
		c.statsMu.Lock()
		c.misses++
		c.statsMu.Unlock()
		return model.PriceUpdate{}, false
	}

	c.statsMu.Lock()
	c.hits++
	c.statsMu.Unlock()
	return entry.Update, true
}

// AllByMarket returns a snapshot of every live entry on one market side,
// grouped by symbol then by exchange. The view for any single symbol is
// consistent: since all of a symbol's entries live in one shard, a
// concurrent update to a different symbol cannot interleave with it.
func (c *Cache) AllByMarket(market model.MarketKind) map[model.Symbol]map[model.ExchangeId]model.PriceUpdate {
	out := make(map[model.Symbol]map[model.ExchangeId]model.PriceUpdate)
	now := c.clk.Now()

	for _, sh := range c.shards {
		sh.mu.RLock()
		for _, entry := range sh.entries {
			if entry.Update.Market != market || entry.Expired(now) {
				continue
			}
			bySymbol, ok := out[entry.Update.Symbol]
			if !ok {
				bySymbol = make(map[model.ExchangeId]model.PriceUpdate)
				out[entry.Update.Symbol] = bySymbol
			}
			bySymbol[entry.Update.Exchange] = entry.Update
		}
		sh.mu.RUnlock()
	}
	return out
}

// EvictExpired sweeps every shard removing entries whose TTL has lapsed.
// Idempotent and safe to run concurrently with Update/Get.
func (c *Cache) EvictExpired() int {
	now := c.clk.Now()
	removed := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		for key, entry := range sh.entries {
			if entry.Expired(now) {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Clear removes every entry, used on engine shutdown. Cache durability
// across restarts is explicitly out of scope, so no persistence happens here.
func (c *Cache) Clear() {
	for _, sh := range c.shards {
		sh.mu.Lock()
		sh.entries = make(map[string]model.CacheEntry)
		sh.mu.Unlock()
	}
}

// Stats reports cumulative hit/miss/update counters and the current entry count.
func (c *Cache) Stats() Stats {
	c.statsMu.Lock()
	s := Stats{Hits: c.hits, Misses: c.misses, Updates: c.updates}
	c.statsMu.Unlock()

	var entries int64
	for _, sh := range c.shards {
		sh.mu.RLock()
		entries += int64(len(sh.entries))
		sh.mu.RUnlock()
	}
	s.Entries = entries
	return s
}
