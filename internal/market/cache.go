package market

import (
	"sync"
	"time"
)

// symbolKey identifies a cache/history slot.
type symbolKey struct {
	Symbol string
	Venue  string
}

type cacheEntry struct {
	price     float64
	recordedAt time.Time
}

type historyPoint struct {
	timestamp time.Time
	price     float64
}

// PriceCache is the thread-safe TTL cache plus rolling per-symbol history
// named in spec.md §3/§4.3. Grounded on
// original_source/backend/services/price_cache.py's PriceCache: a plain
// map keyed by (symbol, venue) guarded by one mutex, pruned on both read
// and write.
type PriceCache struct {
	mu             sync.Mutex
	ttl            time.Duration
	historyWindow  time.Duration
	cache          map[symbolKey]cacheEntry
	history        map[symbolKey][]historyPoint
}

// NewPriceCache constructs a PriceCache with the given TTL and rolling
// history window.
func NewPriceCache(ttl, historyWindow time.Duration) *PriceCache {
	return &PriceCache{
		ttl:           ttl,
		historyWindow: historyWindow,
		cache:         make(map[symbolKey]cacheEntry),
		history:       make(map[symbolKey][]historyPoint),
	}
}

// Get returns the cached price for (symbol, venue) if it is within TTL.
// A stale entry is purged as a side effect of the read.
func (c *PriceCache) Get(symbol, venue string) (float64, bool) {
	key := symbolKey{Symbol: symbol, Venue: venue}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[key]
	if !ok {
		return 0, false
	}
	if time.Since(entry.recordedAt) > c.ttl {
		delete(c.cache, key)
		return 0, false
	}
	return entry.price, true
}

// Record updates the cache and appends to the rolling history, pruning
// history entries older than the retention window.
func (c *PriceCache) Record(symbol, venue string, price float64, eventTime time.Time) {
	key := symbolKey{Symbol: symbol, Venue: venue}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[key] = cacheEntry{price: price, recordedAt: eventTime}

	points := append(c.history[key], historyPoint{timestamp: eventTime, price: price})
	cutoff := eventTime.Add(-c.historyWindow)
	pruned := points[:0]
	for _, p := range points {
		if p.timestamp.After(cutoff) {
			pruned = append(pruned, p)
		}
	}
	c.history[key] = pruned
}

// History returns a copy of the rolling price history for (symbol, venue).
func (c *PriceCache) History(symbol, venue string) []float64 {
	key := symbolKey{Symbol: symbol, Venue: venue}

	c.mu.Lock()
	defer c.mu.Unlock()

	points := c.history[key]
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.price
	}
	return out
}

// ClearExpired sweeps both the cache and the history across all keys.
// Callable on a schedule in addition to the implicit per-read/write pruning.
func (c *PriceCache) ClearExpired(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.cache {
		if now.Sub(entry.recordedAt) > c.ttl {
			delete(c.cache, key)
		}
	}
	cutoff := now.Add(-c.historyWindow)
	for key, points := range c.history {
		pruned := points[:0]
		for _, p := range points {
			if p.timestamp.After(cutoff) {
				pruned = append(pruned, p)
			}
		}
		c.history[key] = pruned
	}
}
