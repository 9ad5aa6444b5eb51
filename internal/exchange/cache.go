package exchange

import (
	"sync"
	"time"

	"github.com/aitrader/engine/internal/domain"
)

// balanceCacheEntry is one account's cached (cash, positions) pair.
type balanceCacheEntry struct {
	cash      float64
	positions []domain.Position
	cachedAt  time.Time
}

// balanceCache absorbs the repeated GetBalanceAndPositions reads that occur
// within one decision cycle, per spec.md §4.1. Grounded on
// original_source/backend/services/binance_sync.py's
// "get_binance_balance_and_positions" cache-by-account-key idiom, with the
// "clear cache entry on any error" invariant from Testable Property #5.
type balanceCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int64]balanceCacheEntry
}

func newBalanceCache(ttl time.Duration) *balanceCache {
	return &balanceCache{ttl: ttl, entries: make(map[int64]balanceCacheEntry)}
}

func (c *balanceCache) get(accountID int64) (float64, []domain.Position, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[accountID]
	if !ok {
		return 0, nil, false
	}
	if time.Since(entry.cachedAt) > c.ttl {
		delete(c.entries, accountID)
		return 0, nil, false
	}
	return entry.cash, entry.positions, true
}

func (c *balanceCache) set(accountID int64, cash float64, positions []domain.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[accountID] = balanceCacheEntry{cash: cash, positions: positions, cachedAt: time.Now()}
}

// invalidate drops any cached entry for the account — called on every
// successful order submission/cancellation and on every signed-call
// failure, so the next reader never observes a stale success.
func (c *balanceCache) invalidate(accountID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, accountID)
}
