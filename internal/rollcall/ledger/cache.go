package ledger

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/BrandonDHaskell/rollcall/internal/metrics"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/a1"
)

type cacheEntry struct {
	rng     a1.Range
	rows    [][]string
	expires time.Time
}

// rangeCache is a TTL cache of range reads keyed by the range string.
// Writes drop only the entries whose range overlaps the written cells.
type rangeCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	gen     uint64
	group   singleflight.Group
}

func newRangeCache(ttl time.Duration, now func() time.Time) *rangeCache {
	return &rangeCache{ttl: ttl, now: now, entries: make(map[string]cacheEntry)}
}

// get returns cached rows for rng, loading them at most once across
// concurrent callers on a miss.
func (c *rangeCache) get(ctx context.Context, rng a1.Range, load func(ctx context.Context) ([][]string, error)) ([][]string, error) {
	key := rng.String()
	if rows, ok := c.lookup(key); ok {
		metrics.LedgerCacheHits.Inc()
		return rows, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if rows, ok := c.lookup(key); ok {
			return rows, nil
		}
		c.mu.Lock()
		gen := c.gen
		c.mu.Unlock()

		rows, err := load(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		// A write landed while loading; do not cache what may be stale.
		if c.ttl > 0 && c.gen == gen {
			c.entries[key] = cacheEntry{rng: rng, rows: rows, expires: c.now().Add(c.ttl)}
		}
		c.mu.Unlock()
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return copyRows(v.([][]string)), nil
}

func (c *rangeCache) lookup(key string) ([][]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return copyRows(e.rows), true
}

func (c *rangeCache) invalidate(written a1.Range) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for k, e := range c.entries {
		if e.rng.Overlaps(written) {
			delete(c.entries, k)
		}
	}
}

func copyRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
