package pool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/galaswap/agent/pkg/gateway"
	"github.com/galaswap/agent/pkg/metrics"
	"github.com/galaswap/agent/pkg/token"
)

// CompositeFetcher is the slice of the gateway client the cache needs.
type CompositeFetcher interface {
	GetCompositePool(ctx context.Context, t0, t1 token.Key, fee uint32) (*gateway.CompositePoolDTO, error)
}

type entry struct {
	snap    *Snapshot
	expires time.Time
}

// Cache keeps composite pool snapshots with a wall-clock TTL. Concurrent
// fetches for the same key coalesce into a single in-flight request;
// different keys fetch in parallel.
type Cache struct {
	fetcher CompositeFetcher
	ttl     time.Duration

	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
}

// NewCache builds a cache over the given fetcher.
func NewCache(fetcher CompositeFetcher, ttl time.Duration) *Cache {
	return &Cache{
		fetcher: fetcher,
		ttl:     ttl,
		entries: make(map[string]entry),
	}
}

// cacheKey is canonical: token order is normalized so (a,b,fee) and (b,a,fee)
// address the same entry.
func cacheKey(t0, t1 token.Key, fee uint32) string {
	lo, hi := t0, t1
	if hi.Less(lo) {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("%s|%s|%d", lo, hi, fee)
}

// Get returns a live snapshot for the pair and fee tier, fetching from the
// gateway when the entry is absent or expired.
func (c *Cache) Get(ctx context.Context, t0, t1 token.Key, fee uint32) (*Snapshot, error) {
	key := cacheKey(t0, t1, fee)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(e.expires) {
		metrics.PoolCacheLookups.WithLabelValues("hit").Inc()
		return e.snap, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Another caller may have repopulated while we waited on the group.
		c.mu.RLock()
		e, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && time.Now().Before(e.expires) {
			return e.snap, nil
		}

		dto, err := c.fetcher.GetCompositePool(ctx, t0, t1, fee)
		if err != nil {
			return nil, err
		}
		snap, err := SnapshotFromDTO(dto)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = entry{snap: snap, expires: time.Now().Add(c.ttl)}
		c.mu.Unlock()

		log.WithFields(log.Fields{
			"pool":  key,
			"ticks": len(snap.Ticks),
		}).Debug("Pool snapshot refreshed")
		return snap, nil
	})
	if err != nil {
		metrics.PoolCacheLookups.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.PoolCacheLookups.WithLabelValues("miss").Inc()
	return v.(*Snapshot), nil
}

// SnapshotAll returns every live entry in canonical key order, so repeated
// calls over the same entries yield the same pool list. The path finder runs
// over this consistent set without touching the transport.
func (c *Cache) SnapshotAll() []*Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := time.Now()
	keys := make([]string, 0, len(c.entries))
	for key, e := range c.entries {
		if now.Before(e.expires) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	out := make([]*Snapshot, 0, len(keys))
	for _, key := range keys {
		out = append(out, c.entries[key].snap)
	}
	return out
}

// EvictExpired removes entries past their expiry and returns how many went.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	evicted := 0
	for key, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

// EvictAll clears the cache.
func (c *Cache) EvictAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len reports the number of cached entries, live or expired.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
