package smtptransport

import (
	"context"
	"fmt"
	"sync"

	"github.com/unclebandit/relaycast/internal/model"
	"golang.org/x/sync/singleflight"
)

// Cache is the keyed pool of verified SMTP handles shared across
// campaigns (spec §4.A). Cache key is host:port:user. Concurrent
// first-miss opens for the same key are serialized with a singleflight
// barrier (spec §5, §9) so two campaigns never race to open duplicate
// handshakes against the same relay.
type Cache struct {
	mu      sync.RWMutex
	handles map[string]Handle
	group   singleflight.Group

	// dial is the seam tests override to avoid a real network dial,
	// mirroring rotation.Tracker's injected now func() time.Time.
	dial func(ctx context.Context, relay model.RelayDescriptor) (Handle, error)
}

// New builds an empty transport cache.
func New() *Cache {
	return &Cache{handles: make(map[string]Handle), dial: dialHandle}
}

// Key returns the cache key for a relay: host:port:user.
func Key(relay model.RelayDescriptor) string {
	return fmt.Sprintf("%s:%d:%s", relay.Host, relay.Port, relay.User)
}

// Acquire returns a verified, ready-to-send handle for relay. On a cache
// hit it returns the existing handle without re-verifying. On a miss it
// dials and authenticates (spec §4.A); failures propagate to the caller
// and are not cached or evicted.
func (c *Cache) Acquire(ctx context.Context, relay model.RelayDescriptor) (Handle, error) {
	key := Key(relay)

	c.mu.RLock()
	if h, ok := c.handles[key]; ok {
		c.mu.RUnlock()
		return h, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.RLock()
		if h, ok := c.handles[key]; ok {
			c.mu.RUnlock()
			return h, nil
		}
		c.mu.RUnlock()

		h, derr := c.dial(ctx, relay)
		if derr != nil {
			return nil, derr
		}

		c.mu.Lock()
		c.handles[key] = h
		c.mu.Unlock()
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Handle), nil
}

// Shutdown closes every cached handle (spec §3 "the cache owns them and
// closes all on shutdown").
func (c *Cache) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.handles {
		_ = h.Close()
	}
	c.handles = make(map[string]Handle)
}
