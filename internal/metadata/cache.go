package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Cached memoizes successful resolutions of another Resolver.
//
// Entries expire after ttl so moving branches are picked up again.
// Concurrent lookups for the same name share one upstream call.
// Failures are never cached.
type Cached struct {
	next  Resolver
	cache *expirable.LRU[string, Snapshot]
	group singleflight.Group
}

// NewCached wraps next with an LRU of the given size and ttl.
func NewCached(next Resolver, size int, ttl time.Duration) (*Cached, error) {
	if next == nil {
		return nil, fmt.Errorf("cached resolver requires an upstream resolver")
	}
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", size)
	}
	if ttl < 0 {
		return nil, fmt.Errorf("cache ttl cannot be negative")
	}
	return &Cached{
		next:  next,
		cache: expirable.NewLRU[string, Snapshot](size, nil, ttl),
	}, nil
}

// sharedLookupTimeout bounds an upstream lookup once it no longer belongs to
// a single caller.
const sharedLookupTimeout = 30 * time.Second

// Resolve returns a cached snapshot or asks the upstream resolver.
//
// The upstream call runs detached from any one caller's cancellation, since
// concurrent callers for the same name share it. Each caller still stops
// waiting when its own ctx ends.
func (c *Cached) Resolve(ctx context.Context, name string) (Snapshot, error) {
	if snap, ok := c.cache.Get(name); ok {
		return snap, nil
	}

	ch := c.group.DoChan(name, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLookupTimeout)
		defer cancel()

		snap, err := c.next.Resolve(lookupCtx, name)
		if err != nil {
			return Snapshot{}, err
		}
		c.cache.Add(name, snap)
		return snap, nil
	})

	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{}, res.Err
		}
		return res.Val.(Snapshot), nil
	}
}

// Len returns the number of cached entries.
func (c *Cached) Len() int {
	return c.cache.Len()
}

// Purge drops all cached entries.
func (c *Cached) Purge() {
	c.cache.Purge()
}
