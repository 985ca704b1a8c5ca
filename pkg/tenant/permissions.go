package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// CachedChecker memoizes permission decisions for a fixed TTL.
//
// Only successful lookups are cached; an error from the underlying checker
// is returned as-is and retried on the next call.
type CachedChecker struct {
	next  PermissionChecker
	cache *ristretto.Cache[string, bool]
	ttl   time.Duration
}

// NewCachedChecker wraps next with a cache bounded to maxCost bytes.
// A ttl of 0 disables caching.
func NewCachedChecker(next PermissionChecker, ttl time.Duration, maxCost int64) (*CachedChecker, error) {
	c := &CachedChecker{next: next, ttl: ttl}
	if ttl <= 0 {
		return c, nil
	}
	if maxCost <= 0 {
		maxCost = 8 << 20
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, bool]{
		// 10x the expected number of entries, per ristretto's guidance.
		NumCounters: max(maxCost/64*10, 1000),
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create permission cache: %w", err)
	}
	c.cache = cache
	return c, nil
}

// CheckPermission implements PermissionChecker.
func (c *CachedChecker) CheckPermission(ctx context.Context, server, token, permission string) (bool, error) {
	if c.cache == nil {
		return c.next.CheckPermission(ctx, server, token, permission)
	}

	key := server + "\x00" + token + "\x00" + permission
	if allowed, ok := c.cache.Get(key); ok {
		return allowed, nil
	}

	allowed, err := c.next.CheckPermission(ctx, server, token, permission)
	if err != nil {
		return false, err
	}

	c.cache.SetWithTTL(key, allowed, int64(len(key))+1, c.ttl)
	return allowed, nil
}

// Close releases the cache.
func (c *CachedChecker) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}
