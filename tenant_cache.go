package tenantauth

import (
	"context"
	"time"

	"github.com/MrEthical07/tenantauth/identity"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

type tenantLookup func(ctx context.Context, code string) (identity.Tenant, error)

// tenantCache resolves tenant codes with a TTL bounded LRU. Concurrent
// misses for the same code share one store lookup. Lookup failures are
// never cached.
type tenantCache struct {
	lookup tenantLookup
	cache  *lru.LRU[string, identity.Tenant]
	group  singleflight.Group
}

func newTenantCache(lookup tenantLookup, size int, ttl time.Duration) *tenantCache {
	c := &tenantCache{lookup: lookup}
	if size > 0 {
		c.cache = lru.NewLRU[string, identity.Tenant](size, nil, ttl)
	}
	return c
}

func (c *tenantCache) Resolve(ctx context.Context, code string) (identity.Tenant, error) {
	code = identity.NormalizeCode(code)
	if code == "" {
		return identity.Tenant{}, identity.ErrNotFound
	}
	if c.cache != nil {
		if t, ok := c.cache.Get(code); ok {
			return t, nil
		}
	}

	v, err, _ := c.group.Do(code, func() (interface{}, error) {
		t, err := c.lookup(ctx, code)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			c.cache.Add(code, t)
		}
		return t, nil
	})
	if err != nil {
		return identity.Tenant{}, err
	}
	return v.(identity.Tenant), nil
}

// Invalidate drops code so the next Resolve reads the store.
func (c *tenantCache) Invalidate(code string) {
	if c.cache != nil {
		c.cache.Remove(identity.NormalizeCode(code))
	}
}
