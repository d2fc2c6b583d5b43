package calendar

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCacheSize = 512
	defaultCacheTTL  = 6 * time.Hour
)

type cacheEntry struct {
	adv      Advisory
	storedAt time.Time
}

// Cached memoizes a provider's answers per day. Errors are not cached.
type Cached struct {
	next  Provider
	cache *lru.Cache[string, cacheEntry]
	ttl   time.Duration
	now   func() time.Time
}

func NewCached(next Provider, size int, ttl time.Duration) *Cached {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	c, _ := lru.New[string, cacheEntry](size)
	return &Cached{next: next, cache: c, ttl: ttl, now: time.Now}
}

func (c *Cached) Lookup(ctx context.Context, date time.Time) (Advisory, error) {
	key := date.Location().String() + "|" + dayKey(date)
	if e, ok := c.cache.Get(key); ok {
		if c.now().Sub(e.storedAt) < c.ttl {
			return e.adv, nil
		}
		c.cache.Remove(key)
	}
	adv, err := c.next.Lookup(ctx, date)
	if err != nil {
		return Advisory{}, err
	}
	c.cache.Add(key, cacheEntry{adv: adv, storedAt: c.now()})
	return adv, nil
}

func (c *Cached) Len() int { return c.cache.Len() }
