package blob

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// linkSafety is how long before expiry a memoized link stops being handed
// out, so callers never receive a link that is about to lapse.
const linkSafety = 30 * time.Second

type link struct {
	url string
	exp time.Time
}

// CachedLinks memoizes DownloadURL per locator for the lifetime of the
// generated link. All other calls pass through.
type CachedLinks struct {
	Store
	cache *cache.Cache
}

func NewCachedLinks(s Store) *CachedLinks {
	return &CachedLinks{Store: s, cache: cache.New(cache.NoExpiration, 10*time.Minute)}
}

func (c *CachedLinks) DownloadURL(ctx context.Context, locator string) (string, time.Time, error) {
	if v, ok := c.cache.Get(locator); ok {
		l := v.(link)
		return l.url, l.exp, nil
	}
	u, exp, err := c.Store.DownloadURL(ctx, locator)
	if err != nil {
		return "", time.Time{}, err
	}
	if ttl := time.Until(exp) - linkSafety; ttl > 0 {
		c.cache.Set(locator, link{url: u, exp: exp}, ttl)
	}
	return u, exp, nil
}

func (c *CachedLinks) Delete(ctx context.Context, locator string) error {
	c.cache.Delete(locator)
	return c.Store.Delete(ctx, locator)
}
