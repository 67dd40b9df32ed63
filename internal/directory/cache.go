package directory

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = 10 * time.Minute
)

// Cached memoizes successful lookups of another Resolver. Misses and errors
// are not cached so a newly hired employee resolves on the next attempt.
type Cached struct {
	next  Resolver
	cache *expirable.LRU[string, Employee]
}

func NewCached(next Resolver, size int, ttl time.Duration) *Cached {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cached{
		next:  next,
		cache: expirable.NewLRU[string, Employee](size, nil, ttl),
	}
}

func (c *Cached) ResolveEmployee(ctx context.Context, employeeNumber string) (Employee, error) {
	if e, ok := c.cache.Get(employeeNumber); ok {
		return e, nil
	}
	e, err := c.next.ResolveEmployee(ctx, employeeNumber)
	if err != nil {
		return Employee{}, err
	}
	c.cache.Add(employeeNumber, e)
	return e, nil
}

func (c *Cached) Len() int {
	return c.cache.Len()
}
