package search

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/kailas-cloud/retrio/internal/metrics"
)

// Cache holds recent responses keyed by normalized query. Only clean
// responses are cached: anything assembled under a backend failure would pin
// degraded results for the TTL.
type Cache struct {
	inner *ristretto.Cache
	ttl   time.Duration
}

// NewCache creates a response cache. maxCost caps the number of cached
// responses (each costs 1), counters sizes the admission frequency sketch.
func NewCache(maxCost, counters int64, ttl time.Duration) (*Cache, error) {
	inner, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: counters,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}
	return &Cache{inner: inner, ttl: ttl}, nil
}

// Get looks up a cached response.
func (c *Cache) Get(key string) (Response, bool) {
	v, ok := c.inner.Get(key)
	if !ok {
		metrics.SearchCacheTotal.WithLabelValues("miss").Inc()
		return Response{}, false
	}
	resp, ok := v.(Response)
	if !ok {
		metrics.SearchCacheTotal.WithLabelValues("miss").Inc()
		return Response{}, false
	}
	metrics.SearchCacheTotal.WithLabelValues("hit").Inc()
	return resp, true
}

// Set stores a response.
func (c *Cache) Set(key string, resp Response) {
	c.inner.SetWithTTL(key, resp, 1, c.ttl)
}

// Wait flushes pending writes (tests).
func (c *Cache) Wait() {
	c.inner.Wait()
}

// Close releases the cache.
func (c *Cache) Close() {
	c.inner.Close()
}
