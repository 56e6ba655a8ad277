// Package ristretto implements the decision cache port on an in-process
// dgraph-io/ristretto cache.
package ristretto

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/nerv-labs/magi/internal/domain/decision"
)

// Cache holds serialized decision responses, cost-bounded by their
// encoded size.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a ristretto-backed decision cache. maxCostBytes bounds the
// total size of cached responses.
func New(maxCostBytes int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Cache{c: c}, nil
}

// Get returns the cached response for a key, if present and still valid.
func (c *Cache) Get(_ context.Context, key string) (*decision.Response, bool, error) {
	data, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	var resp decision.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		// A corrupt entry is dropped, not surfaced.
		c.c.Del(key)
		return nil, false, nil
	}
	return &resp, true, nil
}

// Set stores a response under the key for the given TTL.
func (c *Cache) Set(_ context.Context, key string, resp *decision.Response, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	c.c.SetWithTTL(key, data, int64(len(data)), ttl)
	return nil
}

// Delete removes a cached response.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Wait blocks until buffered writes have been applied.
func (c *Cache) Wait() {
	c.c.Wait()
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}
