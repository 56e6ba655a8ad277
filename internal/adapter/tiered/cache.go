// Package tiered layers a process-local decision cache in front of a
// shared remote one. Replicas hit the remote tier only on local misses.
package tiered

import (
	"context"
	"time"

	"github.com/nerv-labs/magi/internal/domain/decision"
	"github.com/nerv-labs/magi/internal/port/cache"
)

// Cache combines a local and a remote cache. Get checks local first and
// backfills it on a remote hit. Set and Delete touch both tiers.
type Cache struct {
	local       cache.Cache
	remote      cache.Cache
	localExpire time.Duration
}

// New creates a tiered cache. localExpire bounds how long backfilled
// entries live in the local tier.
func New(local, remote cache.Cache, localExpire time.Duration) *Cache {
	return &Cache{local: local, remote: remote, localExpire: localExpire}
}

// Get returns a cached response, preferring the local tier.
func (c *Cache) Get(ctx context.Context, key string) (*decision.Response, bool, error) {
	resp, ok, err := c.local.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return resp, true, nil
	}

	resp, ok, err = c.remote.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		_ = c.local.Set(ctx, key, resp, c.localExpire)
		return resp, true, nil
	}

	return nil, false, nil
}

// Set writes the response to both tiers.
func (c *Cache) Set(ctx context.Context, key string, resp *decision.Response, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, resp, ttl); err != nil {
		return err
	}
	return c.remote.Set(ctx, key, resp, ttl)
}

// Delete removes the entry from both tiers.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, key)
}
