// Package natskv caches decision responses in a NATS JetStream KV bucket,
// shared across every replica of the service.
package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/nerv-labs/magi/internal/domain/decision"
)

// Cache stores serialized decision responses in a JetStream KV bucket.
// Entry expiry is governed by the bucket's TTL; the per-call ttl is
// ignored.
type Cache struct {
	kv jetstream.KeyValue
}

// New wraps an existing KV bucket.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// Get returns the cached response for key, if present.
func (c *Cache) Get(ctx context.Context, key string) (*decision.Response, bool, error) {
	entry, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}

	var resp decision.Response
	if err := json.Unmarshal(entry.Value(), &resp); err != nil {
		// A corrupt entry is treated as a miss and purged.
		_ = c.kv.Delete(ctx, key)
		return nil, false, nil
	}
	return &resp, true, nil
}

// Set stores the response under key.
func (c *Cache) Set(ctx context.Context, key string, resp *decision.Response, _ time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if _, err := c.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// Delete removes the entry for key. A missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}
