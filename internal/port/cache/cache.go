// Package cache defines the port for caching completed decision responses.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/nerv-labs/magi/internal/domain/decision"
)

// Cache stores decision responses keyed by their input. A hit on an
// identical (question, context) pair within the TTL skips the council run
// entirely.
type Cache interface {
	Get(ctx context.Context, key string) (*decision.Response, bool, error)
	Set(ctx context.Context, key string, resp *decision.Response, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Key derives the cache key for a decision input. The separator keeps
// ("ab", "c") and ("a", "bc") distinct.
func Key(question, context string) string {
	h := sha256.Sum256([]byte(question + "\x00" + context))
	return hex.EncodeToString(h[:])
}
