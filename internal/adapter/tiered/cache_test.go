package tiered_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerv-labs/magi/internal/adapter/tiered"
	"github.com/nerv-labs/magi/internal/domain/decision"
)

// memCache is an in-memory cache that counts gets, to observe which tier
// served a lookup.
type memCache struct {
	mu   sync.Mutex
	data map[string]*decision.Response
	gets int
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string]*decision.Response)}
}

func (m *memCache) Get(_ context.Context, key string) (*decision.Response, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	resp, ok := m.data[key]
	return resp, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, resp *decision.Response, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = resp
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func testResponse(id string) *decision.Response {
	return &decision.Response{RequestID: id, FinalDecision: decision.VerdictApproved}
}

func TestGetPrefersLocal(t *testing.T) {
	local, remote := newMemCache(), newMemCache()
	c := tiered.New(local, remote, time.Minute)
	ctx := context.Background()

	if err := local.Set(ctx, "k", testResponse("local"), 0); err != nil {
		t.Fatal(err)
	}
	if err := remote.Set(ctx, "k", testResponse("remote"), 0); err != nil {
		t.Fatal(err)
	}

	resp, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if resp.RequestID != "local" {
		t.Fatalf("served from %q, want local", resp.RequestID)
	}
	if remote.gets != 0 {
		t.Fatalf("remote gets = %d, want 0", remote.gets)
	}
}

func TestRemoteHitBackfillsLocal(t *testing.T) {
	local, remote := newMemCache(), newMemCache()
	c := tiered.New(local, remote, time.Minute)
	ctx := context.Background()

	if err := remote.Set(ctx, "k", testResponse("remote"), 0); err != nil {
		t.Fatal(err)
	}

	resp, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if resp.RequestID != "remote" {
		t.Fatalf("RequestID = %q", resp.RequestID)
	}

	// Second lookup must be served locally.
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Fatal("expected backfilled hit")
	}
	if remote.gets != 1 {
		t.Fatalf("remote gets = %d, want 1", remote.gets)
	}
}

func TestMissBothTiers(t *testing.T) {
	c := tiered.New(newMemCache(), newMemCache(), time.Minute)

	if _, ok, err := c.Get(context.Background(), "absent"); ok || err != nil {
		t.Fatalf("ok=%v err=%v, want miss", ok, err)
	}
}

func TestSetAndDeleteTouchBothTiers(t *testing.T) {
	local, remote := newMemCache(), newMemCache()
	c := tiered.New(local, remote, time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "k", testResponse("x"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := local.Get(ctx, "k"); !ok {
		t.Fatal("local tier missing entry")
	}
	if _, ok, _ := remote.Get(ctx, "k"); !ok {
		t.Fatal("remote tier missing entry")
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := local.Get(ctx, "k"); ok {
		t.Fatal("local tier still has entry")
	}
	if _, ok, _ := remote.Get(ctx, "k"); ok {
		t.Fatal("remote tier still has entry")
	}
}
