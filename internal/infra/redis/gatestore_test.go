package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	server := miniredis.RunT(t)
	return goredis.NewClient(&goredis.Options{Addr: server.Addr()})
}

func TestGateStoreTouchAndLastActivity(t *testing.T) {
	t.Parallel()

	store, err := NewGateStore(newTestRedisClient(t), 30*time.Minute)
	if err != nil {
		t.Fatalf("NewGateStore() error = %v", err)
	}

	ctx := context.Background()

	_, found, err := store.LastActivity(ctx, "5511999990000")
	if err != nil {
		t.Fatalf("LastActivity() error = %v", err)
	}
	if found {
		t.Fatal("unknown sender must not be found")
	}

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.Touch(ctx, "5511999990000", at); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	lastActivity, found, err := store.LastActivity(ctx, "5511999990000")
	if err != nil {
		t.Fatalf("LastActivity() error = %v", err)
	}
	if !found {
		t.Fatal("touched sender must be found")
	}
	if !lastActivity.Equal(at) {
		t.Fatalf("lastActivity = %s, want %s", lastActivity, at)
	}
}

func TestGateStoreKeyExpiry(t *testing.T) {
	t.Parallel()

	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})

	store, err := NewGateStore(client, time.Minute)
	if err != nil {
		t.Fatalf("NewGateStore() error = %v", err)
	}

	ctx := context.Background()
	if err := store.Touch(ctx, "A", time.Now()); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	server.FastForward(2 * time.Minute)

	_, found, err := store.LastActivity(ctx, "A")
	if err != nil {
		t.Fatalf("LastActivity() error = %v", err)
	}
	if found {
		t.Fatal("key must expire server-side after the TTL")
	}
}

func TestGateStoreSweepIsNoop(t *testing.T) {
	t.Parallel()

	store, err := NewGateStore(newTestRedisClient(t), time.Minute)
	if err != nil {
		t.Fatalf("NewGateStore() error = %v", err)
	}

	removed, err := store.Sweep(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 0 {
		t.Fatalf("Sweep() removed = %d, want 0", removed)
	}
}

func TestNewGateStoreValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewGateStore(nil, time.Minute); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewGateStore(newTestRedisClient(t), 0); err == nil {
		t.Fatal("expected error for non-positive ttl")
	}
}
