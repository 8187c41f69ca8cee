package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client, err := Connect(context.Background(), addr, os.Getenv("REDIS_PASSWORD"))
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestAttemptGuard_SecondHolderRejected(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	client.Del(ctx, attemptKeyPrefix+"guard-test")
	guard := NewAttemptGuard(client, 5*time.Second)

	release, ok, err := guard.Acquire(ctx, "guard-test", "first")
	if err != nil || !ok {
		t.Fatalf("expected first acquire, got %v %v", ok, err)
	}
	if _, ok, err := guard.Acquire(ctx, "guard-test", "second"); err != nil || ok {
		t.Fatalf("expected second acquire to fail, got %v %v", ok, err)
	}

	release(ctx)
	release2, ok, err := guard.Acquire(ctx, "guard-test", "second")
	if err != nil || !ok {
		t.Fatalf("expected acquire after release, got %v %v", ok, err)
	}
	release2(ctx)
}

func TestAttemptGuard_StaleReleaseKeepsNewHolder(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	key := attemptKeyPrefix + "guard-stale"
	guard := NewAttemptGuard(client, 5*time.Second)
	client.Del(ctx, key)

	release, ok, _ := guard.Acquire(ctx, "guard-stale", "old")
	if !ok {
		t.Fatalf("expected acquire")
	}
	client.Set(ctx, key, "new", 5*time.Second)
	release(ctx)

	if v, _ := client.Get(ctx, key).Result(); v != "new" {
		t.Fatalf("release removed another holder's marker, value %q", v)
	}
	client.Del(ctx, key)
}
