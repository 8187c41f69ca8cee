package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const attemptKeyPrefix = "order-attempt:"

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// AttemptGuard marks an idempotency key as in flight so a second request
// with the same key is turned away while the first is still committing.
type AttemptGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAttemptGuard(client *redis.Client, ttl time.Duration) *AttemptGuard {
	return &AttemptGuard{client: client, ttl: ttl}
}

// Acquire reports false when another holder owns key. The returned release
// func deletes the marker only if it still belongs to this holder.
func (g *AttemptGuard) Acquire(ctx context.Context, key, holder string) (func(context.Context), bool, error) {
	redisKey := attemptKeyPrefix + key
	ok, err := g.client.SetNX(ctx, redisKey, holder, g.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	release := func(ctx context.Context) {
		_ = releaseScript.Run(ctx, g.client, []string{redisKey}, holder).Err()
	}
	return release, true, nil
}
