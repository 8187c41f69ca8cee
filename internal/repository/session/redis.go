package session

import (
	"context"
	"time"

	"storefront/internal/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

type redisRepo struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) Repository {
	return &redisRepo{client: client}
}

func (r *redisRepo) Register(ctx context.Context, token string, ttl time.Duration) error {
	ok, err := r.client.SetNX(ctx, keyPrefix+token, 1, ttl).Result()
	if err != nil {
		return domain.Transient("register session", err)
	}
	if !ok {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (r *redisRepo) Active(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, keyPrefix+token).Result()
	if err != nil {
		return false, domain.Transient("lookup session", err)
	}
	return n == 1, nil
}

func (r *redisRepo) Touch(ctx context.Context, token string, ttl time.Duration) error {
	if err := r.client.Expire(ctx, keyPrefix+token, ttl).Err(); err != nil {
		return domain.Transient("touch session", err)
	}
	return nil
}
