package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Locker struct {
	Cache *redis.Client
}

func (in Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := in.Cache.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", key, err)
	}
	return ok, nil
}

func (in Locker) Release(ctx context.Context, key string) error {
	if err := in.Cache.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}
