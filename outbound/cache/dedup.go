package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
	"workshop-enrollment/common/constant"

	"github.com/redis/go-redis/v9"
)

// DedupStore remembers the most recent webhook event ids in a sorted set scored by
// arrival time. Only the newest Window ids are kept.
type DedupStore struct {
	Cache   *redis.Client
	Window  int64
	LockTTL time.Duration
	TimeNow func() time.Time
}

func (in DedupStore) Processed(ctx context.Context, eventID string) (bool, error) {
	err := in.Cache.ZScore(ctx, constant.WebhookProcessedKey, eventID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check processed event: %w", err)
	}
	return true, nil
}

func (in DedupStore) MarkProcessed(ctx context.Context, eventID string) error {
	pipe := in.Cache.TxPipeline()
	pipe.ZAdd(ctx, constant.WebhookProcessedKey, redis.Z{
		Score:  float64(in.now().UnixMilli()),
		Member: eventID,
	})
	pipe.ZRemRangeByRank(ctx, constant.WebhookProcessedKey, 0, -(in.window() + 1))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark processed event: %w", err)
	}
	return nil
}

// Lock claims an event for processing. False means another worker holds it.
func (in DedupStore) Lock(ctx context.Context, eventID string) (bool, error) {
	ttl := in.LockTTL
	if ttl <= 0 {
		ttl = constant.WebhookLockDefaultTTL
	}

	ok, err := in.Cache.SetNX(ctx, fmt.Sprintf(constant.WebhookEventLockKey, eventID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock event: %w", err)
	}
	return ok, nil
}

func (in DedupStore) Unlock(ctx context.Context, eventID string) error {
	if err := in.Cache.Del(ctx, fmt.Sprintf(constant.WebhookEventLockKey, eventID)).Err(); err != nil {
		return fmt.Errorf("unlock event: %w", err)
	}
	return nil
}

func (in DedupStore) window() int64 {
	if in.Window > 0 {
		return in.Window
	}
	return constant.WebhookDedupDefaultWindow
}

func (in DedupStore) now() time.Time {
	if in.TimeNow != nil {
		return in.TimeNow()
	}
	return time.Now()
}
