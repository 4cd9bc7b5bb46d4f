package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
	"workshop-enrollment/common/constant"

	"github.com/redis/go-redis/v9"
)

// ClaimBindings maps an owner and workshop to the waitlist entry they redeemed.
type ClaimBindings struct {
	Cache *redis.Client
}

func (in ClaimBindings) Bind(ctx context.Context, ownerKey string, workshopID, entryID int64, ttl time.Duration) error {
	key := fmt.Sprintf(constant.ClaimBindingKey, ownerKey, workshopID)
	if err := in.Cache.Set(ctx, key, entryID, ttl).Err(); err != nil {
		return fmt.Errorf("bind claim: %w", err)
	}
	return nil
}

func (in ClaimBindings) Lookup(ctx context.Context, ownerKey string, workshopID int64) (int64, bool, error) {
	raw, err := in.Cache.Get(ctx, fmt.Sprintf(constant.ClaimBindingKey, ownerKey, workshopID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup claim: %w", err)
	}

	entryID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return entryID, true, nil
}

func (in ClaimBindings) Release(ctx context.Context, ownerKey string, workshopID int64) error {
	if err := in.Cache.Del(ctx, fmt.Sprintf(constant.ClaimBindingKey, ownerKey, workshopID)).Err(); err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}
