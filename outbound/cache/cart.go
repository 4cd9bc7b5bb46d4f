package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"workshop-enrollment/common"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/model"

	"github.com/redis/go-redis/v9"
)

// CartStore keeps carts as JSON documents with a sliding expiry.
type CartStore struct {
	Cache *redis.Client
	TTL   time.Duration
}

func (in CartStore) Get(ctx context.Context, key string) (model.Cart, bool, error) {
	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	raw, err := in.Cache.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Cart{Key: key}, false, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to get cart", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return model.Cart{}, false, fmt.Errorf("get cart: %w", err)
	}

	var cart model.Cart
	if err = json.Unmarshal(raw, &cart); err != nil {
		// A corrupt document is treated as an empty cart and overwritten on the next save.
		slog.WarnContext(ctx, "dropping unreadable cart", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return model.Cart{Key: key}, false, nil
	}
	cart.Key = key

	if err = in.Cache.Expire(ctx, key, in.ttl()).Err(); err != nil {
		slog.WarnContext(ctx, "failed to refresh cart expiry", traceIdAttr, slog.Any(constant.LogFieldErr, err))
	}

	return cart, true, nil
}

func (in CartStore) Save(ctx context.Context, cart model.Cart) error {
	if len(cart.Items) == 0 {
		return in.Delete(ctx, cart.Key)
	}

	raw, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	if err = in.Cache.Set(ctx, cart.Key, raw, in.ttl()).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to save cart", common.ExtractTraceIDFromCtx(ctx), slog.Any(constant.LogFieldErr, err))
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (in CartStore) Delete(ctx context.Context, key string) error {
	if err := in.Cache.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

func (in CartStore) ttl() time.Duration {
	if in.TTL > 0 {
		return in.TTL
	}
	return constant.CartDefaultTTL
}
