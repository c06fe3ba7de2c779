package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/digital-inventory/internal/core/domain"
	"github.com/rl1809/digital-inventory/internal/port"
)

const (
	productKeyPrefix  = "product:"
	linkLockPrefix    = "lock:product-link:"
	productTTL        = 10 * time.Minute
	idempotencyKeyTTL = 24 * time.Hour
	linkLockTTL       = 5 * time.Second
)

type RedisAdapter struct {
	client *redis.Client
	locker *redislock.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{
		client: client,
		locker: redislock.New(client),
	}
}

func (r *RedisAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	data, err := r.client.Get(ctx, productKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var p domain.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode cached product %s: %w", id, err)
	}
	return &p, nil
}

func (r *RedisAdapter) SetProduct(ctx context.Context, product domain.Product) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("encode product %s: %w", product.ID, err)
	}
	return r.client.Set(ctx, productKeyPrefix+product.ID, data, productTTL).Err()
}

func (r *RedisAdapter) InvalidateProduct(ctx context.Context, id string) error {
	return r.client.Del(ctx, productKeyPrefix+id).Err()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisAdapter) LockProduct(ctx context.Context, productID string) (func(context.Context) error, error) {
	lock, err := r.locker.Obtain(ctx, linkLockPrefix+productID, linkLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 100),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, port.ErrLockTimeout
	}
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return nil
		}
		return err
	}, nil
}
