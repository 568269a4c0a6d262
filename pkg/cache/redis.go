package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the subset of pkg/redis.Client the cache needs.
type RedisStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CacheKey(scope, id string) string
}

// Redis stores entries under a namespaced scope in redis.
type Redis struct {
	store RedisStore
	scope string
}

// NewRedis builds a redis-backed cache.
func NewRedis(store RedisStore, scope string) (*Redis, error) {
	if store == nil {
		return nil, errors.New("redis store required")
	}
	if scope == "" {
		return nil, errors.New("cache scope required")
	}
	return &Redis{store: store, scope: scope}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	value, err := r.store.Get(ctx, r.store.CacheKey(r.scope, key))
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("cache get: %w", err)
	}
	return value, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.store.Set(ctx, r.store.CacheKey(r.scope, key), value, ttl); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.store.Del(ctx, r.store.CacheKey(r.scope, key)); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}
