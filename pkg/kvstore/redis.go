package kvstore

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront/pkg/redis"
)

type redisKV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	KVKey(key string) string
}

// RedisStore keeps entries in Redis under the sf:kv: namespace. Entries never expire.
type RedisStore struct {
	client redisKV
}

// NewRedisStore wraps the provided redis client.
func NewRedisStore(client redisKV) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.client.KVKey(key))
	if redis.IsNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageError("get", key, err)
	}
	return value, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.client.KVKey(key), value, 0); err != nil {
		return storageError("set", key, err)
	}
	return nil
}

func (r *RedisStore) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.client.KVKey(key)); err != nil {
		return storageError("remove", key, err)
	}
	return nil
}
