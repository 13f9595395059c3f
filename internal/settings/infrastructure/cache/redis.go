package cache

import (
	"context"
	"time"

	"github.com/wyfcoding/commissionhub/internal/settings/domain"
	"github.com/wyfcoding/commissionhub/pkg/cache"
)

const keyPrefix = "commission:settings:"

// RedisCache 多实例共享的设置缓存
type RedisCache struct {
	rc *cache.RedisCache
}

func NewRedisCache(rc *cache.RedisCache) domain.Cache {
	return &RedisCache{rc: rc}
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	return r.rc.Get(ctx, keyPrefix+key)
}

func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rc.Set(ctx, keyPrefix+key, value, ttl)
}

func (r *RedisCache) Add(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.rc.SetNX(ctx, keyPrefix+key, value, ttl)
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = keyPrefix + k
	}
	return r.rc.Delete(ctx, prefixed...)
}

func (r *RedisCache) Clear(ctx context.Context) error {
	return r.rc.DeletePrefix(ctx, keyPrefix)
}
