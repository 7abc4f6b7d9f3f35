package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// NewCache 按 Type 创建缓存，redis 时返回 gocache + redis 两级缓存
func NewCache(config Config) (Cache, error) {
	switch strings.ToLower(config.Type) {
	case "", "gocache":
		return NewGoCache(config.Local), nil
	case "local", "lru":
		return NewLocalCache(config.Local), nil
	case "redis":
		remote, err := NewRedisCache(config.Redis)
		if err != nil {
			return nil, err
		}
		return NewLayeredCache(NewGoCache(config.Local), remote, config.LocalExpiration), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
}

// layeredCache 先读本地，未命中再读远端并回填
type layeredCache struct {
	local    Cache
	remote   Cache
	localTTL time.Duration
}

// NewLayeredCache localTTL 为本地层的最长保留时间，<= 0 时为 1 分钟
func NewLayeredCache(local, remote Cache, localTTL time.Duration) Cache {
	if localTTL <= 0 {
		localTTL = time.Minute
	}
	return &layeredCache{local: local, remote: remote, localTTL: localTTL}
}

func (l *layeredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := l.local.Get(ctx, key); ok {
		return v, true
	}
	v, ok := l.remote.Get(ctx, key)
	if ok {
		_ = l.local.Set(ctx, key, v, l.localTTL)
	}
	return v, ok
}

func (l *layeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := l.remote.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return l.local.Set(ctx, key, value, l.capLocal(ttl))
}

func (l *layeredCache) capLocal(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > l.localTTL {
		return l.localTTL
	}
	return ttl
}

// Delete 两层都删，本地删除总是先执行
func (l *layeredCache) Delete(ctx context.Context, key string) error {
	_ = l.local.Delete(ctx, key)
	return l.remote.Delete(ctx, key)
}

func (l *layeredCache) Close() error {
	localErr := l.local.Close()
	if err := l.remote.Close(); err != nil {
		return err
	}
	return localErr
}
