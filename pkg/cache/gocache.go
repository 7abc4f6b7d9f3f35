package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type goCacheStore struct {
	c *gocache.Cache
}

// NewGoCache 基于 go-cache 的进程内缓存，按 CleanupInterval 清理过期项
func NewGoCache(config LocalConfig) Cache {
	return &goCacheStore{c: gocache.New(config.DefaultExpiration, config.CleanupInterval)}
}

func (g *goCacheStore) Get(ctx context.Context, key string) ([]byte, bool) {
	v, ok := g.c.Get(key)
	if !ok {
		return nil, false
	}
	raw, ok := v.([]byte)
	return raw, ok
}

func (g *goCacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	// 复制一份，避免调用方之后修改切片
	g.c.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

func (g *goCacheStore) Delete(ctx context.Context, key string) error {
	g.c.Delete(key)
	return nil
}

func (g *goCacheStore) Close() error {
	g.c.Flush()
	return nil
}
