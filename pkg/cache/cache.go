package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache 字节缓存，值的编码由调用方负责
type Cache interface {
	// Get 未命中或已过期时返回 false
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set ttl <= 0 时使用实现的默认过期时间
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	Close() error
}

// Config 缓存配置
type Config struct {
	// gocache、local 或 redis；redis 时自动在前面加一层 gocache
	Type  string
	Redis RedisConfig
	Local LocalConfig

	// 本地一级缓存的最长保留时间，只对 redis 生效
	LocalExpiration time.Duration
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// 键前缀，例如 "postcard:"
	Prefix string
}

// LocalConfig 本地缓存配置
type LocalConfig struct {
	MaxSize           int
	DefaultExpiration time.Duration
	CleanupInterval   time.Duration
}

// GetJSON 读取并解码，解码失败视为未命中
func GetJSON[T any](ctx context.Context, c Cache, key string) (*T, bool) {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return &v, true
}

// SetJSON 编码后写入
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, raw, ttl)
}
