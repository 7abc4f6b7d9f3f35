package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// lruStore 容量受限的本地缓存，超过 MaxSize 时淘汰最久未用的项
type lruStore struct {
	lru *expirable.LRU[string, []byte]

	// expirable.LRU 只有统一 TTL，更短的单项 TTL 另外记录
	mu       sync.Mutex
	deadline map[string]time.Time
}

func NewLocalCache(config LocalConfig) Cache {
	size := config.MaxSize
	if size <= 0 {
		size = 1000
	}
	s := &lruStore{deadline: make(map[string]time.Time)}
	s.lru = expirable.NewLRU[string, []byte](size, func(key string, _ []byte) {
		s.mu.Lock()
		delete(s.deadline, key)
		s.mu.Unlock()
	}, config.DefaultExpiration)
	return s
}

func (s *lruStore) Get(ctx context.Context, key string) ([]byte, bool) {
	v, ok := s.lru.Get(key)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	exp, has := s.deadline[key]
	s.mu.Unlock()
	if has && time.Now().After(exp) {
		s.lru.Remove(key)
		return nil, false
	}
	return v, true
}

func (s *lruStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.lru.Add(key, append([]byte(nil), value...))
	s.mu.Lock()
	if ttl > 0 {
		s.deadline[key] = time.Now().Add(ttl)
	} else {
		delete(s.deadline, key)
	}
	s.mu.Unlock()
	return nil
}

func (s *lruStore) Delete(ctx context.Context, key string) error {
	s.lru.Remove(key)
	return nil
}

func (s *lruStore) Close() error {
	s.lru.Purge()
	return nil
}
