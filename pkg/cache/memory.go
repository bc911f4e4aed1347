package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryItem struct {
	data     []byte
	expireAt time.Time
}

// MemoryCache implements Service using an in-process LRU with per-key expiry.
type MemoryCache struct {
	items      *lru.Cache[string, memoryItem]
	defaultTTL time.Duration
	now        func() time.Time
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:    1000,
		DefaultTTL: 7 * 24 * time.Hour,
		Now:        time.Now,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	// size is always positive so New cannot fail
	items, _ := lru.New[string, memoryItem](cfg.MaxSize)
	return &MemoryCache{
		items:      items,
		defaultTTL: cfg.DefaultTTL,
		now:        cfg.Now,
	}
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memory cache marshal %s: %w", key, err)
	}
	if expiration <= 0 {
		expiration = mc.defaultTTL
	}
	mc.items.Add(key, memoryItem{data: data, expireAt: mc.now().Add(expiration)})
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	item, ok := mc.items.Get(key)
	if !ok {
		return ErrCacheMiss
	}
	if mc.now().After(item.expireAt) {
		mc.items.Remove(key)
		return ErrCacheMiss
	}
	return json.Unmarshal(item.data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		mc.items.Remove(key)
	}
	return nil
}

// Len returns the number of stored keys, expired ones included.
func (mc *MemoryCache) Len() int { return mc.items.Len() }

func (mc *MemoryCache) Close() error {
	mc.items.Purge()
	return nil
}
