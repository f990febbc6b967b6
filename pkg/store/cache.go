package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const imageCachePrefix = "imgcache:"

// RedisImageCache は取得済みの参照画像を Redis に保存する ImageCacher です。
// []byte と string だけを保存でき、Get は常に []byte を返します。
type RedisImageCache struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisImageCache は RedisImageCache を生成します。
func NewRedisImageCache(client *redis.Client) *RedisImageCache {
	return &RedisImageCache{client: client, timeout: 3 * time.Second}
}

func (c *RedisImageCache) Get(key string) (any, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	data, err := c.client.Get(ctx, imageCachePrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("画像キャッシュの取得に失敗しました", "key", key, "error", err)
		}
		return nil, false
	}
	return data, true
}

func (c *RedisImageCache) Set(key string, value any, d time.Duration) {
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		slog.Warn("画像キャッシュに保存できない型です", "key", key)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.client.Set(ctx, imageCachePrefix+key, data, d).Err(); err != nil {
		slog.Warn("画像キャッシュの保存に失敗しました", "key", key, "error", err)
	}
}

type memoryEntry struct {
	value   any
	expires time.Time
}

// MemoryImageCache は Redis がない環境向けのプロセス内 ImageCacher です。
type MemoryImageCache struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[string]memoryEntry
}

// NewMemoryImageCache は空の MemoryImageCache を返します。
func NewMemoryImageCache() *MemoryImageCache {
	return &MemoryImageCache{now: time.Now, items: make(map[string]memoryEntry)}
}

func (c *MemoryImageCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		delete(c.items, key)
		return nil, false
	}
	return e.value, true
}

func (c *MemoryImageCache) Set(key string, value any, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{value: value}
	if d > 0 {
		e.expires = c.now().Add(d)
	}
	c.items[key] = e
}
