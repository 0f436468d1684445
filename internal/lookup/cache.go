package lookup

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakif/moviecatalog/internal/model"
)

// Cache stores raw lookup payloads. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NopCache never stores anything. Used when Redis is not configured.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (NopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }

// RedisCache is a Cache backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// NewRedisClient connects to addr and pings it with a short timeout.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return client, nil
}

// CachedClient decorates a Client with a read-through cache. Cache errors
// are logged and the upstream is called as if the cache were empty. Errors
// from upstream, including NotFound, are never cached.
type CachedClient struct {
	next   Client
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

var _ Client = (*CachedClient)(nil)

func NewCachedClient(next Client, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedClient {
	return &CachedClient{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (c *CachedClient) Search(ctx context.Context, title string) ([]model.SearchResult, error) {
	key := searchKey(title)

	var cached []model.SearchResult
	if c.load(ctx, key, &cached) {
		return cached, nil
	}

	results, err := c.next.Search(ctx, title)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, results)
	return results, nil
}

func (c *CachedClient) Details(ctx context.Context, externalID string) (*model.SearchResult, error) {
	key := "lookup:detail:" + externalID

	var cached model.SearchResult
	if c.load(ctx, key, &cached) {
		return &cached, nil
	}

	d, err := c.next.Details(ctx, externalID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, d)
	return d, nil
}

func (c *CachedClient) load(ctx context.Context, key string, out any) bool {
	b, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("lookup cache read failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(b, out); err != nil {
		c.logger.Warn("lookup cache entry unreadable", "key", key, "error", err)
		return false
	}
	return true
}

func (c *CachedClient) store(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
		c.logger.Warn("lookup cache write failed", "key", key, "error", err)
	}
}

// searchKey hashes the normalised title so arbitrary user input never ends
// up in a Redis key.
func searchKey(title string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(title), " "))
	sum := sha1.Sum([]byte(norm))
	return fmt.Sprintf("lookup:search:%x", sum[:])
}
