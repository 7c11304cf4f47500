// Package cache is the key-value cache consulted by the dashboard read paths.
// Redis is used when configured; otherwise an in-process TTL cache keeps the
// same contract for a single instance.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const KeyPrefix = "dashboard"

// TTLs of the dashboard read paths.
const (
	TTLOverview = 5 * time.Minute
	TTLMetrics  = 10 * time.Minute
)

type Cache interface {
	// Get decodes the cached JSON into dest and reports whether the key existed.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// InvalidatePattern removes every key matching a glob such as "dashboard:*".
	InvalidatePattern(ctx context.Context, pattern string) (int, error)
	Stats(ctx context.Context) Stats
}

type Stats struct {
	Backend string `json:"backend"`
	Keys    int64  `json:"keys"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
}

// Key builds "dashboard:<prefix>:<hash>" where hash is derived from params
// with sorted keys, so equal parameter sets map to the same key.
func Key(prefix string, params map[string]interface{}) string {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, k := range names {
		v, _ := json.Marshal(params[k])
		b.WriteString(k)
		b.WriteByte('=')
		b.Write(v)
		b.WriteByte(';')
	}
	sum := md5.Sum([]byte(b.String()))
	return fmt.Sprintf("%s:%s:%s", KeyPrefix, prefix, hex.EncodeToString(sum[:])[:8])
}

type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (c *counters) record(found bool) {
	if found {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
}

// RedisCache stores JSON values in Redis.
type RedisCache struct {
	rdb *redis.Client
	counters
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.record(false)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	c.record(true)
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// InvalidatePattern walks the keyspace with SCAN so large keyspaces do not
// block the server the way KEYS would.
func (c *RedisCache) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return removed, err
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (c *RedisCache) Stats(ctx context.Context) Stats {
	st := Stats{Backend: "redis", Hits: c.hits.Load(), Misses: c.misses.Load()}
	if n, err := c.rdb.DBSize(ctx).Result(); err == nil {
		st.Keys = n
	}
	return st
}

// MemoryCache is the single-process fallback.
type MemoryCache struct {
	store *gocache.Cache
	counters
}

func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	return &MemoryCache{store: gocache.New(defaultTTL, defaultTTL*2)}
}

// Values are stored as JSON so Get behaves exactly like the Redis backend.
func (c *MemoryCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	raw, found := c.store.Get(key)
	if !found {
		c.record(false)
		return false, nil
	}
	b, ok := raw.([]byte)
	if !ok {
		return false, fmt.Errorf("cache: unexpected value type %T for %q", raw, key)
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return false, err
	}
	c.record(true)
	return true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.store.Set(key, b, ttl)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.store.Delete(key)
	return nil
}

func (c *MemoryCache) InvalidatePattern(_ context.Context, pattern string) (int, error) {
	removed := 0
	for key := range c.store.Items() {
		ok, err := path.Match(pattern, key)
		if err != nil {
			return removed, err
		}
		if ok {
			c.store.Delete(key)
			removed++
		}
	}
	return removed, nil
}

func (c *MemoryCache) Stats(_ context.Context) Stats {
	return Stats{
		Backend: "memory",
		Keys:    int64(c.store.ItemCount()),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// New returns the Redis cache when rdb is set, the in-memory one otherwise.
func New(rdb *redis.Client, defaultTTL time.Duration) Cache {
	if rdb != nil {
		return NewRedisCache(rdb)
	}
	return NewMemoryCache(defaultTTL)
}
