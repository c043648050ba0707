package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Cache provides typed caching utilities
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) key(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Enabled reports whether the cache talks to a server
func (c *Cache) Enabled() bool {
	return c.client != nil && c.client.Enabled()
}

// Get retrieves a cached value; a miss is (false, nil)
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL (0 = client default)
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = c.client.DefaultTTL()
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.key(key), data, ttl).Err()
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Redis().Del(ctx, c.key(key)).Err()
}

// GetOrSet retrieves from cache or calls fn to populate it
func (c *Cache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, fn func() (interface{}, error)) error {
	found, err := c.Get(ctx, key, dest)
	if err != nil {
		return err
	}
	if found {
		return nil
	}

	value, err := fn()
	if err != nil {
		return err
	}

	// 캐시 저장 실패는 무시 (조회 결과는 그대로 반환)
	_ = c.Set(ctx, key, value, ttl)

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Predefined TTLs
const (
	TTLShort      = 10 * time.Minute // run status
	TTLMarketData = 24 * time.Hour   // 일별 시세 (append-only)
	TTLMaster     = 7 * 24 * time.Hour
)

// RowsKey is the cache key of all rows on one trading date
func RowsKey(date string) string {
	return fmt.Sprintf("rows:%s", date)
}

// RowsForCodesKey is the cache key of a code subset on one trading date
func RowsForCodesKey(date string, codes []string) string {
	return fmt.Sprintf("rows:%s:%s", date, strings.Join(codes, ","))
}

// TradingDatesKey is the cache key of the distinct dates in a range
func TradingDatesKey(from, to string) string {
	return fmt.Sprintf("dates:%s:%s", from, to)
}

// FundamentalKey is the cache key of one indicator value
func FundamentalKey(code, period, indicator string) string {
	return fmt.Sprintf("fundamental:%s:%s:%s", code, period, indicator)
}
