package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ashare-rotation/pkg/config"
)

func disabledClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	return client
}

func TestNew_Disabled(t *testing.T) {
	client := disabledClient(t)
	assert.False(t, client.Enabled())
	assert.Equal(t, TTLMarketData, client.DefaultTTL())
	assert.NoError(t, client.Close())
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(disabledClient(t), "test")

	allowed, remaining, err := limiter.Allow(context.Background(), BacktestSubmitLimit.For("127.0.0.1"))
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, BacktestSubmitLimit.Limit, remaining)
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(disabledClient(t), "test")
	ctx := context.Background()

	var result string
	found, err := cache.Get(ctx, "key", &result)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, cache.Set(ctx, "key", "value", 0))

	var filled []int
	err = cache.GetOrSet(ctx, "numbers", &filled, time.Minute, func() (interface{}, error) {
		return []int{1, 2, 3}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, filled)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "rows:2024-01-31", RowsKey("2024-01-31"))
	assert.Equal(t, "rows:2024-01-31:600000,000001", RowsForCodesKey("2024-01-31", []string{"600000", "000001"}))
	assert.Equal(t, "dates:2024-01-01:2024-12-31", TradingDatesKey("2024-01-01", "2024-12-31"))
	assert.Equal(t, "fundamental:600000:20231231:基本每股收益", FundamentalKey("600000", "20231231", "基本每股收益"))
	assert.Equal(t, "backtest:10.0.0.1", BacktestSubmitLimit.For("10.0.0.1").Key)
}

func TestCache_RoundTrip(t *testing.T) {
	if os.Getenv("REDIS_TEST_ADDR") == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping integration test")
	}
	host, port := splitAddr(os.Getenv("REDIS_TEST_ADDR"))

	client, err := New(&config.Config{Redis: config.RedisConfig{Enabled: true, Host: host, Port: port}})
	require.NoError(t, err)
	defer client.Close()

	cache := NewCache(client, "ashare-test")
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", map[string]float64{"close": 5.5}, time.Minute))
	var got map[string]float64
	found, err := cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 5.5, got["close"])
	require.NoError(t, cache.Delete(ctx, "k"))
}

func splitAddr(addr string) (string, string) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:]
		}
	}
	return addr, "6379"
}
