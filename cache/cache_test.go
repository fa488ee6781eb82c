package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/meshhub/cache"
)

func TestResponseCacheHitMiss(t *testing.T) {
	c := cache.NewResponseCache(10, time.Minute)
	key := cache.ResponseKey("weather paris", "gpt", 0.2, 256)

	_, ok := c.Get(key)
	require.False(t, ok)

	c.Put(key, "18 degrees and sunny")
	value, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "18 degrees and sunny", value)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestResponseCacheExpiryIsAMiss(t *testing.T) {
	c := cache.NewResponseCache(10, 10*time.Millisecond)
	key := cache.ResponseKey("p", "m", 0, 1)
	c.Put(key, "v")

	time.Sleep(50 * time.Millisecond)
	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestResponseCacheSizeNeverExceedsMaxSize(t *testing.T) {
	c := cache.NewResponseCache(3, time.Minute)
	for i := 0; i < 10; i++ {
		key := cache.ResponseKey("prompt", "m", 0, i)
		c.Put(key, "v")
	}
	assert.LessOrEqual(t, c.Stats().Size, 3)
}

func TestResponseKeyIsStableAndDistinguishesParameters(t *testing.T) {
	k1 := cache.ResponseKey("weather paris", "gpt", 0.2, 256)
	k2 := cache.ResponseKey("weather paris", "gpt", 0.2, 256)
	k3 := cache.ResponseKey("weather paris", "gpt", 0.7, 256)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestIntentCacheRoundTrip(t *testing.T) {
	c := cache.NewIntentCache(10, time.Minute)
	intent := cache.CachedIntent{
		Intent:      "weather.current",
		TargetAgent: "weather-agent",
		Confidence:  0.92,
		Parameters:  map[string]any{"location": "Paris,FR"},
	}
	c.Put("weather in paris", intent)

	got, ok := c.Get("weather in paris")
	require.True(t, ok)
	assert.Equal(t, intent, got)
}
