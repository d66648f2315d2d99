package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheSetGet(t *testing.T) {
	c := New(Config{DefaultTTL: time.Minute, CleanupInterval: time.Minute})
	defer c.Close()

	c.Set("k", "v", 0)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	c := New(Config{DefaultTTL: time.Minute, CleanupInterval: time.Minute})
	defer c.Close()

	c.Set("k", "v", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok, "expired entry must not be returned")
}

func TestCacheMaxItems(t *testing.T) {
	evicted := make(chan string, 1)
	c := New(Config{
		DefaultTTL:      time.Minute,
		CleanupInterval: time.Minute,
		MaxItems:        2,
		OnEviction:      func(key string, _ any) { evicted <- key },
	})
	defer c.Close()

	c.Set("a", 1, time.Second)
	c.Set("b", 2, time.Minute)
	c.Set("c", 3, time.Minute)

	assert.Equal(t, 2, c.Size())
	select {
	case key := <-evicted:
		assert.Equal(t, "a", key, "entry closest to expiry should be evicted")
	default:
		t.Fatal("expected an eviction")
	}
}

func TestCacheDelete(t *testing.T) {
	c := New(Config{DefaultTTL: time.Minute, CleanupInterval: time.Minute})
	defer c.Close()

	c.Set("k", "v", 0)
	c.Delete("k")
	_, ok := c.Get("k")
	assert.False(t, ok)
}
