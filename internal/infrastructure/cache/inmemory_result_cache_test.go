package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryResultCache(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryResultCache(0)
	defer c.Close()

	now := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	t.Run("miss", func(t *testing.T) {
		data, ok, err := c.Get(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, data)
	})

	t.Run("hit returns a copy", func(t *testing.T) {
		payload := []byte(`{"total":"50.00"}`)
		require.NoError(t, c.Set(ctx, "k1", payload, time.Minute))
		payload[0] = 'x'

		data, ok, err := c.Get(ctx, "k1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, `{"total":"50.00"}`, string(data))

		data[0] = 'y'
		again, _, _ := c.Get(ctx, "k1")
		assert.Equal(t, byte('{'), again[0])
	})

	t.Run("expired entries are not returned", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "short", []byte("v"), time.Second))
		now = now.Add(2 * time.Second)

		_, ok, err := c.Get(ctx, "short")
		require.NoError(t, err)
		assert.False(t, ok)

		c.cleanup()
		_, ok, _ = c.Get(ctx, "k1")
		assert.True(t, ok)
		assert.Equal(t, 1, c.Size())
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "gone", []byte("v"), time.Minute))
		require.NoError(t, c.Delete(ctx, "gone"))
		_, ok, _ := c.Get(ctx, "gone")
		assert.False(t, ok)
	})
}

func TestInMemoryResultCache_DeletePrefix(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryResultCache(0)
	defer c.Close()

	for _, key := range []string{"ub:calc:a:1", "ub:calc:a:2", "ub:calc:b:1", "ub:gyv:x"} {
		require.NoError(t, c.Set(ctx, key, []byte("v"), time.Minute))
	}

	n, err := c.DeletePrefix(ctx, "ub:calc:a:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.DeletePrefix(ctx, "ub:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, c.Size())
}

func TestInMemoryResultCache_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryResultCache(time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, "shared", []byte("v"), time.Minute)
				_, _, _ = c.Get(ctx, "shared")
			}
		}()
	}
	wg.Wait()

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, c.Size())
}

func TestEscapePattern(t *testing.T) {
	assert.Equal(t, `ub:calc:`, escapePattern("ub:calc:"))
	assert.Equal(t, `a\*b\?\[c\]`, escapePattern("a*b?[c]"))
}
