package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/medrx/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestInMemoryDedupStore_Claim(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)}
	store := NewInMemoryDedupStoreWithClock(clock)
	defer store.Close()
	ctx := context.Background()

	t.Run("first claim wins", func(t *testing.T) {
		ok, err := store.Claim(ctx, "lowstock:a:b", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.Claim(ctx, "lowstock:a:b", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("claim can be taken again after expiry", func(t *testing.T) {
		ok, err := store.Claim(ctx, "lowstock:c:d", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		clock.Advance(time.Minute)

		ok, err = store.Claim(ctx, "lowstock:c:d", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("release frees the key", func(t *testing.T) {
		ok, err := store.Claim(ctx, "lowstock:e:f", time.Hour)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, store.Release(ctx, "lowstock:e:f"))

		ok, err = store.Claim(ctx, "lowstock:e:f", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("cleanup drops expired claims", func(t *testing.T) {
		before := store.Size()
		require.Greater(t, before, 0)
		clock.Advance(2 * time.Hour)
		store.cleanup()
		assert.Equal(t, 0, store.Size())
	})
}

func TestInMemoryDedupStore_ConcurrentClaims(t *testing.T) {
	store := NewInMemoryDedupStore()
	defer store.Close()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Claim(context.Background(), "lowstock:x:y", time.Hour)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestInMemoryDedupStore_CloseIsIdempotent(t *testing.T) {
	store := NewInMemoryDedupStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestRedisDedupStore_WrapsErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	store := NewRedisDedupStoreWithClient(client, "")
	defer store.Close()

	_, err := store.Claim(context.Background(), "lowstock:a:b", time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to claim")

	err = store.Release(context.Background(), "lowstock:a:b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to release")
}

func TestDedupStoreFactory(t *testing.T) {
	t.Run("uses in-memory store when redis is disabled", func(t *testing.T) {
		f := NewDedupStoreFactory(config.RedisConfig{Enabled: false}, WithLogger(zaptest.NewLogger(t)))
		store, err := f.CreateStore(context.Background())
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryDedupStore{}, store)
	})

	t.Run("falls back when redis is unreachable", func(t *testing.T) {
		f := NewDedupStoreFactory(config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1})
		store, err := f.CreateStore(context.Background())
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryDedupStore{}, store)
	})

	t.Run("fails without fallback", func(t *testing.T) {
		f := NewDedupStoreFactory(config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}, WithInMemoryFallback(false))
		_, err := f.CreateStore(context.Background())
		assert.Error(t, err)
	})
}
