package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"formdesk/util/goroutine"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// kvHarness lets the same behavioural tests run against every driver.
type kvHarness struct {
	store   KVStore
	advance func(d time.Duration)
}

func newRedisHarness(t *testing.T) kvHarness {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := NewRedisStore(context.Background(), RedisConfig{Addr: mr.Addr()}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return kvHarness{store: store, advance: mr.FastForward}
}

func newMemoryHarness(t *testing.T) kvHarness {
	t.Helper()
	store := NewMemoryStore(time.Hour)
	t.Cleanup(func() { _ = store.Close() })

	var mu sync.Mutex
	current := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	return kvHarness{store: store, advance: func(d time.Duration) {
		mu.Lock()
		current = current.Add(d)
		mu.Unlock()
	}}
}

func forEachDriver(t *testing.T, fn func(t *testing.T, h kvHarness)) {
	t.Run(DriverRedis, func(t *testing.T) { fn(t, newRedisHarness(t)) })
	t.Run(DriverMemory, func(t *testing.T) { fn(t, newMemoryHarness(t)) })
}

func TestKVStore_SetGet(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h kvHarness) {
		ctx := context.Background()
		require.NoError(t, h.store.Set(ctx, "admin_session:abc", []byte(`{"username":"admin"}`), time.Minute))

		got, err := h.store.Get(ctx, "admin_session:abc")
		require.NoError(t, err)
		assert.Equal(t, `{"username":"admin"}`, string(got))

		ok, err := h.store.Exists(ctx, "admin_session:abc")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestKVStore_GetMissing(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h kvHarness) {
		_, err := h.store.Get(context.Background(), "missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.False(t, errors.Is(err, ErrStoreUnavailable))

		var storeErr *Error
		require.True(t, errors.As(err, &storeErr))
		assert.Equal(t, "get", storeErr.Op)
	})
}

func TestKVStore_Expiry(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h kvHarness) {
		ctx := context.Background()
		require.NoError(t, h.store.Set(ctx, "csrf:s:t", []byte("1"), 900*time.Second))

		ttl, err := h.store.TTL(ctx, "csrf:s:t")
		require.NoError(t, err)
		assert.InDelta(t, 900, ttl.Seconds(), 1)

		h.advance(899 * time.Second)
		ok, err := h.store.Exists(ctx, "csrf:s:t")
		require.NoError(t, err)
		assert.True(t, ok)

		h.advance(2 * time.Second)
		ok, err = h.store.Exists(ctx, "csrf:s:t")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = h.store.TTL(ctx, "csrf:s:t")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestKVStore_NoExpiry(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h kvHarness) {
		ctx := context.Background()
		require.NoError(t, h.store.Set(ctx, "k", []byte("v"), 0))

		ttl, err := h.store.TTL(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, NoExpiry, ttl)
	})
}

func TestKVStore_Replace(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h kvHarness) {
		ctx := context.Background()

		ok, err := h.store.Replace(ctx, "admin_session:gone", []byte("v"), time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
		exists, err := h.store.Exists(ctx, "admin_session:gone")
		require.NoError(t, err)
		assert.False(t, exists, "Replace must not create keys")

		require.NoError(t, h.store.Set(ctx, "admin_session:live", []byte("v1"), 10*time.Second))
		h.advance(5 * time.Second)
		ok, err = h.store.Replace(ctx, "admin_session:live", []byte("v2"), time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := h.store.Get(ctx, "admin_session:live")
		require.NoError(t, err)
		assert.Equal(t, "v2", string(got))
		ttl, err := h.store.TTL(ctx, "admin_session:live")
		require.NoError(t, err)
		assert.InDelta(t, 3600, ttl.Seconds(), 1)
	})
}

func TestKVStore_Delete(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h kvHarness) {
		ctx := context.Background()
		require.NoError(t, h.store.Set(ctx, "a", []byte("1"), time.Minute))
		require.NoError(t, h.store.Set(ctx, "b", []byte("2"), time.Minute))

		require.NoError(t, h.store.Delete(ctx, "a", "b", "never-existed"))
		require.NoError(t, h.store.Delete(ctx))

		for _, k := range []string{"a", "b"} {
			ok, err := h.store.Exists(ctx, k)
			require.NoError(t, err)
			assert.False(t, ok, k)
		}
	})
}

func TestKVStore_ConsumeOnce(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h kvHarness) {
		ctx := context.Background()
		require.NoError(t, h.store.Set(ctx, "csrf:sess-1:abc123", []byte("1"), time.Minute))

		ok, err := h.store.Consume(ctx, "csrf:sess-1:abc123")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = h.store.Consume(ctx, "csrf:sess-1:abc123")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestKVStore_ConsumeConcurrent(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h kvHarness) {
		ctx := context.Background()
		require.NoError(t, h.store.Set(ctx, "csrf:s:race", []byte("1"), time.Minute))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := h.store.Consume(ctx, "csrf:s:race")
				if err == nil && ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}

func TestKVStore_IncrExpire(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h kvHarness) {
		ctx := context.Background()
		for want := int64(1); want <= 3; want++ {
			n, err := h.store.Incr(ctx, "login_attempts:admin")
			require.NoError(t, err)
			assert.Equal(t, want, n)
		}

		ttl, err := h.store.TTL(ctx, "login_attempts:admin")
		require.NoError(t, err)
		assert.Equal(t, NoExpiry, ttl, "INCR must not set an expiry")

		require.NoError(t, h.store.Expire(ctx, "login_attempts:admin", 900*time.Second))
		n, err := h.store.Incr(ctx, "login_attempts:admin")
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)

		ttl, err = h.store.TTL(ctx, "login_attempts:admin")
		require.NoError(t, err)
		assert.InDelta(t, 900, ttl.Seconds(), 1, "INCR keeps the existing expiry")

		h.advance(901 * time.Second)
		n, err = h.store.Incr(ctx, "login_attempts:admin")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestKVStore_IncrNonInteger(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h kvHarness) {
		ctx := context.Background()
		require.NoError(t, h.store.Set(ctx, "k", []byte("not-a-number"), time.Minute))

		_, err := h.store.Incr(ctx, "k")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})
}

func TestKVStore_ExpireMissingKey(t *testing.T) {
	forEachDriver(t, func(t *testing.T, h kvHarness) {
		ctx := context.Background()
		require.NoError(t, h.store.Expire(ctx, "missing", time.Minute))

		ok, err := h.store.Exists(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	store, err := NewRedisStore(context.Background(), RedisConfig{Addr: mr.Addr()}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer store.Close()

	mr.Close()

	_, err = store.Get(context.Background(), "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Ping(context.Background()), ErrStoreUnavailable)
}

func TestNewRedisStore_URL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	store, err := NewRedisStore(context.Background(), RedisConfig{URL: "redis://" + mr.Addr() + "/0"}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, DriverRedis, store.Driver())

	_, err = NewRedisStore(context.Background(), RedisConfig{URL: "http://bad"}, zaptest.NewLogger(t).Sugar())
	assert.Error(t, err)

	_, err = NewRedisStore(context.Background(), RedisConfig{}, zaptest.NewLogger(t).Sugar())
	assert.Error(t, err)
}

func TestNewKVStore_Drivers(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	logger := zaptest.NewLogger(t).Sugar()

	store, err := NewKVStore(context.Background(), KVConfig{Redis: RedisConfig{Addr: mr.Addr()}}, logger)
	require.NoError(t, err)
	assert.Equal(t, DriverRedis, store.Driver(), "redis is the default driver")
	require.NoError(t, store.Close())

	store, err = NewKVStore(context.Background(), KVConfig{Driver: DriverMemory}, logger)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, store.Driver())
	require.NoError(t, store.Close())

	_, err = NewKVStore(context.Background(), KVConfig{Driver: "etcd"}, logger)
	assert.Error(t, err)
}

func TestMemoryStore_CleanupExpired(t *testing.T) {
	h := newMemoryHarness(t)
	mem := h.store.(*MemoryStore)
	ctx := context.Background()

	require.NoError(t, mem.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, mem.Set(ctx, "long", []byte("1"), time.Hour))
	h.advance(2 * time.Second)

	mem.cleanupExpired()

	mem.mu.Lock()
	_, hasShort := mem.items["short"]
	_, hasLong := mem.items["long"]
	mem.mu.Unlock()
	assert.False(t, hasShort)
	assert.True(t, hasLong)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	mem := NewMemoryStore(time.Hour)
	defer mem.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, mem.Set(ctx, "k", []byte("v"), 0), ErrStoreUnavailable)
	assert.Error(t, mem.Ping(ctx))
	// Close is idempotent.
	assert.NoError(t, mem.Close())
}

func TestMemoryStore_CloseStopsSweeper(t *testing.T) {
	goroutine.AssertNoLeaks(t)

	mem := NewMemoryStore(10 * time.Millisecond)
	require.NoError(t, mem.Set(context.Background(), "k", []byte("v"), time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, mem.Close())
}
