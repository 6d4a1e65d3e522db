package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"aiTradeEngine/internal/ports"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLock_MutualExclusion(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Lock(ctx, "portfolio:1", time.Second))
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			assert.NoError(t, l.Unlock(ctx, "portfolio:1"))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestLocalLock_ContextAndKeys(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	require.NoError(t, l.Lock(ctx, "portfolio:1", 0))
	// Distinct keys do not block each other.
	require.NoError(t, l.Lock(ctx, "portfolio:2", 0))

	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := l.Lock(timeoutCtx, "portfolio:1", 0)
	assert.ErrorIs(t, err, ports.ErrLockNotAcquired)

	require.NoError(t, l.Unlock(ctx, "portfolio:1"))
	assert.Error(t, l.Unlock(ctx, "portfolio:1"))
}

func newRedisLock(t *testing.T) (*RedisLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewRedisLock(client, "engine:lock:")
	l.pollInterval = 5 * time.Millisecond
	t.Cleanup(func() { _ = l.Close() })
	return l, mr
}

func TestRedisLock_LockUnlock(t *testing.T) {
	l, mr := newRedisLock(t)
	ctx := context.Background()

	require.NoError(t, l.Lock(ctx, "portfolio:1", 5*time.Second))
	assert.True(t, mr.Exists("engine:lock:portfolio:1"))

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	other := NewRedisLock(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "engine:lock:")
	defer other.Close()
	err := other.Lock(timeoutCtx, "portfolio:1", 5*time.Second)
	assert.ErrorIs(t, err, ports.ErrLockNotAcquired)

	require.NoError(t, l.Unlock(ctx, "portfolio:1"))
	assert.False(t, mr.Exists("engine:lock:portfolio:1"))
	assert.Error(t, l.Unlock(ctx, "portfolio:1"))
}

func TestRedisLock_ExpiredLockIsNotStolenBack(t *testing.T) {
	l, mr := newRedisLock(t)
	ctx := context.Background()

	require.NoError(t, l.Lock(ctx, "portfolio:9", time.Second))
	mr.FastForward(2 * time.Second)

	other := NewRedisLock(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "engine:lock:")
	defer other.Close()
	require.NoError(t, other.Lock(ctx, "portfolio:9", 5*time.Second))

	// The first holder's token no longer matches, so its unlock leaves the new holder in place.
	assert.Error(t, l.Unlock(ctx, "portfolio:9"))
	assert.True(t, mr.Exists("engine:lock:portfolio:9"))
}
