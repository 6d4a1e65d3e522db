// Package lock provides per-key mutual exclusion for portfolio mutations.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"aiTradeEngine/internal/ports"

	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only when it still holds our token.
var unlockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLock is a distributed lock built on SET NX with per-acquisition tokens.
type RedisLock struct {
	client       redis.UniversalClient
	prefix       string
	pollInterval time.Duration

	mu     sync.Mutex
	tokens map[string]string // key -> token held by this process
}

var _ ports.Locker = (*RedisLock)(nil)

// NewRedisLock creates a Redis-backed locker. Keys are stored as prefix+key.
func NewRedisLock(client redis.UniversalClient, prefix string) *RedisLock {
	return &RedisLock{
		client:       client,
		prefix:       prefix,
		pollInterval: 50 * time.Millisecond,
		tokens:       make(map[string]string),
	}
}

func generateToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Lock blocks until the key is acquired or ctx is done.
func (r *RedisLock) Lock(ctx context.Context, key string, ttl time.Duration) error {
	lockKey := r.prefix + key
	token := generateToken()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return fmt.Errorf("redis setnx %s: %w: %w", lockKey, ports.ErrLockNotAcquired, err)
		}
		if ok {
			r.mu.Lock()
			r.tokens[key] = token
			r.mu.Unlock()
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for lock %s: %w: %w", lockKey, ports.ErrLockNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Unlock releases the key if this process still owns it.
func (r *RedisLock) Unlock(ctx context.Context, key string) error {
	lockKey := r.prefix + key

	r.mu.Lock()
	token, exists := r.tokens[key]
	delete(r.tokens, key)
	r.mu.Unlock()
	if !exists {
		return fmt.Errorf("lock not held: %s", key)
	}

	result, err := unlockScript.Run(ctx, r.client, []string{lockKey}, token).Int64()
	if err != nil {
		return fmt.Errorf("redis unlock %s: %w", lockKey, err)
	}
	if result == 0 {
		return fmt.Errorf("lock not held or expired: %s", key)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisLock) Close() error {
	return r.client.Close()
}
