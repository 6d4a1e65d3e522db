package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aiTradeEngine/internal/ports"
)

// LocalLock serializes keys within a single process.
// The ttl argument is ignored; a key is held until Unlock.
type LocalLock struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

var _ ports.Locker = (*LocalLock)(nil)

// NewLocalLock creates an in-process locker.
func NewLocalLock() *LocalLock {
	return &LocalLock{slots: make(map[string]chan struct{})}
}

func (l *LocalLock) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Lock blocks until the key is free or ctx is done.
func (l *LocalLock) Lock(ctx context.Context, key string, _ time.Duration) error {
	select {
	case l.slot(key) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for lock %s: %w: %w", key, ports.ErrLockNotAcquired, ctx.Err())
	}
}

// Unlock releases the key.
func (l *LocalLock) Unlock(_ context.Context, key string) error {
	select {
	case <-l.slot(key):
		return nil
	default:
		return fmt.Errorf("lock not held: %s", key)
	}
}
