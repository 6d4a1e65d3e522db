package ports

import (
	"context"
	"time"

	"aiTradeEngine/internal/domain"
)

// Notifier delivers notifications. Implementations must not block the caller on delivery.
type Notifier interface {
	Notify(ctx context.Context, n *domain.Notification)
}

// Locker serializes work on a key (a user's portfolio) across sweeps and processes.
type Locker interface {
	// Lock blocks until the key is acquired, ctx is done or the lock backend fails.
	Lock(ctx context.Context, key string, ttl time.Duration) error
	// Unlock releases a key held by this locker.
	Unlock(ctx context.Context, key string) error
}
