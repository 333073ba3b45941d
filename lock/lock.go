package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned by TryLock when another holder owns the key.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker serialises work per key. Unlock must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
	TryLock(ctx context.Context, key string) (unlock func(), err error)
}
