package lock

import (
	"context"
	"time"
)

// Locker provides mutual exclusion per key across processes. TryLock returns
// ok=false without error when another holder owns the key. The returned token
// must be passed to Unlock so only the holder can release.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key string, token string) error
}
