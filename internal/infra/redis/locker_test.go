package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestRedisLockerTryLockExclusive(t *testing.T) {
	t.Parallel()

	_, rdb := newTestRedis(t)
	locker := newTestLocker(t, rdb)

	token, ok, err := locker.TryLock(context.Background(), "campaign:42", time.Minute)
	if err != nil {
		t.Fatalf("TryLock() error = %v", err)
	}
	if !ok || token == "" {
		t.Fatalf("TryLock() ok = %v token = %q, want acquired", ok, token)
	}

	_, ok, err = locker.TryLock(context.Background(), "campaign:42", time.Minute)
	if err != nil {
		t.Fatalf("second TryLock() error = %v", err)
	}
	if ok {
		t.Fatal("second TryLock() should not acquire a held key")
	}

	_, ok, err = locker.TryLock(context.Background(), "campaign:43", time.Minute)
	if err != nil {
		t.Fatalf("TryLock(other) error = %v", err)
	}
	if !ok {
		t.Fatal("distinct keys should lock independently")
	}
}

func TestRedisLockerUnlockRequiresToken(t *testing.T) {
	t.Parallel()

	mr, rdb := newTestRedis(t)
	locker := newTestLocker(t, rdb)

	token, ok, err := locker.TryLock(context.Background(), "server:7", time.Minute)
	if err != nil || !ok {
		t.Fatalf("TryLock() ok = %v err = %v", ok, err)
	}

	if err := locker.Unlock(context.Background(), "server:7", "someone-else"); err != nil {
		t.Fatalf("Unlock(foreign token) error = %v", err)
	}
	if !mr.Exists(lockKeyPrefix + "server:7") {
		t.Fatal("foreign token must not release the lock")
	}

	if err := locker.Unlock(context.Background(), "server:7", token); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if mr.Exists(lockKeyPrefix + "server:7") {
		t.Fatal("owner token should release the lock")
	}

	if _, ok, _ := locker.TryLock(context.Background(), "server:7", time.Minute); !ok {
		t.Fatal("released key should be lockable again")
	}
}

func TestRedisLockerLeaseExpires(t *testing.T) {
	t.Parallel()

	mr, rdb := newTestRedis(t)
	locker := newTestLocker(t, rdb)

	if _, ok, err := locker.TryLock(context.Background(), "campaign:1", time.Second); err != nil || !ok {
		t.Fatalf("TryLock() ok = %v err = %v", ok, err)
	}

	mr.FastForward(2 * time.Second)

	if _, ok, err := locker.TryLock(context.Background(), "campaign:1", time.Second); err != nil || !ok {
		t.Fatalf("TryLock() after expiry ok = %v err = %v", ok, err)
	}
}

func TestRedisLockerRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	_, rdb := newTestRedis(t)
	locker := newTestLocker(t, rdb)

	if _, _, err := locker.TryLock(context.Background(), "  ", time.Second); err == nil {
		t.Fatal("expected error for empty key")
	}
	if err := locker.Unlock(context.Background(), "", "token"); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestNewRedisLockerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisLocker(nil); err == nil {
		t.Fatal("expected error when redis client is nil")
	}
}

func newTestLocker(t *testing.T, rdb *goredis.Client) *RedisLocker {
	t.Helper()

	n := 0
	locker, err := newRedisLocker(rdb, func() string {
		n++
		return fmt.Sprintf("token-%d", n)
	})
	if err != nil {
		t.Fatalf("newRedisLocker() error = %v", err)
	}
	return locker
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return mr, rdb
}
