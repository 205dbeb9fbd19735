package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/sendqueue/internal/lock"
	goredis "github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix  = "sendqueue:lock:"
	defaultLockTTL = 15 * time.Minute
)

var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ lock.Locker = (*RedisLocker)(nil)

// RedisLocker is a SETNX based lease lock. Leases expire after their TTL so a
// crashed holder never blocks a key forever.
type RedisLocker struct {
	client   *goredis.Client
	newToken func() string
	script   *goredis.Script
}

func NewRedisLocker(client *goredis.Client) (*RedisLocker, error) {
	return newRedisLocker(client, uuid.NewString)
}

func newRedisLocker(client *goredis.Client, tokenFn func() string) (*RedisLocker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if tokenFn == nil {
		tokenFn = uuid.NewString
	}

	return &RedisLocker{
		client:   client,
		newToken: tokenFn,
		script:   unlockScript,
	}, nil
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	fullKey, err := lockKey(key)
	if err != nil {
		return "", false, err
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	token := l.newToken()
	acquired, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock %q: %w", key, err)
	}
	if !acquired {
		return "", false, nil
	}
	return token, true, nil
}

// Unlock releases the key only if token still owns it.
func (l *RedisLocker) Unlock(ctx context.Context, key string, token string) error {
	fullKey, err := lockKey(key)
	if err != nil {
		return err
	}

	if err := l.script.Run(ctx, l.client, []string{fullKey}, token).Err(); err != nil {
		return fmt.Errorf("failed to release lock %q: %w", key, err)
	}
	return nil
}

func lockKey(key string) (string, error) {
	normalized := strings.TrimSpace(key)
	if normalized == "" {
		return "", fmt.Errorf("lock key is required")
	}
	return lockKeyPrefix + normalized, nil
}
