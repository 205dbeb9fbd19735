package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/sendqueue/internal/domain"
	"github.com/kursadbilgin/sendqueue/internal/lock"
	"go.uber.org/zap"
)

const (
	defaultTickInterval = 60 * time.Second
	defaultRunTimeout   = 10 * time.Minute
	defaultLockTTL      = 15 * time.Minute
	defaultConcurrency  = 4
	defaultScanLimit    = 100
)

// RunnerConfig tunes the periodic runners.
type RunnerConfig struct {
	Interval    time.Duration
	RunTimeout  time.Duration
	LockTTL     time.Duration
	Concurrency int
	Limit       int
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.Interval <= 0 {
		c.Interval = defaultTickInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaultRunTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaultLockTTL
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.Limit <= 0 {
		c.Limit = defaultScanLimit
	}
	return c
}

// runEvery calls tick immediately and then on every interval until ctx ends.
func runEvery(ctx context.Context, interval time.Duration, name string, logger *zap.Logger, tick func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := tick(ctx); err != nil && ctx.Err() == nil {
		logger.Error(name+" initial tick failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Error(name+" tick failed", zap.Error(err))
			}
		}
	}
}

// runLocked runs fn while holding key. It returns domain.ErrLockNotAcquired
// when another worker holds the key.
func runLocked(
	ctx context.Context,
	locker lock.Locker,
	key string,
	ttl time.Duration,
	logger *zap.Logger,
	fn func(context.Context) error,
) error {
	token, ok, err := locker.TryLock(ctx, key, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrLockNotAcquired, key)
	}

	defer func() {
		if err := locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			logger.Error("failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}()

	return fn(ctx)
}

func isLockHeld(err error) bool {
	return errors.Is(err, domain.ErrLockNotAcquired)
}
