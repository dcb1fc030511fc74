package redis

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/marketplace/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// Only the owner may release the lock.
	releaseLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	extendLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// DistributedLock is a single-owner lock held in Redis with a TTL.
type DistributedLock struct {
	client   redis.Cmdable
	key      string
	value    string
	ttl      time.Duration
	acquired bool
}

func NewDistributedLock(client redis.Cmdable, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    lockKey(key),
		value:  uuid.New().String(),
		ttl:    ttl,
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

// Acquire tries once to take the lock.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.acquired = ok
	return ok, nil
}

// AcquireWait polls until the lock is taken, ctx is done or wait elapses.
func (l *DistributedLock) AcquireWait(ctx context.Context, wait, pollInterval time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		ok, err := l.Acquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s: %w", l.key, domainErrors.ErrLockAcquireFailed)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Extend pushes the expiry of a held lock out by ttl.
func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.acquired {
		return domainErrors.ErrLockNotHeld
	}
	result, err := extendLockScript.Run(ctx, l.client, []string{l.key}, l.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	if result == 0 {
		return domainErrors.ErrLockNotHeld
	}
	return nil
}

func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}
	result, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	l.acquired = false
	if result == 0 {
		return domainErrors.ErrLockNotHeld
	}
	return nil
}

func (l *DistributedLock) IsAcquired() bool {
	return l.acquired
}

// Locker serializes work on a key across API instances. It satisfies the
// service layer's Locker port.
type Locker struct {
	client       redis.Cmdable
	ttl          time.Duration
	wait         time.Duration
	pollInterval time.Duration
	logger       zerolog.Logger
}

func NewLocker(client redis.Cmdable, ttl time.Duration, logger zerolog.Logger) *Locker {
	return &Locker{
		client:       client,
		ttl:          ttl,
		wait:         ttl,
		pollInterval: 25 * time.Millisecond,
		logger:       logger,
	}
}

// Lock blocks until key is held and returns its release function.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	lock := NewDistributedLock(l.client, key, l.ttl)
	if err := lock.AcquireWait(ctx, l.wait, l.pollInterval); err != nil {
		return nil, err
	}
	return func() {
		// Release with a fresh context so a cancelled request still unlocks.
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := lock.Release(ctx); err != nil {
			l.logger.Warn().Err(err).Str("key", key).Msg("failed to release lock")
		}
	}, nil
}
