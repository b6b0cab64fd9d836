package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockPrefix = "cron"

// Lock hands out per-job leases. A lease held by any worker means the job ran
// recently and must not run again until the lease expires.
type Lock interface {
	Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, job string) error
}

// redisStore defines the operations used by RedisLock.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock implements Lock using Redis SETNX + TTL.
type RedisLock struct {
	client redisStore
	prefix string

	mu     sync.Mutex
	owners map[string]string
}

// NewRedisLock constructs a Redis-backed lock.
func NewRedisLock(client redisStore, prefix string) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if prefix == "" {
		prefix = defaultLockPrefix
	}
	return &RedisLock{client: client, prefix: prefix, owners: make(map[string]string)}, nil
}

func (l *RedisLock) key(job string) string {
	return l.prefix + ":" + job
}

// Acquire tries to own the job lease for ttl.
func (l *RedisLock) Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("lease ttl must be positive")
	}
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key(job), owner, ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		l.mu.Lock()
		l.owners[job] = owner
		l.mu.Unlock()
	}
	return ok, nil
}

// Release frees the lease only if this process still owns it.
func (l *RedisLock) Release(ctx context.Context, job string) error {
	l.mu.Lock()
	owner := l.owners[job]
	l.mu.Unlock()
	if owner == "" {
		return nil
	}

	value, err := l.client.Get(ctx, l.key(job))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			l.forget(job)
			return nil
		}
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != owner {
		l.forget(job)
		return nil
	}
	if err := l.client.Del(ctx, l.key(job)); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	l.forget(job)
	return nil
}

func (l *RedisLock) forget(job string) {
	l.mu.Lock()
	delete(l.owners, job)
	l.mu.Unlock()
}
