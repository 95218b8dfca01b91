package cron

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	pkgredis "github.com/corporatepranks/storefront-backend/pkg/redis"
)

const defaultLockTTL = 5 * time.Minute

// Lock gates a cron cycle across replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock stores a per-process token under key. Only the holder of the
// token releases it, and a holder that lost track of its lock (a cycle that
// died before Release) can re-acquire it.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	token string
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("cron lock: store required")
	}
	if key == "" {
		return nil, errors.New("cron lock: key required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	host, _ := os.Hostname()
	return &RedisLock{store: store, key: key, ttl: ttl, token: host + "/" + uuid.NewString()}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.store.SetNX(ctx, l.key, l.token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("cron lock %s: %w", l.key, err)
	}
	if ok {
		return true, nil
	}
	holder, err := l.holder(ctx)
	if err != nil {
		return false, err
	}
	return holder == l.token, nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	holder, err := l.holder(ctx)
	if err != nil || holder != l.token {
		return err
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("cron lock %s: release: %w", l.key, err)
	}
	return nil
}

// holder returns "" when nobody holds the lock.
func (l *RedisLock) holder(ctx context.Context) (string, error) {
	v, err := l.store.Get(ctx, l.key)
	if pkgredis.IsNil(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cron lock %s: read holder: %w", l.key, err)
	}
	return v, nil
}

// LocalLock always acquires. Jobs whose state lives in the running process,
// like the checkout sweep, use it.
type LocalLock struct{}

func (LocalLock) Acquire(context.Context) (bool, error) { return true, nil }

func (LocalLock) Release(context.Context) error { return nil }
