package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// A cycle that outlives the interval by an hour still holds the lock.
const defaultLockTTL = 25 * time.Hour

// Lock makes a cron cycle exclusive across worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock is a SET NX lock tagged with a per-acquire owner token. A crashed
// holder blocks other replicas for at most the TTL.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	token string
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis client required for lock")
	case key == "":
		return nil, errors.New("lock key is required")
	case ttl <= 0:
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

// Acquire is re-entrant: a holder whose token is still stored keeps the lock.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	if l.token != "" {
		owned, err := l.owns(ctx)
		if err != nil {
			return false, err
		}
		if owned {
			return true, nil
		}
		l.token = ""
	}

	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release deletes the key only while this instance still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	owned, err := l.owns(ctx)
	if err != nil {
		return err
	}
	if owned {
		if err := l.store.Del(ctx, l.key); err != nil {
			return fmt.Errorf("delete lock %s: %w", l.key, err)
		}
	}
	l.token = ""
	return nil
}

func (l *RedisLock) Held() bool {
	return l.token != ""
}

func (l *RedisLock) owns(ctx context.Context) (bool, error) {
	current, err := l.store.Get(ctx, l.key)
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read lock owner %s: %w", l.key, err)
	}
	return current == l.token, nil
}
