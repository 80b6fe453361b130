package cron

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type memoryLockStore struct {
	data map[string]string
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) Get(_ context.Context, key string) (string, error) {
	value, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return value, nil
}

func (m *memoryLockStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func TestRedisLockExcludesSecondHolder(t *testing.T) {
	ctx := context.Background()
	store := &memoryLockStore{data: map[string]string{}}
	first, err := NewRedisLock(store, "cc:cron-worker:lock:test", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewRedisLock(store, "cc:cron-worker:lock:test", time.Minute)

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, err := second.Acquire(ctx); err != nil || ok {
		t.Fatalf("second acquire should fail: ok=%v err=%v", ok, err)
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("non-owner release: %v", err)
	}
	if _, ok := store.data["cc:cron-worker:lock:test"]; !ok {
		t.Fatalf("non-owner release must keep the key")
	}

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("holder re-acquire: ok=%v err=%v", ok, err)
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("owner release: %v", err)
	}
	if first.Held() {
		t.Fatalf("released lock still reports held")
	}
	if ok, err := second.Acquire(ctx); err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockReleaseAfterExpiry(t *testing.T) {
	ctx := context.Background()
	store := &memoryLockStore{data: map[string]string{}}
	lock, _ := NewRedisLock(store, "key", time.Minute)
	if _, err := lock.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	delete(store.data, "key")
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release of expired lock: %v", err)
	}
	if lock.Held() {
		t.Fatalf("expired lock still reports held")
	}
}

func TestRedisLockReacquireAfterTakeover(t *testing.T) {
	ctx := context.Background()
	store := &memoryLockStore{data: map[string]string{}}
	lock, _ := NewRedisLock(store, "key", time.Minute)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("expected first acquire")
	}
	store.data["key"] = "other-replica"

	if ok, err := lock.Acquire(ctx); err != nil || ok {
		t.Fatalf("acquire after takeover should fail: ok=%v err=%v", ok, err)
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.data["key"] != "other-replica" {
		t.Fatalf("release must not delete another owner's key")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "key", 0); err == nil {
		t.Fatalf("expected store error")
	}
	if _, err := NewRedisLock(&memoryLockStore{}, "", 0); err == nil {
		t.Fatalf("expected key error")
	}
}
