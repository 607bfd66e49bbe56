package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// StageLock serializes stage execution per upload. Only one stage may run at
// a time for a given upload; a second attempt while one is in flight must be
// rejected, not interleaved, because stages read and write overlapping files
// in the workspace.
type StageLock interface {
	// TryAcquire attempts to take the upload's lease without blocking.
	TryAcquire(ctx context.Context, uploadID string) (bool, error)

	// Release gives the lease back.
	Release(ctx context.Context, uploadID string) error
}

// MemoryLock is the in-process lock used when redis is not configured (and
// in tests). It only serializes within one process.
type MemoryLock struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewMemoryLock creates an in-process stage lock.
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{held: make(map[string]bool)}
}

// TryAcquire attempts to take the upload's lease without blocking.
func (l *MemoryLock) TryAcquire(_ context.Context, uploadID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[uploadID] {
		return false, nil
	}
	l.held[uploadID] = true
	return true, nil
}

// Release gives the lease back.
func (l *MemoryLock) Release(_ context.Context, uploadID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, uploadID)
	return nil
}

const leaseKeyPrefix = "stemdesk:stage-lease:"

// RedisLock implements the lease with SET NX PX, so the single-flight
// guarantee holds across server instances sharing one redis. The TTL bounds
// how long a crashed holder can block an upload.
type RedisLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLock creates a redis-backed stage lock. ttl should comfortably
// exceed the stage timeout.
func NewRedisLock(client *redis.Client, ttl time.Duration) *RedisLock {
	return &RedisLock{client: client, ttl: ttl}
}

// TryAcquire attempts to take the upload's lease without blocking.
func (l *RedisLock) TryAcquire(ctx context.Context, uploadID string) (bool, error) {
	return l.client.SetNX(ctx, leaseKeyPrefix+uploadID, "1", l.ttl).Result()
}

// Release gives the lease back.
func (l *RedisLock) Release(ctx context.Context, uploadID string) error {
	return l.client.Del(ctx, leaseKeyPrefix+uploadID).Err()
}
