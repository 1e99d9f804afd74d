package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockStore handles distributed locking in Redis. Used to serialize session
// mutations for the same (bus, activity date) key across instances; within a
// single process the engine's keyed mutex already guarantees this.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquireSessionLock attempts to acquire a lock for the given session key.
// Returns true if the lock was acquired, false if already held.
func (s *LockStore) AcquireSessionLock(ctx context.Context, sessionKey string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:session:%s", sessionKey)

	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// ReleaseSessionLock releases the lock for the given session key.
func (s *LockStore) ReleaseSessionLock(ctx context.Context, sessionKey string) error {
	key := fmt.Sprintf("lock:session:%s", sessionKey)

	return s.client.Del(ctx, key).Err()
}
