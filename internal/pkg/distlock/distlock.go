package distlock

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned when releasing or extending a lock this instance does not own.
var ErrNotHeld = errors.New("lock not held")

// DistLock is the interface for distributed locking.
// A DistLock instance guards a single key and is used from one goroutine.
type DistLock interface {
	// Acquire tries to acquire the lock without blocking. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Extender is implemented by locks that expire unless their holder renews
// them.
type Extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// Locker hands out locks for arbitrary keys.
type Locker interface {
	Lock(key string) DistLock
}

// NewLocker picks the best available backend.
// Redis is preferred for cross-host locking, then PostgreSQL advisory
// locks, then an in-process lock table when neither is configured.
func NewLocker(redisClient *redis.Client, db *sql.DB, ttl time.Duration) Locker {
	switch {
	case redisClient != nil:
		return &RedisLocker{client: redisClient, ttl: ttl}
	case db != nil:
		return &PGLocker{db: db}
	default:
		return NewLocalLocker()
	}
}

// RedisLocker creates RedisLocks sharing a client and TTL.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func (l *RedisLocker) Lock(key string) DistLock { return NewRedisLock(l.client, key, l.ttl) }

// PGLocker creates PGAdvisoryLocks sharing a pool.
type PGLocker struct {
	db *sql.DB
}

func (l *PGLocker) Lock(key string) DistLock { return NewPGAdvisoryLock(l.db, key) }

// LocalLocker serializes holders within a single process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) Lock(key string) DistLock { return &localLock{parent: l, key: key} }

type localLock struct {
	parent *LocalLocker
	key    string
	owned  bool
}

func (l *localLock) Acquire(ctx context.Context) (bool, error) {
	l.parent.mu.Lock()
	defer l.parent.mu.Unlock()
	if l.parent.held[l.key] {
		return false, nil
	}
	l.parent.held[l.key] = true
	l.owned = true
	return true, nil
}

func (l *localLock) Release(ctx context.Context) error {
	l.parent.mu.Lock()
	defer l.parent.mu.Unlock()
	if !l.owned {
		return ErrNotHeld
	}
	delete(l.parent.held, l.key)
	l.owned = false
	return nil
}
