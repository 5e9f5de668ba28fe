// Package runlock guards against overlapping sync runs. Two runs reading the
// same watermark would double-send every notification in the window.
package runlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another run currently holds the lease.
var ErrHeld = errors.New("runlock: sync already running")

// Locker serializes orchestrator runs.
type Locker interface {
	// Acquire takes the lease or returns ErrHeld. The returned func releases it.
	Acquire(ctx context.Context) (func(), error)
}

// Local is a process-local lock for single-instance deployments and tests.
type Local struct {
	mu   sync.Mutex
	held bool
}

// NewLocal creates a process-local lock.
func NewLocal() *Local {
	return &Local{}
}

// Acquire implements Locker.
func (l *Local) Acquire(_ context.Context) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, ErrHeld
	}
	l.held = true
	return func() {
		l.mu.Lock()
		l.held = false
		l.mu.Unlock()
	}, nil
}

// RedisLock is a cross-process lease using SET NX with a TTL, so a crashed
// run cannot wedge the scheduler forever.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLock creates a lease. The TTL should comfortably exceed one run.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	if key == "" {
		key = "studentfinger:sync:lock"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLock{client: client, key: key, ttl: ttl}
}

// Acquire implements Locker. Release only deletes the key when this holder
// still owns it, so an expired lease cannot clobber a newer run's lock.
func (l *RedisLock) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeld
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if val, err := l.client.Get(ctx, l.key).Result(); err == nil && val == token {
			_ = l.client.Del(ctx, l.key).Err()
		}
	}, nil
}
