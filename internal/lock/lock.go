// Package lock provides keyed mutual exclusion with a bounded wait.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Locker serializes work on a key. Lock waits at most the locker's timeout and
// then fails with models.ErrBusy. The returned release func must be called once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// OrderKey is the lock key for an order.
func OrderKey(orderID int64) string {
	return fmt.Sprintf("order:%d", orderID)
}

// CommissionKey is the lock key for one user's commission period.
func CommissionKey(userID int64, month, year int) string {
	return fmt.Sprintf("commission:%d:%d:%d", userID, year, month)
}

type entry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex is an in-process Locker. Entries are dropped once no goroutine
// holds or waits for them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
	timeout time.Duration
}

// NewKeyedMutex creates a KeyedMutex with the given wait bound
func NewKeyedMutex(timeout time.Duration) *KeyedMutex {
	return &KeyedMutex{
		entries: make(map[string]*entry),
		timeout: timeout,
	}
}

func (m *KeyedMutex) acquireEntry(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	return e
}

func (m *KeyedMutex) releaseEntry(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}

// Lock implements Locker
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	e := m.acquireEntry(key)
	start := time.Now()

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case e.ch <- struct{}{}:
	case <-timer.C:
		m.releaseEntry(key, e)
		util.LockWaitSeconds.Observe(time.Since(start).Seconds())
		util.LockTimeoutsTotal.Inc()
		return nil, fmt.Errorf("%w: lock %s not acquired within %s", models.ErrBusy, key, m.timeout)
	case <-ctx.Done():
		m.releaseEntry(key, e)
		return nil, ctx.Err()
	}

	util.LockWaitSeconds.Observe(time.Since(start).Seconds())

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.releaseEntry(key, e)
		})
	}, nil
}

// TokenStore is the subset of the Redis client RedisLocker needs
type TokenStore interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) (bool, error)
	ExtendLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
}

// RedisLocker is a Locker shared by every instance pointed at the same Redis.
// Each holder writes a unique token so it can only release its own lock, and
// renews the TTL every ttl/3 until release.
type RedisLocker struct {
	store   TokenStore
	timeout time.Duration
	ttl     time.Duration
	retry   time.Duration
	logger  *zap.Logger
}

// NewRedisLocker creates a RedisLocker; ttl bounds how long a crashed holder blocks others
func NewRedisLocker(store TokenStore, timeout, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		store:   store,
		timeout: timeout,
		ttl:     ttl,
		retry:   10 * time.Millisecond,
		logger:  util.GetLogger(),
	}
}

// Lock implements Locker
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	start := time.Now()
	deadline := start.Add(l.timeout)

	for {
		ok, err := l.store.AcquireLock(ctx, key, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			util.LockWaitSeconds.Observe(time.Since(start).Seconds())
			util.LockTimeoutsTotal.Inc()
			return nil, fmt.Errorf("%w: lock %s not acquired within %s", models.ErrBusy, key, l.timeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	util.LockWaitSeconds.Observe(time.Since(start).Seconds())

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(key, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			released, err := l.store.ReleaseLock(releaseCtx, key, token)
			if err != nil {
				l.logger.Error("Failed to release lock", zap.String("key", key), zap.Error(err))
				return
			}
			if !released {
				l.logger.Warn("Lock expired before release", zap.String("key", key))
			}
		})
	}, nil
}

// renew keeps extending the lock until stop is closed or the token is lost
func (l *RedisLocker) renew(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := l.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		extended, err := l.store.ExtendLock(ctx, key, token, l.ttl)
		cancel()
		if err != nil {
			l.logger.Warn("Failed to extend lock", zap.String("key", key), zap.Error(err))
			continue
		}
		if !extended {
			l.logger.Warn("Lock lost before release", zap.String("key", key))
			return
		}
	}
}

var (
	_ Locker = (*KeyedMutex)(nil)
	_ Locker = (*RedisLocker)(nil)
)
