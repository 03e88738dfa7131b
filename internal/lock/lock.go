// Package lock provides advisory locks that keep automation runs from
// overlapping, plus the state directory guard that stops two ShopPipe
// processes from sharing one database.
package lock

import (
	"context"
	"sync"
)

// Locker guards one exclusive section. Acquire reports false, without error,
// when somebody else holds the lock.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LocalLock serializes runs inside a single process.
type LocalLock struct {
	mu sync.Mutex
}

// NewLocalLock returns an unlocked in-process lock.
func NewLocalLock() *LocalLock {
	return &LocalLock{}
}

// Acquire never blocks.
func (l *LocalLock) Acquire(context.Context) (bool, error) {
	return l.mu.TryLock(), nil
}

// Release unlocks. Releasing an unlocked LocalLock panics, like sync.Mutex.
func (l *LocalLock) Release(context.Context) error {
	l.mu.Unlock()
	return nil
}

var (
	_ Locker = (*LocalLock)(nil)
	_ Locker = (*FileLock)(nil)
	_ Locker = (*RedisLock)(nil)
)
