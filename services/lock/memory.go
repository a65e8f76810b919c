// Package locksvc implements core.Locker in process and on redis.
package locksvc

import (
	"context"
	"sync"
	"time"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
)

// MemoryLocker serializes work on a key within the process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
	wait  time.Duration
}

type keyLock struct {
	ch   chan struct{} // holds a token while the key is locked
	refs int
}

var _ core.Locker = (*MemoryLocker)(nil)

// NewMemoryLocker returns a locker giving up after `wait`; zero waits as long as the context allows.
func NewMemoryLocker(wait time.Duration) *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock), wait: wait}
}

func (l *MemoryLocker) acquire(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *MemoryLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	kl := l.acquire(key)
	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, core.ErrLockTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}
