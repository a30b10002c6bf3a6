// Package lock serialises work on a key, either inside the process or across
// replicas through Redis.
package lock

import (
	"context"
	"sync"
)

// Release gives the lock back. Calling it more than once is a no-op.
type Release func()

type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

type entry struct {
	slot chan struct{}
	refs int
}

// LocalLocker holds one mutex per key and forgets the key when nobody holds
// or waits for it.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

var _ Locker = &LocalLocker{}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*entry)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (Release, error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{slot: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		l.forget(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.slot
			l.forget(key, e)
		})
	}, nil
}

func (l *LocalLocker) forget(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// size is the number of keys currently tracked.
func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
