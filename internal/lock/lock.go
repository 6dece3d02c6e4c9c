// Package lock provides per-key exclusive sections used to serialise trades
// of the same user. A Locker only guards against concurrent callers; the
// database transaction opened inside the section still provides atomicity.
package lock

import (
	"context"
	"sync"
)

// Locker acquires an exclusive section for key. Lock blocks until the section
// is free or ctx is done; the returned func releases it and is safe to call
// more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Mutex is an in-process Locker keyed by string. Entries are dropped once no
// goroutine holds or waits on them.
type Mutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func NewMutex() *Mutex {
	return &Mutex{locks: make(map[string]*keyLock)}
}

func (m *Mutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		m.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			m.release(key, l)
		})
	}, nil
}

func (m *Mutex) release(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (m *Mutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
