// Package keylock serializes work per key, e.g. all events of one person.
package keylock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired is returned by TryLock when the key is held elsewhere.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out exclusive per-key locks.
type Locker interface {
	// Lock blocks until key is held or ctx is done.
	Lock(ctx context.Context, key string) (unlock func(), err error)

	// TryLock returns ErrNotAcquired instead of waiting.
	TryLock(ctx context.Context, key string) (unlock func(), err error)
}

type entry struct {
	ch   chan struct{}
	refs int
}

// Memory is an in-process Locker. Entries are dropped once no goroutine
// holds or waits on them.
type Memory struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func NewMemory() *Memory {
	return &Memory{locks: make(map[string]*entry)}
}

func (m *Memory) acquireEntry(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	return e
}

func (m *Memory) releaseEntry(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}

func (m *Memory) Lock(ctx context.Context, key string) (func(), error) {
	e := m.acquireEntry(key)
	select {
	case e.ch <- struct{}{}:
		return m.unlocker(key, e), nil
	case <-ctx.Done():
		m.releaseEntry(key, e)
		return nil, ctx.Err()
	}
}

func (m *Memory) TryLock(ctx context.Context, key string) (func(), error) {
	e := m.acquireEntry(key)
	select {
	case e.ch <- struct{}{}:
		return m.unlocker(key, e), nil
	default:
		m.releaseEntry(key, e)
		return nil, ErrNotAcquired
	}
}

func (m *Memory) unlocker(key string, e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.releaseEntry(key, e)
		})
	}
}

// Held reports how many keys are currently tracked.
func (m *Memory) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
