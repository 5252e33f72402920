package keylock

import (
	"context"
	"sync"
)

// Manager hands out per-key exclusive locks. It is used to serialize
// subscription reconciliation per customer so two webhook deliveries for the
// same customer can never interleave their read-modify-write cycles.
// Different keys never block each other.
//
// Lock entries are reference counted and removed again once the last holder
// or waiter is gone, so the manager does not grow with the number of
// customers ever seen.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	// ch acts as a binary semaphore: holding the token means holding the lock.
	ch   chan struct{}
	refs int
}

// NewManager creates an empty lock manager.
func NewManager() *Manager {
	return &Manager{locks: make(map[string]*entry)}
}

// Acquire blocks until the lock for key is held or ctx is done. On success it
// returns a release function which must be called exactly once. On ctx
// expiry nothing is held and ctx.Err() is returned.
func (m *Manager) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			m.unref(key, e)
		}, nil
	case <-ctx.Done():
		m.unref(key, e)
		return nil, ctx.Err()
	}
}

// WithLock runs fn while holding the lock for key. The lock is released on
// every exit path, including a panic inside fn.
func (m *Manager) WithLock(ctx context.Context, key string, fn func() error) error {
	release, err := m.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func (m *Manager) unref(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.refs--
	if e.refs <= 0 {
		delete(m.locks, key)
	}
}

// Len reports the number of currently tracked keys (held or contended).
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
