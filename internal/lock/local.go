// Package lock serializes lifecycle transitions per parking resource.
package lock

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// LocalLocker is an in-process keyed mutex. Entries are dropped when no holder or
// waiter remains.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates a LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[uuid.UUID]*entry)}
}

// Lock blocks until resourceID is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, resourceID uuid.UUID) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[resourceID]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[resourceID] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(resourceID, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(resourceID, e)
		})
	}, nil
}

func (l *LocalLocker) release(resourceID uuid.UUID, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, resourceID)
	}
}

// held returns the number of resources with a holder or waiter.
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
