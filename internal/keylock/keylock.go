// Package keylock serializes work on a logical key, such as one student's
// attendance record for one day.
package keylock

import (
	"context"
	"sync"
)

// Locker acquires exclusive access to a key. The returned func releases it
// and must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// InProcess is a Locker for a single process. Entries are reference counted
// and dropped once no holder or waiter remains.
type InProcess struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

// NewInProcess creates an empty locker.
func NewInProcess() *InProcess {
	return &InProcess{locks: make(map[string]*entry)}
}

// Lock blocks until key is free or ctx is done.
func (l *InProcess) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *InProcess) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// Len reports how many keys are currently tracked.
func (l *InProcess) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
