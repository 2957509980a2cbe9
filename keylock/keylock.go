// Package keylock provides locking per-key.
// For example, you can acquire a lock for a specific guild ID and all other requests for that guild ID
// will block until that entry is unlocked (effectively your work load will be run serially per-guild ID),
// and yet have work for separate guild IDs happen concurrently.
//
// Unlike a plain mutex map, acquisition can be given a bounded wait so a stuck
// holder surfaces as an error instead of a deadlock.
package keylock

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLockTimeout is returned by LockTimeout when the wait bound elapses.
var ErrLockTimeout = errors.New("keylock: timed out waiting for lock")

// M wraps a map of per-key semaphores. Each key locks separately.
type M[K comparable] struct {
	ml sync.Mutex       // lock for entry map
	ma map[K]*mentry[K] // entry map
}

type mentry[K comparable] struct {
	m    *M[K]         // point back to M, so we can synchronize removing this mentry when cnt==0
	sema chan struct{} // entry-specific semaphore, capacity 1
	cnt  int           // reference count
	key  K             // key in ma
}

// Unlocker provides an Unlock method to release the lock.
type Unlocker interface {
	Unlock()
}

// New returns an initalized M.
func New[K comparable]() *M[K] {
	return &M[K]{ma: make(map[K]*mentry[K])}
}

// read or create entry for this key atomically, incrementing its ref count
func (m *M[K]) ref(key K) *mentry[K] {
	m.ml.Lock()
	e, ok := m.ma[key]
	if !ok {
		e = &mentry[K]{m: m, key: key, sema: make(chan struct{}, 1)}
		m.ma[key] = e
	}
	e.cnt++
	m.ml.Unlock()
	return e
}

// decrement and if needed remove entry atomically
func (m *M[K]) unref(e *mentry[K]) {
	m.ml.Lock()
	cur, ok := m.ma[e.key]
	if !ok || cur != e {
		m.ml.Unlock()
		panic(fmt.Errorf("unref requested for key=%v but no entry found", e.key))
	}
	e.cnt--
	if e.cnt < 1 {
		delete(m.ma, e.key)
	}
	m.ml.Unlock()
}

// Lock acquires a lock corresponding to this key.
// This method will never return nil and Unlock() must be called
// to release the lock when done.
func (m *M[K]) Lock(key K) Unlocker {
	e := m.ref(key)
	e.sema <- struct{}{}
	return e
}

// LockTimeout acquires a lock corresponding to this key, waiting at most
// wait for the current holder to release it. Returns ErrLockTimeout if the
// bound elapses first.
func (m *M[K]) LockTimeout(key K, wait time.Duration) (Unlocker, error) {
	e := m.ref(key)

	t := time.NewTimer(wait)
	defer t.Stop()

	select {
	case e.sema <- struct{}{}:
		return e, nil
	case <-t.C:
		m.unref(e)
		return nil, ErrLockTimeout
	}
}

// IsLocked returns true if the key is locked or has waiters.
func (m *M[K]) IsLocked(key K) bool {
	m.ml.Lock()
	_, ok := m.ma[key]
	m.ml.Unlock()
	return ok
}

// Unlock releases the lock for this entry.
func (me *mentry[K]) Unlock() {
	me.m.unref(me)

	// now that map stuff is handled, we release the semaphore and let
	// anything else waiting on this key through
	<-me.sema
}
