package engine

import (
	"sync"

	"agriscore/core"
)

// lockTable hands out one mutex per user and forgets it once no caller holds it.
type lockTable struct {
	mu    sync.Mutex
	locks map[core.UserID]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[core.UserID]*userLock)}
}

// lock blocks until the caller owns user's section and returns the release func.
func (t *lockTable) lock(user core.UserID) func() {
	t.mu.Lock()
	l, ok := t.locks[user]
	if !ok {
		l = &userLock{}
		t.locks[user] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, user)
		}
		t.mu.Unlock()
	}
}

func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
