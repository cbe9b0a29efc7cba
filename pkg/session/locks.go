package session

import "sync"

// LockTable hands out one mutex per user. All chat handling for a unionid
// serializes on its lock so concurrent requests cannot interleave session
// mutations.
//
// Locks are created lazily and never removed; the table grows with the set
// of users seen since startup.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]*sync.Mutex)}
}

// Get returns the mutex for a unionid, creating it on first use.
func (t *LockTable) Get(unionID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[unionID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[unionID] = l
	}
	return l
}
