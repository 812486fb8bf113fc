package state

import "sync"

// Locks is the per-symbol mutex table. Entries are created lazily and
// never removed; the key space is bounded by the configured symbol list.
// A symbol's lock serializes every mutation of that symbol's position
// across signal handling, trailing sweeps, reconciliation and emergency
// closes, and is held across the venue calls those paths make.
type Locks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

// NewLocks creates an empty lock table.
func NewLocks() *Locks {
	return &Locks{m: make(map[string]*sync.Mutex)}
}

// Get returns the lock for a symbol, creating it on first use.
func (l *Locks) Get(symbol string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.m[symbol]
	if !ok {
		lk = &sync.Mutex{}
		l.m[symbol] = lk
	}
	return lk
}
