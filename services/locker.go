package services

import "sync"

// Locker serializes mutating operations per session so concurrent joins and
// submissions cannot interleave their read-modify-write cycles. Operations on
// different sessions proceed in parallel.
type Locker struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[uint]*sync.Mutex)}
}

// Lock acquires the lock for a session id and returns the unlock func.
func (l *Locker) Lock(sessionID uint) func() {
	l.mu.Lock()
	m, ok := l.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[sessionID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Forget drops the lock entry for an ended session.
func (l *Locker) Forget(sessionID uint) {
	l.mu.Lock()
	delete(l.locks, sessionID)
	l.mu.Unlock()
}
