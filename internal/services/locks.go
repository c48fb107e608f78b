package services

import "sync"

// SessionLocks serializes mutations per session. Each session id owns one
// mutex, so at most one mutation is applied to a session's state at any
// instant while sessions mutate fully in parallel with each other.
// The locks are process-local; in a multi-instance deployment each session's
// mutation traffic must be routed to a single instance.
type SessionLocks struct {
	locks sync.Map // map[int64]*sync.Mutex
}

// NewSessionLocks creates an empty lock registry
func NewSessionLocks() *SessionLocks {
	return &SessionLocks{}
}

// Lock acquires the mutex for a session and returns its unlock function
func (l *SessionLocks) Lock(sessionID int64) func() {
	mu, _ := l.locks.LoadOrStore(sessionID, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}
