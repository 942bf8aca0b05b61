package warehouse

import (
	"context"
	"sync"
	"time"
)

// SessionState represents a session's lifecycle state in the pool.
type SessionState int

const (
	SessionIdle       SessionState = iota // available in the pool
	SessionCheckedOut                     // exclusively held by a caller
	SessionClosed                         // removed from the pool
)

// Session wraps a warehouse connection with the metadata the pool needs to
// manage it. While checked out it is owned exclusively by one caller; there
// is no transition out of SessionClosed.
type Session struct {
	mu sync.Mutex

	conn Conn

	// id is unique within the pool that created the session.
	id uint64

	state SessionState

	createdAt  time.Time
	lastUsedAt time.Time

	// useCount tracks how many times this session has been checked out.
	useCount uint64
}

func newSession(id uint64, conn Conn) *Session {
	now := time.Now()
	return &Session{
		conn:       conn,
		id:         id,
		state:      SessionIdle,
		createdAt:  now,
		lastUsedAt: now,
	}
}

// ID returns the session's pool-unique identifier.
func (s *Session) ID() uint64 {
	return s.id
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UseCount returns how many times the session has been checked out.
func (s *Session) UseCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.useCount
}

// Run executes a statement on the underlying connection. The caller must
// hold the session (checked out from the pool).
func (s *Session) Run(ctx context.Context, stmt string, args []any) (Rows, error) {
	return s.conn.Run(ctx, stmt, args)
}

// markCheckedOut transitions the session to the checked-out state.
func (s *Session) markCheckedOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SessionCheckedOut
	s.lastUsedAt = time.Now()
	s.useCount++
}

// release transitions the session out of the checked-out state. It returns
// false when the session was not checked out, which guards against double
// release and release-after-close.
func (s *Session) release() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionCheckedOut {
		return false
	}
	s.state = SessionIdle
	s.lastUsedAt = time.Now()
	return true
}

// idleDuration returns how long the session has been idle.
func (s *Session) idleDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastUsedAt)
}

// Close closes the underlying connection and marks the session closed.
func (s *Session) Close() error {
	s.mu.Lock()
	s.state = SessionClosed
	s.mu.Unlock()
	return s.conn.Close()
}
