package warehouse

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"refadmin/internal/metrics"
)

// PoolConfig holds the session pool's tunables.
type PoolConfig struct {
	// MaxSessions bounds the number of concurrently open sessions,
	// idle and checked out combined.
	MaxSessions int

	// AcquireTimeout bounds how long Acquire blocks when the pool is at
	// capacity with no idle session.
	AcquireTimeout time.Duration

	// PingTimeout bounds the release-time liveness probe.
	PingTimeout time.Duration

	// MaxIdleTime discards idle sessions older than this at acquire time.
	// Zero disables the check.
	MaxIdleTime time.Duration
}

func (c *PoolConfig) applyDefaults() {
	if c.MaxSessions <= 0 {
		c.MaxSessions = 5
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 30 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 5 * time.Second
	}
}

// Pool manages a bounded set of reusable warehouse sessions. Sessions are
// opened lazily, handed out exclusively, validated with a liveness probe
// when released, and discarded when the probe fails. Callers block in
// Acquire when the pool is at capacity, up to the configured timeout.
type Pool struct {
	mu sync.Mutex

	dialer Dialer
	cfg    PoolConfig

	// idle holds sessions available for reuse, most recently used last.
	idle []*Session

	// outstanding counts open sessions, idle plus checked out.
	// Invariant: outstanding <= cfg.MaxSessions.
	outstanding int

	// waiters queues blocked acquirers in arrival order. A waiter receives
	// either a checked-out session or nil, meaning a slot was freed and the
	// waiter should retry (and likely dial fresh).
	waiters []chan *Session

	// nextID assigns unique session IDs.
	nextID atomic.Uint64
}

// NewPool creates a session pool over the given dialer. No sessions are
// opened until first demand.
func NewPool(dialer Dialer, cfg PoolConfig) *Pool {
	cfg.applyDefaults()
	metrics.SessionsMax.Set(float64(cfg.MaxSessions))
	log.Printf("[pool] initialized: max_sessions=%d, acquire_timeout=%s",
		cfg.MaxSessions, cfg.AcquireTimeout)
	return &Pool{
		dialer: dialer,
		cfg:    cfg,
		idle:   make([]*Session, 0, cfg.MaxSessions),
	}
}

// Acquire returns a live session, exclusively owned by the caller until
// released. An idle session is reused when available; otherwise a new one
// is opened if the pool is under capacity; otherwise the caller blocks
// until a session is freed, the acquire timeout elapses (ErrPoolExhausted),
// or the context is cancelled.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	start := time.Now()
	deadline := start.Add(p.cfg.AcquireTimeout)

	for {
		p.mu.Lock()

		s, stale := p.popIdleLocked()
		if s != nil {
			s.markCheckedOut()
			p.updateGaugesLocked()
			p.mu.Unlock()
			closeSessions(stale)
			metrics.SessionOps.WithLabelValues("acquired").Inc()
			return s, nil
		}

		if p.outstanding < p.cfg.MaxSessions {
			// Reserve the slot before dialing so concurrent acquirers
			// cannot overshoot the ceiling.
			p.outstanding++
			p.updateGaugesLocked()
			p.mu.Unlock()
			closeSessions(stale)

			conn, err := p.dialer.Open(ctx)
			if err != nil {
				p.mu.Lock()
				p.outstanding--
				p.updateGaugesLocked()
				waiter := p.popWaiterLocked()
				p.mu.Unlock()
				if waiter != nil {
					waiter <- nil
				}
				metrics.SessionOps.WithLabelValues("create_failed").Inc()
				return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
			}

			s := newSession(p.nextID.Add(1), conn)
			s.markCheckedOut()
			metrics.SessionOps.WithLabelValues("acquired").Inc()
			return s, nil
		}

		// At capacity with nothing idle: join the wait queue.
		waiter := make(chan *Session, 1)
		p.waiters = append(p.waiters, waiter)
		p.mu.Unlock()
		closeSessions(stale)

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if s := p.cancelWait(waiter); s != nil {
				metrics.SessionOps.WithLabelValues("acquired").Inc()
				return s, nil
			}
			metrics.SessionOps.WithLabelValues("timeout").Inc()
			return nil, fmt.Errorf("%w: no session freed within %s", ErrPoolExhausted, p.cfg.AcquireTimeout)
		}

		timer := time.NewTimer(remaining)
		select {
		case s := <-waiter:
			timer.Stop()
			if s != nil {
				metrics.AcquireWait.Observe(time.Since(start).Seconds())
				metrics.SessionOps.WithLabelValues("acquired").Inc()
				return s, nil
			}
			// A slot was freed rather than a session handed over; retry.

		case <-timer.C:
			if s := p.cancelWait(waiter); s != nil {
				// A release raced the timeout and handed us a session;
				// keep it rather than leak it.
				metrics.SessionOps.WithLabelValues("acquired").Inc()
				return s, nil
			}
			metrics.SessionOps.WithLabelValues("timeout").Inc()
			return nil, fmt.Errorf("%w: no session freed within %s", ErrPoolExhausted, p.cfg.AcquireTimeout)

		case <-ctx.Done():
			timer.Stop()
			if s := p.cancelWait(waiter); s != nil {
				// Hand the in-flight session back to the pool.
				p.Release(s)
			}
			metrics.SessionOps.WithLabelValues("cancelled").Inc()
			return nil, ctx.Err()
		}
	}
}

// Release returns a session to the pool. The session is probed for
// liveness first: a healthy session goes back into circulation (handed
// directly to the longest-waiting acquirer when one is blocked), a dead
// one is closed and its slot freed. Releasing a session that is not
// checked out is a logged no-op.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}
	if !s.release() {
		log.Printf("[pool] WARNING: ignoring release of session %d (not checked out)", s.ID())
		return
	}

	probeCtx, cancel := context.WithTimeout(context.Background(), p.cfg.PingTimeout)
	err := s.conn.Ping(probeCtx)
	cancel()

	if err != nil {
		log.Printf("[pool] session %d failed liveness probe, discarding: %v", s.ID(), err)
		s.Close()
		metrics.SessionOps.WithLabelValues("discarded").Inc()

		p.mu.Lock()
		p.outstanding--
		waiter := p.popWaiterLocked()
		p.updateGaugesLocked()
		p.mu.Unlock()

		// The freed slot lets a blocked acquirer dial a replacement.
		if waiter != nil {
			waiter <- nil
		}
		return
	}

	p.mu.Lock()
	if waiter := p.popWaiterLocked(); waiter != nil {
		s.markCheckedOut()
		p.updateGaugesLocked()
		p.mu.Unlock()
		waiter <- s
		metrics.SessionOps.WithLabelValues("released").Inc()
		return
	}
	p.idle = append(p.idle, s)
	p.updateGaugesLocked()
	p.mu.Unlock()
	metrics.SessionOps.WithLabelValues("released").Inc()
}

// Close drains and closes every idle session. Sessions currently checked
// out are not interrupted; holders are expected to release them before
// teardown. The pool stays usable afterwards: a subsequent Acquire opens a
// fresh session. Calling Close again is safe.
func (p *Pool) Close() {
	p.mu.Lock()
	drained := p.idle
	p.idle = nil
	p.outstanding -= len(drained)

	// Each closed idle session frees a slot; wake that many waiters so
	// they can dial fresh sessions.
	var woken []chan *Session
	for i := 0; i < len(drained) && len(p.waiters) > 0; i++ {
		woken = append(woken, p.waiters[0])
		p.waiters = p.waiters[1:]
	}
	p.updateGaugesLocked()
	p.mu.Unlock()

	for _, s := range drained {
		s.Close()
	}
	for _, w := range woken {
		w <- nil
	}

	if len(drained) > 0 {
		log.Printf("[pool] closed %d idle sessions", len(drained))
	}
}

// Stats reports a snapshot of the pool's state.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Active:    p.outstanding - len(p.idle),
		Idle:      len(p.idle),
		Max:       p.cfg.MaxSessions,
		WaitQueue: len(p.waiters),
	}
}

// PoolStats holds pool statistics.
type PoolStats struct {
	Active    int `json:"active"`
	Idle      int `json:"idle"`
	Max       int `json:"max"`
	WaitQueue int `json:"wait_queue"`
}

// popIdleLocked removes and returns the most recently used idle session,
// setting aside any that exceeded the idle ceiling. Stale sessions have
// their slots freed here but must be closed by the caller after releasing
// p.mu: closing is a network round-trip for the HTTP driver and would
// stall the whole pool under the lock. Caller holds p.mu.
func (p *Pool) popIdleLocked() (*Session, []*Session) {
	var stale []*Session
	for len(p.idle) > 0 {
		n := len(p.idle) - 1
		s := p.idle[n]
		p.idle = p.idle[:n]

		if p.cfg.MaxIdleTime > 0 && s.idleDuration() > p.cfg.MaxIdleTime {
			stale = append(stale, s)
			p.outstanding--
			metrics.SessionOps.WithLabelValues("evicted").Inc()
			continue
		}
		return s, stale
	}
	return nil, stale
}

func closeSessions(sessions []*Session) {
	for _, s := range sessions {
		s.Close()
	}
}

// popWaiterLocked dequeues the longest-waiting acquirer, or nil.
// Caller holds p.mu.
func (p *Pool) popWaiterLocked() chan *Session {
	if len(p.waiters) == 0 {
		return nil
	}
	w := p.waiters[0]
	p.waiters = p.waiters[1:]
	return w
}

// cancelWait removes a waiter from the queue. When the waiter has already
// been dequeued by a releaser, the handoff is in flight on a buffered
// channel; cancelWait collects it and returns the session (which may be
// nil for a slot-freed wakeup).
func (p *Pool) cancelWait(waiter chan *Session) *Session {
	p.mu.Lock()
	for i, w := range p.waiters {
		if w == waiter {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return nil
		}
	}
	p.mu.Unlock()
	return <-waiter
}

func (p *Pool) updateGaugesLocked() {
	metrics.SessionsActive.Set(float64(p.outstanding - len(p.idle)))
	metrics.SessionsIdle.Set(float64(len(p.idle)))
}
