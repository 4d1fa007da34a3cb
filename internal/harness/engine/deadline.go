package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

// terminator delivers two-level termination to a process group. Signal
// dispatch sits behind this interface so escalation logic stays portable
// and testable without touching real processes.
type terminator interface {
	Graceful(pgid int) error
	Forced(pgid int) error
}

// enforcer guarantees bounded wall-clock lifetime for exactly one run
// handle. It is owned per run, never shared, and needs no cooperation from
// the subject.
type enforcer struct {
	handle *RunHandle
	limit  time.Duration
	grace  time.Duration
	term   terminator

	fired    atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
	idle     chan struct{}
}

func newEnforcer(handle *RunHandle, limit, grace time.Duration, term terminator) *enforcer {
	return &enforcer{
		handle: handle,
		limit:  limit,
		grace:  grace,
		term:   term,
		done:   make(chan struct{}),
		idle:   make(chan struct{}),
	}
}

// watch races the deadline timer against natural exit. On expiry it
// escalates: graceful signal to the group, fixed grace window, then an
// unconditional kill so the group cannot survive a masked first signal.
func (e *enforcer) watch() {
	defer close(e.idle)

	timer := time.NewTimer(e.limit)
	defer timer.Stop()

	select {
	case <-e.done:
		return
	case <-timer.C:
	}

	// The subject may exit in the same instant the timer fires; the phase
	// machine decides, so an exited handle never gets a stray signal.
	if !e.handle.beginTermination() {
		return
	}
	e.fired.Store(true)
	_ = e.term.Graceful(e.handle.PGID())

	grace := time.NewTimer(e.grace)
	defer grace.Stop()
	select {
	case <-e.done:
		// Exited inside the grace window. The outcome is still a
		// deadline kill: the limit had already been exceeded.
		return
	case <-grace.C:
	}
	_ = e.term.Forced(e.handle.PGID())
}

// cancel stops the enforcer. Safe to call multiple times and after expiry.
func (e *enforcer) cancel() {
	e.stopOnce.Do(func() { close(e.done) })
	<-e.idle
}

// firedDeadline reports whether the deadline path was taken. Valid after
// cancel has returned.
func (e *enforcer) firedDeadline() bool {
	return e.fired.Load()
}
