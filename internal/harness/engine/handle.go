package engine

import (
	"sync"
	"time"
)

// Phase is the lifecycle state of one in-flight run.
type Phase string

const (
	PhaseLaunched    Phase = "launched"
	PhaseRunning     Phase = "running"
	PhaseTerminating Phase = "terminating"
	PhaseExited      Phase = "exited"
)

// RunHandle represents one in-flight execution. The launcher owns it for
// its lifetime; phase transitions are the only mutations, so deadline
// escalation decisions are a pure function of phase.
type RunHandle struct {
	mu        sync.Mutex
	pid       int
	pgid      int
	startedAt time.Time
	phase     Phase
}

func newRunHandle(pid int) *RunHandle {
	return &RunHandle{
		pid:       pid,
		pgid:      pid, // the subject is its own group leader
		startedAt: time.Now(),
		phase:     PhaseLaunched,
	}
}

// PID returns the helper/subject process id.
func (h *RunHandle) PID() int { return h.pid }

// PGID returns the process group id targeted by termination.
func (h *RunHandle) PGID() int { return h.pgid }

// StartedAt returns the launch timestamp.
func (h *RunHandle) StartedAt() time.Time { return h.startedAt }

// Phase returns the current lifecycle phase.
func (h *RunHandle) Phase() Phase {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.phase
}

func (h *RunHandle) markRunning() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.phase == PhaseLaunched {
		h.phase = PhaseRunning
	}
}

// beginTermination moves the handle into the terminating phase. It reports
// false when the process has already exited, which tells the enforcer to
// stand down without sending any signal.
func (h *RunHandle) beginTermination() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.phase == PhaseExited {
		return false
	}
	h.phase = PhaseTerminating
	return true
}

// markExited finalizes the handle once wait() has confirmed process death.
func (h *RunHandle) markExited() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.phase = PhaseExited
}
