package engine

import (
	"testing"
	"time"
)

// recordingTerminator captures escalation signals instead of delivering
// them.
type recordingTerminator struct {
	graceful chan int
	forced   chan int
}

func newRecordingTerminator() *recordingTerminator {
	return &recordingTerminator{
		graceful: make(chan int, 4),
		forced:   make(chan int, 4),
	}
}

func (r *recordingTerminator) Graceful(pgid int) error {
	r.graceful <- pgid
	return nil
}

func (r *recordingTerminator) Forced(pgid int) error {
	r.forced <- pgid
	return nil
}

func expectSignal(t *testing.T, ch chan int, what string) int {
	t.Helper()
	select {
	case pgid := <-ch:
		return pgid
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s signal", what)
		return 0
	}
}

func expectNoSignal(t *testing.T, ch chan int, what string, wait time.Duration) {
	t.Helper()
	select {
	case <-ch:
		t.Fatalf("unexpected %s signal", what)
	case <-time.After(wait):
	}
}

func TestEnforcerCancelledByNaturalExit(t *testing.T) {
	handle := newRunHandle(42)
	handle.markRunning()
	term := newRecordingTerminator()

	enf := newEnforcer(handle, time.Hour, 10*time.Millisecond, term)
	go enf.watch()

	handle.markExited()
	enf.cancel()

	if enf.firedDeadline() {
		t.Fatalf("deadline fired on natural exit")
	}
	expectNoSignal(t, term.graceful, "graceful", 50*time.Millisecond)
	expectNoSignal(t, term.forced, "forced", 50*time.Millisecond)
}

func TestEnforcerEscalatesToForcedKill(t *testing.T) {
	handle := newRunHandle(42)
	handle.markRunning()
	term := newRecordingTerminator()

	enf := newEnforcer(handle, 20*time.Millisecond, 30*time.Millisecond, term)
	go enf.watch()

	if pgid := expectSignal(t, term.graceful, "graceful"); pgid != 42 {
		t.Fatalf("graceful signal to wrong group: %d", pgid)
	}
	if pgid := expectSignal(t, term.forced, "forced"); pgid != 42 {
		t.Fatalf("forced signal to wrong group: %d", pgid)
	}

	handle.markExited()
	enf.cancel()

	if !enf.firedDeadline() {
		t.Fatalf("deadline outcome not recorded")
	}
	if handle.Phase() != PhaseExited {
		t.Fatalf("handle phase: %v", handle.Phase())
	}
}

func TestEnforcerExitInsideGraceWindow(t *testing.T) {
	handle := newRunHandle(7)
	handle.markRunning()
	term := newRecordingTerminator()

	enf := newEnforcer(handle, 20*time.Millisecond, time.Hour, term)
	go enf.watch()

	expectSignal(t, term.graceful, "graceful")

	// The subject dies to the graceful signal; wait() confirms and the
	// enforcer is cancelled before the grace window elapses.
	handle.markExited()
	enf.cancel()

	if !enf.firedDeadline() {
		t.Fatalf("exit inside grace window must still be a deadline kill")
	}
	expectNoSignal(t, term.forced, "forced", 50*time.Millisecond)
}

func TestEnforcerStandsDownWhenAlreadyExited(t *testing.T) {
	handle := newRunHandle(7)
	handle.markRunning()
	handle.markExited()
	term := newRecordingTerminator()

	enf := newEnforcer(handle, 10*time.Millisecond, 10*time.Millisecond, term)
	go enf.watch()

	expectNoSignal(t, term.graceful, "graceful", 100*time.Millisecond)
	enf.cancel()

	if enf.firedDeadline() {
		t.Fatalf("deadline recorded for an exited handle")
	}
}

func TestEnforcerCancelIdempotent(t *testing.T) {
	handle := newRunHandle(7)
	handle.markRunning()
	enf := newEnforcer(handle, time.Hour, time.Hour, newRecordingTerminator())
	go enf.watch()

	handle.markExited()
	enf.cancel()
	enf.cancel()
}
