//go:build linux

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"runbox/internal/harness/collect"
	"runbox/internal/harness/limits"
	"runbox/internal/harness/result"
	"runbox/internal/harness/spec"
	appErr "runbox/pkg/errors"
	"runbox/pkg/utils/logger"
)

const defaultDrainTimeout = 2 * time.Second

type linuxEngine struct {
	cfg Config
}

// NewEngine creates the Linux execution engine.
func NewEngine(cfg Config) (Engine, error) {
	if cfg.HelperPath == "" {
		cfg.HelperPath = "runbox-init"
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	return &linuxEngine{cfg: cfg}, nil
}

func (e *linuxEngine) Run(ctx context.Context, inv spec.InvocationSpec) (RunReport, error) {
	if err := validateInvocation(inv); err != nil {
		return RunReport{}, err
	}

	helperPath, err := exec.LookPath(e.cfg.HelperPath)
	if err != nil {
		return RunReport{}, appErr.Wrapf(err, appErr.HelperNotFound, "resolve launch helper failed")
	}

	rlimits, err := limits.Build(inv.Limits)
	if err != nil {
		return RunReport{}, appErr.Wrap(err, appErr.LimitError)
	}

	initReq := InitRequest{
		RootDir: inv.RootDir,
		Program: inv.Program,
		Args:    inv.Args,
		Env:     inv.Env,
		WorkDir: inv.WorkDir,
		Rlimits: rlimits,
	}
	stdinPipe := jsonToPipe(initReq)
	defer stdinPipe.Close()

	cmd := exec.Command(helperPath)
	cmd.Stdin = stdinPipe
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return RunReport{}, appErr.Wrapf(err, appErr.PipeSetupFailed, "stdout pipe failed")
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return RunReport{}, appErr.Wrapf(err, appErr.PipeSetupFailed, "stderr pipe failed")
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	startedAt := time.Now()
	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return RunReport{}, appErr.Wrapf(err, appErr.LaunchError, "start launch helper failed")
	}
	// The parent's copies of the write ends must go away so the readers
	// see EOF once every process in the group is dead.
	closeAll(stdoutW, stderrW)

	handle := newRunHandle(cmd.Process.Pid)
	handle.markRunning()

	collector := collect.New(inv.Limits.StreamCapBytes)
	collector.Drain(stdoutR, stderrR)

	enf := newEnforcer(handle, inv.Limits.TimeLimit, inv.Limits.GraceWindow, groupTerminator{})
	go enf.watch()

	waitErr := cmd.Wait()
	handle.markExited()
	enf.cancel()

	// Sweep stragglers the subject forked and abandoned inside its group.
	// On a clean exit the group is already empty and this is a no-op.
	_ = unix.Kill(-handle.PGID(), unix.SIGKILL)

	e.waitDrain(ctx, collector, stdoutR, stderrR)
	finishedAt := time.Now()

	outcome, setupErr := classifyExit(enf.firedDeadline(), waitErr, cmd.ProcessState, collector.Stderr().Bytes())
	if setupErr != nil {
		logger.Warn(ctx, "launch helper failed",
			zap.String("program", inv.Program),
			zap.Error(setupErr))
		return RunReport{}, setupErr
	}

	return RunReport{
		Outcome:    outcome,
		Stdout:     result.Stream{Data: collector.Stdout().Bytes(), Truncated: collector.Stdout().Truncated()},
		Stderr:     result.Stream{Data: collector.Stderr().Bytes(), Truncated: collector.Stderr().Truncated()},
		WallTime:   finishedAt.Sub(startedAt),
		CPUTime:    cpuTime(cmd.ProcessState),
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}, nil
}

// waitDrain waits for both streams to hit EOF. If a write-end holder
// escaped the process group, the readers are force-closed after the drain
// timeout so the harness never hangs.
func (e *linuxEngine) waitDrain(ctx context.Context, collector *collect.Collector, readers ...*os.File) {
	done := make(chan struct{})
	go func() {
		collector.Wait()
		close(done)
	}()

	timer := time.NewTimer(e.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		logger.Warn(ctx, "stream drain timed out, forcing pipe closure")
		for _, r := range readers {
			_ = r.Close()
		}
		<-done
	}
}

func validateInvocation(inv spec.InvocationSpec) error {
	if inv.Program == "" {
		return appErr.ValidationError("program", "required")
	}
	if inv.WorkDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	if inv.Limits.TimeLimit <= 0 {
		return appErr.ValidationError("time_limit", "required")
	}
	if inv.RootDir != "" {
		info, err := os.Stat(inv.RootDir)
		if err != nil || !info.IsDir() {
			return appErr.Newf(appErr.RootNotPrepared, "isolated root not prepared: %s", inv.RootDir)
		}
	} else if !filepath.IsAbs(inv.Program) {
		return appErr.ValidationError("program", "must be absolute without an isolated root")
	}

	// The helper re-checks after chroot; this is the fail-fast pass
	// before any process is spawned.
	hostProgram := filepath.Join(inv.RootDir, inv.Program)
	info, err := os.Stat(hostProgram)
	if err != nil {
		return appErr.Newf(appErr.SubjectNotFound, "subject program not found: %s", inv.Program)
	}
	if info.IsDir() || info.Mode()&0111 == 0 {
		return appErr.Newf(appErr.SubjectNotRunnable, "subject program not executable: %s", inv.Program)
	}
	hostWorkDir := filepath.Join(inv.RootDir, inv.WorkDir)
	if info, err := os.Stat(hostWorkDir); err != nil || !info.IsDir() {
		return appErr.Newf(appErr.WorkDirInvalid, "working directory invalid: %s", inv.WorkDir)
	}
	return nil
}

// classifyExit maps process death to a termination outcome. The deadline
// path wins over anything observed afterward; helper failures surface as
// setup errors, never as subject outcomes.
func classifyExit(deadlineFired bool, waitErr error, state *os.ProcessState, stderr []byte) (result.TerminationOutcome, error) {
	if state == nil {
		return result.TerminationOutcome{}, appErr.Wrapf(waitErr, appErr.LaunchError, "wait for subject failed")
	}
	if deadlineFired {
		return result.DeadlineKilled(), nil
	}

	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return result.TerminationOutcome{}, appErr.New(appErr.InternalError).WithMessage("unexpected wait status type")
	}

	switch {
	case ws.Exited():
		code := ws.ExitStatus()
		if msg, isHelper := helperFailure(code, stderr); isHelper {
			switch code {
			case HelperExitNotFound:
				return result.TerminationOutcome{}, appErr.SetupFailure(appErr.SubjectNotFound, msg)
			case HelperExitNotRunnable:
				return result.TerminationOutcome{}, appErr.SetupFailure(appErr.SubjectNotRunnable, msg)
			default:
				return result.TerminationOutcome{}, appErr.SetupFailure(appErr.LaunchError, msg)
			}
		}
		return result.Exited(code), nil
	case ws.Signaled():
		switch ws.Signal() {
		case unix.SIGXCPU:
			return result.LimitKilled(result.LimitCPU), nil
		case unix.SIGXFSZ:
			return result.LimitKilled(result.LimitOutput), nil
		default:
			return result.Signaled(ws.Signal().String()), nil
		}
	}
	return result.TerminationOutcome{}, appErr.New(appErr.InternalError).WithMessage("process neither exited nor signaled")
}

// helperFailure checks for the helper's pre-exec failure protocol: a
// reserved exit code plus the sentinel prefix on stderr.
func helperFailure(code int, stderr []byte) (string, bool) {
	if code != HelperExitSetup && code != HelperExitNotRunnable && code != HelperExitNotFound {
		return "", false
	}
	if !bytes.HasPrefix(stderr, []byte(HelperSentinel)) {
		return "", false
	}
	line := stderr[len(HelperSentinel):]
	if idx := bytes.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	return string(line), true
}

func cpuTime(state *os.ProcessState) time.Duration {
	if state == nil {
		return 0
	}
	usage, ok := state.SysUsage().(*syscall.Rusage)
	if !ok {
		return 0
	}
	utime := time.Duration(usage.Utime.Sec)*time.Second + time.Duration(usage.Utime.Usec)*time.Microsecond
	stime := time.Duration(usage.Stime.Sec)*time.Second + time.Duration(usage.Stime.Usec)*time.Microsecond
	return utime + stime
}

func jsonToPipe(req InitRequest) io.ReadCloser {
	reader, writer := io.Pipe()
	go func() {
		enc := json.NewEncoder(writer)
		err := enc.Encode(req)
		_ = writer.CloseWithError(err)
	}()
	return reader
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// groupTerminator delivers real signals to the subject's process group.
type groupTerminator struct{}

func (groupTerminator) Graceful(pgid int) error {
	return unix.Kill(-pgid, unix.SIGTERM)
}

func (groupTerminator) Forced(pgid int) error {
	return unix.Kill(-pgid, unix.SIGKILL)
}
