package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"runbox/internal/harness/engine"
	"runbox/internal/harness/fsdiff"
	"runbox/internal/harness/result"
	"runbox/internal/harness/spec"
	appErr "runbox/pkg/errors"
)

// fakeEngine stands in for the real launcher so orchestration can be
// tested without spawning processes.
type fakeEngine struct {
	calls   int
	lastInv spec.InvocationSpec
	report  engine.RunReport
	err     error
	hook    func() // runs between the two snapshots
}

func (f *fakeEngine) Run(_ context.Context, inv spec.InvocationSpec) (engine.RunReport, error) {
	f.calls++
	f.lastInv = inv
	if f.hook != nil {
		f.hook()
	}
	return f.report, f.err
}

func exitedReport() engine.RunReport {
	now := time.Now()
	return engine.RunReport{
		Outcome:    result.Exited(0),
		Stdout:     result.Stream{Data: []byte("ok\n")},
		WallTime:   42 * time.Millisecond,
		CPUTime:    7 * time.Millisecond,
		StartedAt:  now.Add(-42 * time.Millisecond),
		FinishedAt: now,
	}
}

// prepareRoot builds an isolated root with a work dir holding one seed
// file, and returns both host paths.
func prepareRoot(t *testing.T) (root, workHost string) {
	t.Helper()
	root = t.TempDir()
	workHost = filepath.Join(root, "work")
	if err := os.MkdirAll(workHost, 0o755); err != nil {
		t.Fatalf("mkdir work: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workHost, "seed.txt"), []byte("seed"), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return root, workHost
}

func baseInvocation(root string) spec.InvocationSpec {
	return spec.InvocationSpec{
		RootDir: root,
		Program: "/bin/subject",
		WorkDir: "/work",
		Limits:  spec.ResourceLimit{TimeLimit: time.Second},
	}
}

func TestRunRejectsIncompleteInvocation(t *testing.T) {
	eng := &fakeEngine{report: exitedReport()}
	h := New(eng)

	cases := []struct {
		name   string
		mutate func(*spec.InvocationSpec)
	}{
		{"missing root", func(inv *spec.InvocationSpec) { inv.RootDir = "" }},
		{"missing program", func(inv *spec.InvocationSpec) { inv.Program = "" }},
		{"missing workdir", func(inv *spec.InvocationSpec) { inv.WorkDir = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root, _ := prepareRoot(t)
			inv := baseInvocation(root)
			tc.mutate(&inv)

			env := h.Run(context.Background(), inv)
			if !env.Failed() {
				t.Fatalf("expected setup-error envelope")
			}
			if env.Error.Code == 0 || env.Error.Message == "" {
				t.Fatalf("error record incomplete: %+v", env.Error)
			}
		})
	}
	if eng.calls != 0 {
		t.Fatalf("engine must not launch on invalid input, got %d calls", eng.calls)
	}
}

func TestRunRejectsBadLimits(t *testing.T) {
	eng := &fakeEngine{report: exitedReport()}
	h := New(eng)
	root, _ := prepareRoot(t)
	inv := baseInvocation(root)
	inv.Limits.TimeLimit = 0

	env := h.Run(context.Background(), inv)
	if !env.Failed() {
		t.Fatalf("expected setup-error envelope")
	}
	if eng.calls != 0 {
		t.Fatalf("engine launched despite invalid limits")
	}
}

func TestRunPreSnapshotFailureBlocksLaunch(t *testing.T) {
	eng := &fakeEngine{report: exitedReport()}
	h := New(eng)
	root := t.TempDir() // no work dir underneath
	inv := baseInvocation(root)

	env := h.Run(context.Background(), inv)
	if !env.Failed() {
		t.Fatalf("expected setup-error envelope")
	}
	if env.Error.Code != int(appErr.SnapshotFailed) {
		t.Fatalf("code = %d, want %d", env.Error.Code, appErr.SnapshotFailed)
	}
	if eng.calls != 0 {
		t.Fatalf("engine launched despite snapshot failure")
	}
}

func TestRunAssemblesRecordWithDelta(t *testing.T) {
	root, workHost := prepareRoot(t)
	eng := &fakeEngine{
		report: exitedReport(),
		hook: func() {
			if err := os.WriteFile(filepath.Join(workHost, "made.txt"), []byte("new"), 0o644); err != nil {
				t.Fatalf("hook write: %v", err)
			}
		},
	}
	h := New(eng)
	inv := baseInvocation(root)

	env := h.Run(context.Background(), inv)
	if env.Failed() {
		t.Fatalf("unexpected failure: %+v", env.Error)
	}
	rec := env.Result
	if rec.InvocationID == "" || rec.InvocationID != env.InvocationID {
		t.Fatalf("invocation id mismatch: %q vs %q", rec.InvocationID, env.InvocationID)
	}
	if rec.Outcome.Kind != result.OutcomeExited {
		t.Fatalf("outcome: %+v", rec.Outcome)
	}
	if rec.WallTimeMs != 42 || rec.CPUTimeMs != 7 {
		t.Fatalf("times: wall=%d cpu=%d", rec.WallTimeMs, rec.CPUTimeMs)
	}
	if len(rec.Delta) != 1 {
		t.Fatalf("delta entries: %+v", rec.Delta)
	}
	if e := rec.Delta[0]; e.Path != "made.txt" || e.Kind != fsdiff.ChangeCreated {
		t.Fatalf("delta entry: %+v", e)
	}

	// The engine must see normalized limits and the defaulted observe dir.
	if eng.lastInv.Limits.GraceWindow <= 0 || eng.lastInv.Limits.StreamCapBytes <= 0 {
		t.Fatalf("limits not normalized: %+v", eng.lastInv.Limits)
	}
	if eng.lastInv.ObserveDir != inv.WorkDir {
		t.Fatalf("observe dir = %q, want work dir", eng.lastInv.ObserveDir)
	}
}

func TestRunEngineErrorBecomesErrorRecord(t *testing.T) {
	root, _ := prepareRoot(t)
	eng := &fakeEngine{err: appErr.SetupFailure(appErr.SubjectNotFound, "subject program: no such file")}
	h := New(eng)

	env := h.Run(context.Background(), baseInvocation(root))
	if !env.Failed() {
		t.Fatalf("expected setup-error envelope")
	}
	if env.Error.Code != int(appErr.SubjectNotFound) {
		t.Fatalf("code = %d, want %d", env.Error.Code, appErr.SubjectNotFound)
	}
	if env.Result != nil {
		t.Fatalf("envelope carries both result and error")
	}
}

func TestRunPostSnapshotFailureDegrades(t *testing.T) {
	root, workHost := prepareRoot(t)
	eng := &fakeEngine{
		report: exitedReport(),
		hook: func() {
			if err := os.RemoveAll(workHost); err != nil {
				t.Fatalf("hook remove: %v", err)
			}
		},
	}
	h := New(eng)

	env := h.Run(context.Background(), baseInvocation(root))
	if env.Failed() {
		t.Fatalf("observation failure must not lose the record: %+v", env.Error)
	}
	if len(env.Result.Delta) != 1 {
		t.Fatalf("delta: %+v", env.Result.Delta)
	}
	if e := env.Result.Delta[0]; e.Kind != fsdiff.ChangeUnknown || e.Path != "." {
		t.Fatalf("degraded entry: %+v", e)
	}
}
