// Package engine launches one subject inside the prepared isolated root,
// enforces its wall-clock deadline, and reports raw execution
// observations.
package engine

import (
	"context"
	"time"

	"runbox/internal/harness/result"
	"runbox/internal/harness/spec"
)

// Engine runs one invocation to completion. A non-nil error means the
// harness could not run the subject; once the subject has launched, Run
// always returns a report, no matter what the subject does.
type Engine interface {
	Run(ctx context.Context, inv spec.InvocationSpec) (RunReport, error)
}

// Config controls engine behavior.
type Config struct {
	// HelperPath locates the runbox-init launch helper. Relative values
	// are resolved through PATH.
	HelperPath string

	// DrainTimeout bounds the final pipe drain after process death, in
	// case a stray holder of the write end escaped the process group.
	DrainTimeout time.Duration
}

// RunReport carries everything the engine observed about one run.
type RunReport struct {
	Outcome    result.TerminationOutcome
	Stdout     result.Stream
	Stderr     result.Stream
	WallTime   time.Duration
	CPUTime    time.Duration
	StartedAt  time.Time
	FinishedAt time.Time
}
