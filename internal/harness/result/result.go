// Package result defines the termination outcome taxonomy and the final
// record handed to the reporting collaborator.
package result

import (
	"time"

	"runbox/internal/harness/fsdiff"
)

// OutcomeKind tags how a subject run ended.
type OutcomeKind string

const (
	OutcomeExited        OutcomeKind = "exited"
	OutcomeSignaled      OutcomeKind = "signaled"
	OutcomeDeadline      OutcomeKind = "deadline"
	OutcomeResourceLimit OutcomeKind = "resource-limit"
)

// LimitKind names the resource whose ceiling killed the subject.
type LimitKind string

const (
	LimitCPU    LimitKind = "cpu"
	LimitOutput LimitKind = "output"
)

// TerminationOutcome is set exactly once per run, only after the process is
// confirmed no longer running.
type TerminationOutcome struct {
	Kind     OutcomeKind `json:"kind"`
	ExitCode int         `json:"exitCode,omitempty"`
	Signal   string      `json:"signal,omitempty"`
	Limit    LimitKind   `json:"limit,omitempty"`
}

// Exited builds the outcome for a normal exit with the given code.
func Exited(code int) TerminationOutcome {
	return TerminationOutcome{Kind: OutcomeExited, ExitCode: code}
}

// Signaled builds the outcome for a signal death not caused by the harness.
func Signaled(signal string) TerminationOutcome {
	return TerminationOutcome{Kind: OutcomeSignaled, Signal: signal}
}

// DeadlineKilled builds the outcome for a deadline-enforcer kill. It
// overrides any incidental exit observed during escalation.
func DeadlineKilled() TerminationOutcome {
	return TerminationOutcome{Kind: OutcomeDeadline}
}

// LimitKilled builds the outcome for a resource-ceiling kill.
func LimitKilled(kind LimitKind) TerminationOutcome {
	return TerminationOutcome{Kind: OutcomeResourceLimit, Limit: kind}
}

// Stream is one frozen captured stream with its truncation flag.
type Stream struct {
	Data      []byte `json:"data"`
	Truncated bool   `json:"truncated"`
}

// Record is the immutable aggregate for one completed subject run.
type Record struct {
	InvocationID string             `json:"invocationId"`
	Outcome      TerminationOutcome `json:"outcome"`
	Stdout       Stream             `json:"stdout"`
	Stderr       Stream             `json:"stderr"`
	WallTimeMs   int64              `json:"wallTimeMs"`
	CPUTimeMs    int64              `json:"cpuTimeMs"`
	Delta        []fsdiff.Entry     `json:"delta"`
	StartedAt    time.Time          `json:"startedAt"`
	FinishedAt   time.Time          `json:"finishedAt"`
}

// ErrorRecord reports that the harness itself could not run the subject.
type ErrorRecord struct {
	InvocationID string `json:"invocationId"`
	Code         int    `json:"code"`
	Message      string `json:"message"`
}

// Envelope is what crosses the reporting boundary: exactly one of Result or
// Error is set, exactly once per invocation.
type Envelope struct {
	InvocationID string       `json:"invocationId"`
	Result       *Record      `json:"result,omitempty"`
	Error        *ErrorRecord `json:"error,omitempty"`
}

// Failed reports whether the envelope carries a setup failure instead of a
// completed run.
func (e Envelope) Failed() bool {
	return e.Error != nil
}
