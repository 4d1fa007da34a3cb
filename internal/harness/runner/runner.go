// Package runner orchestrates one invocation end to end and assembles the
// final result record.
package runner

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"runbox/internal/harness/engine"
	"runbox/internal/harness/fsdiff"
	"runbox/internal/harness/limits"
	"runbox/internal/harness/result"
	"runbox/internal/harness/spec"
	appErr "runbox/pkg/errors"
	"runbox/pkg/utils/logger"
)

// Harness runs one invocation at a time against one isolated root.
// Concurrent invocations against the same root must be serialized by the
// caller.
type Harness struct {
	eng engine.Engine
}

// New creates a harness backed by the given engine.
func New(eng engine.Engine) *Harness {
	return &Harness{eng: eng}
}

// Run executes one invocation and always returns exactly one envelope:
// either a complete result record or a setup-error record. It never
// returns partial data and never hangs past the deadline plus the grace
// window.
func (h *Harness) Run(ctx context.Context, inv spec.InvocationSpec) result.Envelope {
	id := uuid.NewString()
	ctx = context.WithValue(ctx, "invocation_id", id)

	if err := validateInvocation(inv); err != nil {
		return setupEnvelope(ctx, id, err)
	}

	normalized, err := limits.Normalize(inv.Limits)
	if err != nil {
		return setupEnvelope(ctx, id, err)
	}
	inv.Limits = normalized
	if inv.ObserveDir == "" {
		inv.ObserveDir = inv.WorkDir
	}

	// Pre-run snapshot precedes launch; a root we cannot index is a setup
	// failure, caught before any process exists.
	observedHost := filepath.Join(inv.RootDir, inv.ObserveDir)
	before, err := fsdiff.Take(observedHost)
	if err != nil {
		return setupEnvelope(ctx, id, err)
	}

	report, err := h.eng.Run(ctx, inv)
	if err != nil {
		return setupEnvelope(ctx, id, err)
	}

	// Diffing happens strictly after termination is finalized, so no
	// half-written file is observed.
	delta := diffAfterRun(ctx, before, observedHost)

	record := result.Record{
		InvocationID: id,
		Outcome:      report.Outcome,
		Stdout:       report.Stdout,
		Stderr:       report.Stderr,
		WallTimeMs:   report.WallTime.Milliseconds(),
		CPUTimeMs:    report.CPUTime.Milliseconds(),
		Delta:        delta,
		StartedAt:    report.StartedAt,
		FinishedAt:   report.FinishedAt,
	}

	logger.Info(ctx, "invocation completed",
		zap.String("outcome", string(report.Outcome.Kind)),
		zap.Int64("wallMs", record.WallTimeMs),
		zap.Int("deltaEntries", len(delta)))

	return result.Envelope{InvocationID: id, Result: &record}
}

// diffAfterRun takes the post-run snapshot and classifies changes. A
// post-run observation failure must not lose the record; it degrades to a
// single unknown entry.
func diffAfterRun(ctx context.Context, before *fsdiff.Snapshot, observedHost string) []fsdiff.Entry {
	after, err := fsdiff.Take(observedHost)
	if err != nil {
		logger.Warn(ctx, "post-run snapshot failed", zap.Error(err))
		return []fsdiff.Entry{{Path: ".", Kind: fsdiff.ChangeUnknown, Detail: err.Error()}}
	}
	return before.Diff(after)
}

func validateInvocation(inv spec.InvocationSpec) error {
	if inv.RootDir == "" {
		return appErr.ValidationError("root_dir", "required")
	}
	if inv.Program == "" {
		return appErr.ValidationError("program", "required")
	}
	if inv.WorkDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	return nil
}

func setupEnvelope(ctx context.Context, id string, err error) result.Envelope {
	logger.Error(ctx, "invocation setup failed", zap.Error(err))
	coded := appErr.GetError(err)
	return result.Envelope{
		InvocationID: id,
		Error: &result.ErrorRecord{
			InvocationID: id,
			Code:         int(coded.Code),
			Message:      coded.Error(),
		},
	}
}
