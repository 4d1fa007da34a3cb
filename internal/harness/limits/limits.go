// Package limits computes the resource constraints bound to a subject
// before its first instruction executes.
package limits

import (
	"time"

	"runbox/internal/harness/spec"
	appErr "runbox/pkg/errors"
)

const (
	// DefaultGraceWindow separates the graceful termination signal from
	// the unconditional kill during deadline escalation.
	DefaultGraceWindow = 500 * time.Millisecond

	// DefaultStreamCapBytes bounds retained stdout/stderr per stream.
	DefaultStreamCapBytes int64 = 64 * 1024
)

// Set is the rlimit configuration applied in the child before exec. Zero
// values mean no ceiling. It crosses the init-request boundary as JSON.
type Set struct {
	CPUSeconds        uint64 `json:"cpuSeconds"`
	FileSizeBytes     uint64 `json:"fileSizeBytes"`
	AddressSpaceBytes uint64 `json:"addressSpaceBytes"`
	MaxProcesses      uint64 `json:"maxProcesses"`
}

// Normalize validates a ResourceLimit and fills documented defaults. The
// time limit is mandatory; ceilings stay optional.
func Normalize(l spec.ResourceLimit) (spec.ResourceLimit, error) {
	if l.TimeLimit <= 0 {
		return spec.ResourceLimit{}, appErr.ValidationError("time_limit", "required")
	}
	if l.MemoryMB < 0 || l.OutputMB < 0 || l.PIDs < 0 || l.StreamCapBytes < 0 {
		return spec.ResourceLimit{}, appErr.ValidationError("limits", "negative ceiling")
	}
	if l.GraceWindow <= 0 {
		l.GraceWindow = DefaultGraceWindow
	}
	if l.StreamCapBytes == 0 {
		l.StreamCapBytes = DefaultStreamCapBytes
	}
	return l, nil
}

// Build derives the rlimit set from a normalized ResourceLimit. RLIMIT_CPU
// backs the wall-clock deadline for spinning subjects; the deadline
// enforcer covers sleeping ones.
func Build(l spec.ResourceLimit) (Set, error) {
	if l.TimeLimit <= 0 {
		return Set{}, appErr.ValidationError("time_limit", "required")
	}
	set := Set{
		CPUSeconds: ceilSeconds(l.TimeLimit),
	}
	if l.OutputMB > 0 {
		set.FileSizeBytes = uint64(l.OutputMB) * 1024 * 1024
	}
	if l.MemoryMB > 0 {
		set.AddressSpaceBytes = uint64(l.MemoryMB) * 1024 * 1024
	}
	if l.PIDs > 0 {
		set.MaxProcesses = uint64(l.PIDs)
	}
	return set, nil
}

func ceilSeconds(d time.Duration) uint64 {
	secs := uint64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	if secs == 0 {
		secs = 1
	}
	return secs
}
