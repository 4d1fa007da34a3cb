// Package spec defines the invocation specification and resource limits.
package spec

import "time"

// ResourceLimit describes the constraints applied to one subject run.
// TimeLimit is required; the remaining ceilings are optional, but once set
// they are enforced, never advisory.
type ResourceLimit struct {
	TimeLimit      time.Duration // wall-clock deadline for the whole run
	GraceWindow    time.Duration // delay between graceful and forced kill
	MemoryMB       int64         // address-space ceiling, 0 = unlimited
	OutputMB       int64         // per-file write ceiling, 0 = unlimited
	StreamCapBytes int64         // retained stdout/stderr bytes, 0 = default
	PIDs           int64         // process count ceiling, 0 = unlimited
}

// InvocationSpec is the immutable input for one subject run. The isolated
// root is provisioned by the caller; the harness only enters it.
type InvocationSpec struct {
	RootDir    string   // isolated root on the host
	Program    string   // subject path as seen inside the root
	Args       []string // argument list, not including the program itself
	Env        []string // KEY=VALUE pairs; empty means a minimal default
	WorkDir    string   // working directory as seen inside the root
	ObserveDir string   // subtree diffed for filesystem changes; defaults to WorkDir
	Limits     ResourceLimit
}
