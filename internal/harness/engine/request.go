package engine

import "runbox/internal/harness/limits"

// Helper failure protocol: before exec, the helper reports errors on
// stderr prefixed with HelperSentinel and exits with one of the reserved
// codes below, so the engine can tell a launch failure from a subject that
// happened to pick the same exit code.
const (
	HelperSentinel = "runbox-init: "

	HelperExitSetup       = 125 // rlimit/chroot/chdir/env failure
	HelperExitNotRunnable = 126 // subject present but not executable
	HelperExitNotFound    = 127 // subject missing inside the root
)

// InitRequest is the JSON document fed to the runbox-init helper on stdin.
// The helper applies the rlimits, enters the root, and execs the program.
type InitRequest struct {
	RootDir string     `json:"rootDir"`
	Program string     `json:"program"`
	Args    []string   `json:"args"`
	Env     []string   `json:"env"`
	WorkDir string     `json:"workDir"`
	Rlimits limits.Set `json:"rlimits"`
}
