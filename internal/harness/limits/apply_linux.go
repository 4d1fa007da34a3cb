//go:build linux

package limits

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Apply installs the rlimit set on the calling process. It runs in the
// launch helper between fork and exec, so every ceiling is in force before
// the subject's first instruction. Any failure must abort the launch: an
// unconstrained run is a correctness violation, not a degraded mode.
func Apply(set Set) error {
	if set.CPUSeconds > 0 {
		// Soft limit delivers SIGXCPU, hard limit one second later
		// delivers SIGKILL if the subject masks it.
		lim := unix.Rlimit{Cur: set.CPUSeconds, Max: set.CPUSeconds + 1}
		if err := unix.Setrlimit(unix.RLIMIT_CPU, &lim); err != nil {
			return fmt.Errorf("set rlimit cpu: %w", err)
		}
	}
	if set.FileSizeBytes > 0 {
		lim := unix.Rlimit{Cur: set.FileSizeBytes, Max: set.FileSizeBytes}
		if err := unix.Setrlimit(unix.RLIMIT_FSIZE, &lim); err != nil {
			return fmt.Errorf("set rlimit fsize: %w", err)
		}
	}
	if set.AddressSpaceBytes > 0 {
		lim := unix.Rlimit{Cur: set.AddressSpaceBytes, Max: set.AddressSpaceBytes}
		if err := unix.Setrlimit(unix.RLIMIT_AS, &lim); err != nil {
			return fmt.Errorf("set rlimit as: %w", err)
		}
	}
	if set.MaxProcesses > 0 {
		lim := unix.Rlimit{Cur: set.MaxProcesses, Max: set.MaxProcesses}
		if err := unix.Setrlimit(unix.RLIMIT_NPROC, &lim); err != nil {
			return fmt.Errorf("set rlimit nproc: %w", err)
		}
	}
	return nil
}
