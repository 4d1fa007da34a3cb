//go:build linux

// runbox-init is the launch helper: it runs as the process-group leader,
// applies resource limits, enters the prepared isolated root, and execs
// the subject program. Pre-exec failures are reported to the parent
// through a reserved exit code and a sentinel-prefixed stderr line.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"runbox/internal/harness/engine"
	"runbox/internal/harness/limits"
)

func main() {
	req, err := decodeRequest(os.Stdin)
	if err != nil {
		fail(engine.HelperExitSetup, "decode init request: %v", err)
	}
	if err := validateRequest(req); err != nil {
		fail(engine.HelperExitSetup, "invalid init request: %v", err)
	}

	if req.RootDir != "" {
		if err := unix.Chroot(req.RootDir); err != nil {
			fail(engine.HelperExitSetup, "chroot: %v", err)
		}
		if err := os.Chdir("/"); err != nil {
			fail(engine.HelperExitSetup, "chdir root: %v", err)
		}
	}

	if err := os.Chdir(req.WorkDir); err != nil {
		fail(engine.HelperExitSetup, "chdir workdir: %v", err)
	}

	// Limits go on last so every ceiling is in force when the subject's
	// first instruction runs. Failure aborts: running unconstrained is
	// not a degraded mode.
	if err := limits.Apply(req.Rlimits); err != nil {
		fail(engine.HelperExitSetup, "apply limits: %v", err)
	}

	program := req.Program
	info, err := os.Stat(program)
	if err != nil {
		fail(engine.HelperExitNotFound, "subject program: %v", err)
	}
	if info.IsDir() || info.Mode()&0111 == 0 {
		fail(engine.HelperExitNotRunnable, "subject program not executable: %s", program)
	}

	env := buildEnv(req.Env)
	os.Clearenv()
	for _, kv := range env {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if err := os.Setenv(parts[0], parts[1]); err != nil {
			fail(engine.HelperExitSetup, "set env: %v", err)
		}
	}

	argv := append([]string{program}, req.Args...)
	if err := unix.Exec(program, argv, env); err != nil {
		fail(engine.HelperExitSetup, "exec subject: %v", err)
	}
}

func decodeRequest(r io.Reader) (engine.InitRequest, error) {
	dec := json.NewDecoder(r)
	var req engine.InitRequest
	if err := dec.Decode(&req); err != nil {
		return engine.InitRequest{}, err
	}
	return req, nil
}

func validateRequest(req engine.InitRequest) error {
	if req.Program == "" {
		return fmt.Errorf("program is required")
	}
	if req.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if !filepath.IsAbs(req.Program) {
		return fmt.Errorf("program path must be absolute")
	}
	return nil
}

func buildEnv(env []string) []string {
	if len(env) > 0 {
		return env
	}
	return []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"}
}

func fail(code int, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(os.Stderr, engine.HelperSentinel+format+"\n", args...)
	os.Exit(code)
}
