// runbox executes one untrusted test program inside a prepared isolated
// root, enforces its deadline, and emits exactly one result envelope.
//
// Exit code 0 means an envelope with a completed run (any outcome,
// including a deadline kill) was emitted; non-zero means the harness
// itself could not run the subject.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/shlex"

	"runbox/internal/harness/engine"
	"runbox/internal/harness/report"
	"runbox/internal/harness/result"
	"runbox/internal/harness/runner"
	"runbox/internal/harness/spec"
	"runbox/pkg/utils/logger"
)

type envFlags []string

func (e *envFlags) String() string { return strings.Join(*e, ",") }

func (e *envFlags) Set(value string) error {
	if !strings.Contains(value, "=") {
		return fmt.Errorf("env entry must be KEY=VALUE: %q", value)
	}
	*e = append(*e, value)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	var env envFlags
	configPath := flag.String("config", "", "path to yaml config file")
	rootDir := flag.String("root", "", "prepared isolated root on the host")
	execLine := flag.String("exec", "", "subject command line as seen inside the root")
	workDir := flag.String("workdir", "/", "working directory inside the root")
	observeDir := flag.String("observe", "", "subtree diffed for filesystem changes (defaults to workdir)")
	timeout := flag.Duration("timeout", 0, "wall-clock time limit (defaults from config)")
	reportAddr := flag.String("report", "", "orchestrator endpoint for the result envelope")
	spoolDir := flag.String("spool", "", "spool directory for undeliverable envelopes")
	flag.Var(&env, "env", "environment entry KEY=VALUE, repeatable")
	flag.Parse()

	cfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 2
	}
	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return 2
	}
	defer func() {
		_ = logger.Sync()
	}()

	fields, err := shlex.Split(*execLine)
	if err != nil || len(fields) == 0 {
		fmt.Fprintln(os.Stderr, "-exec must name the subject command line")
		return 2
	}

	timeLimit := *timeout
	if timeLimit <= 0 {
		timeLimit = cfg.Limits.TimeLimit.Std()
	}

	inv := spec.InvocationSpec{
		RootDir:    *rootDir,
		Program:    fields[0],
		Args:       fields[1:],
		Env:        env,
		WorkDir:    *workDir,
		ObserveDir: *observeDir,
		Limits: spec.ResourceLimit{
			TimeLimit:      timeLimit,
			GraceWindow:    cfg.Limits.GraceWindow.Std(),
			StreamCapBytes: cfg.Limits.StreamCapBytes,
			MemoryMB:       cfg.Limits.MemoryMB,
			OutputMB:       cfg.Limits.OutputMB,
			PIDs:           cfg.Limits.PIDs,
		},
	}

	eng, err := engine.NewEngine(cfg.Engine.toEngineConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init engine failed: %v\n", err)
		return 2
	}

	reporter, err := buildReporter(cfg, *reportAddr, *spoolDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init reporter failed: %v\n", err)
		return 2
	}

	ctx := context.Background()
	envelope := runner.New(eng).Run(ctx, inv)

	if err := reporter.Emit(ctx, envelope); err != nil {
		fmt.Fprintf(os.Stderr, "emit envelope failed: %v\n", err)
		return 2
	}

	if envelope.Failed() {
		return 1
	}
	return 0
}

// buildReporter always includes stdout emission; a configured endpoint
// gets the envelope too, spooling locally when delivery fails.
func buildReporter(cfg AppConfig, endpoint, spoolDir string) (report.Reporter, error) {
	stdout := report.WriterReporter{W: os.Stdout}
	if endpoint == "" {
		endpoint = cfg.Report.Endpoint
	}
	if spoolDir == "" {
		spoolDir = cfg.Report.SpoolDir
	}
	if endpoint == "" {
		return stdout, nil
	}

	var fallback report.Reporter
	if spoolDir != "" {
		spool, err := report.NewSpoolReporter(spoolDir)
		if err != nil {
			return nil, err
		}
		fallback = spool
	}
	remote := report.NewMultiReporter(report.NewHTTPReporter(endpoint, cfg.Report.Timeout.Std()), fallback)
	return teeReporter{stdout, remote}, nil
}

// teeReporter emits to every sink; the envelope is still considered
// emitted if stdout succeeded, so delivery problems surface as errors
// only when every sink failed.
type teeReporter []report.Reporter

func (t teeReporter) Emit(ctx context.Context, env result.Envelope) error {
	var firstErr error
	delivered := false
	for _, r := range t {
		if err := r.Emit(ctx, env); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		delivered = true
	}
	if delivered {
		return nil
	}
	return firstErr
}
