//go:build !linux

package engine

import (
	"context"
	"fmt"

	"runbox/internal/harness/spec"
)

type stubEngine struct{}

func NewEngine(cfg Config) (Engine, error) {
	return &stubEngine{}, nil
}

func (s *stubEngine) Run(ctx context.Context, inv spec.InvocationSpec) (RunReport, error) {
	return RunReport{}, fmt.Errorf("execution engine is only supported on linux")
}
