package limits

import (
	"testing"
	"time"

	"runbox/internal/harness/spec"
	appErr "runbox/pkg/errors"
)

func TestNormalizeDefaults(t *testing.T) {
	got, err := Normalize(spec.ResourceLimit{TimeLimit: 2 * time.Second})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.GraceWindow != DefaultGraceWindow {
		t.Fatalf("grace window default not applied: %v", got.GraceWindow)
	}
	if got.StreamCapBytes != DefaultStreamCapBytes {
		t.Fatalf("stream cap default not applied: %d", got.StreamCapBytes)
	}
}

func TestNormalizeRejectsBadLimits(t *testing.T) {
	cases := []struct {
		name string
		in   spec.ResourceLimit
	}{
		{"missing_time_limit", spec.ResourceLimit{}},
		{"negative_memory", spec.ResourceLimit{TimeLimit: time.Second, MemoryMB: -1}},
		{"negative_output", spec.ResourceLimit{TimeLimit: time.Second, OutputMB: -5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(tc.in)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !appErr.Is(err, appErr.ValidationFailed) {
				t.Fatalf("unexpected error code: %v", err)
			}
		})
	}
}

func TestBuildRlimitSet(t *testing.T) {
	cases := []struct {
		name string
		in   spec.ResourceLimit
		want Set
	}{
		{
			name: "sub_second_rounds_up",
			in:   spec.ResourceLimit{TimeLimit: 100 * time.Millisecond},
			want: Set{CPUSeconds: 1},
		},
		{
			name: "fractional_rounds_up",
			in:   spec.ResourceLimit{TimeLimit: 1500 * time.Millisecond},
			want: Set{CPUSeconds: 2},
		},
		{
			name: "exact_seconds",
			in:   spec.ResourceLimit{TimeLimit: 3 * time.Second},
			want: Set{CPUSeconds: 3},
		},
		{
			name: "ceilings_converted",
			in:   spec.ResourceLimit{TimeLimit: time.Second, MemoryMB: 2, OutputMB: 1, PIDs: 16},
			want: Set{CPUSeconds: 1, AddressSpaceBytes: 2 << 20, FileSizeBytes: 1 << 20, MaxProcesses: 16},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Build(tc.in)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v want %+v", got, tc.want)
			}
		})
	}
}

func TestBuildRequiresTimeLimit(t *testing.T) {
	if _, err := Build(spec.ResourceLimit{}); err == nil {
		t.Fatalf("expected error without time limit")
	}
}
