//go:build linux

package fsdiff

import (
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestSpecialFileReportedUnknown(t *testing.T) {
	root := t.TempDir()

	before, err := Take(root)
	if err != nil {
		t.Fatalf("take before: %v", err)
	}

	fifo := filepath.Join(root, "pipe")
	if err := unix.Mkfifo(fifo, 0644); err != nil {
		t.Skipf("mkfifo not available: %v", err)
	}

	after, err := Take(root)
	if err != nil {
		t.Fatalf("take after: %v", err)
	}

	entries := before.Diff(after)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %v", entries)
	}
	if entries[0].Path != "pipe" || entries[0].Kind != ChangeUnknown {
		t.Fatalf("fifo not reported as unknown: %+v", entries[0])
	}
	if entries[0].Detail == "" {
		t.Fatalf("anomaly detail missing")
	}
}
