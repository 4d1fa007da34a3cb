// Package fsdiff observes filesystem changes across one subject run by
// indexing a subtree before and after execution and diffing the two
// snapshots.
package fsdiff

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zeebo/blake3"

	appErr "runbox/pkg/errors"
)

// ChangeKind classifies one path-level change between two snapshots.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
	// ChangeUnknown records an entry the observer could not classify
	// (unreadable, vanished mid-walk, special file). Anomalies are
	// reported, never fatal.
	ChangeUnknown ChangeKind = "unknown"
)

// Entry is one observed change, with paths relative to the snapshot root.
type Entry struct {
	Path   string     `json:"path"`
	Kind   ChangeKind `json:"kind"`
	Detail string     `json:"detail,omitempty"`
}

// digestMaxBytes bounds content hashing; larger files fall back to
// size+mtime comparison.
const digestMaxBytes = 16 * 1024 * 1024

type fileState struct {
	mode       fs.FileMode
	size       int64
	modTime    time.Time
	linkTarget string
	digest     [32]byte
	digested   bool
	anomaly    string
}

// Snapshot is a path → metadata index of one subtree at one point in time.
type Snapshot struct {
	root  string
	files map[string]fileState
}

// Take walks the subtree rooted at root and indexes every entry. A missing
// or unreadable root is an error; anomalies below the root are recorded
// per-entry instead.
func Take(root string) (*Snapshot, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SnapshotFailed, "stat snapshot root failed")
	}
	if !info.IsDir() {
		return nil, appErr.Newf(appErr.SnapshotFailed, "snapshot root is not a directory: %s", root)
	}

	snap := &Snapshot{root: root, files: make(map[string]fileState)}
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if path == root {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if err != nil {
			snap.files[rel] = fileState{anomaly: err.Error()}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		snap.files[rel] = statePath(path, d)
		return nil
	})
	if walkErr != nil {
		return nil, appErr.Wrapf(walkErr, appErr.SnapshotFailed, "walk snapshot root failed")
	}
	return snap, nil
}

func statePath(path string, d fs.DirEntry) fileState {
	info, err := d.Info()
	if err != nil {
		// Entry vanished between readdir and lstat.
		return fileState{anomaly: err.Error()}
	}
	st := fileState{
		mode:    info.Mode(),
		size:    info.Size(),
		modTime: info.ModTime(),
	}
	switch {
	case st.mode&fs.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			st.anomaly = err.Error()
			return st
		}
		st.linkTarget = target
	case st.mode.IsRegular() && st.size <= digestMaxBytes:
		sum, err := digestFile(path)
		if err != nil {
			st.anomaly = err.Error()
			return st
		}
		st.digest = sum
		st.digested = true
	case !st.mode.IsRegular() && !st.mode.IsDir():
		st.anomaly = "special file: " + st.mode.Type().String()
	}
	return st
}

func digestFile(path string) ([32]byte, error) {
	var sum [32]byte
	file, err := os.Open(path)
	if err != nil {
		return sum, err
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return sum, err
	}
	copy(sum[:], hasher.Sum(nil))
	return sum, nil
}

// Diff classifies every path present in either snapshot. Output order is
// deterministic, so diffing an unchanged tree twice yields identical
// results.
func (s *Snapshot) Diff(after *Snapshot) []Entry {
	paths := make([]string, 0, len(s.files)+len(after.files))
	seen := make(map[string]struct{}, len(s.files)+len(after.files))
	for path := range s.files {
		paths = append(paths, path)
		seen[path] = struct{}{}
	}
	for path := range after.files {
		if _, ok := seen[path]; !ok {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	var entries []Entry
	for _, path := range paths {
		before, wasPresent := s.files[path]
		current, isPresent := after.files[path]

		switch {
		case wasPresent && before.anomaly != "":
			entries = append(entries, Entry{Path: path, Kind: ChangeUnknown, Detail: before.anomaly})
		case isPresent && current.anomaly != "":
			entries = append(entries, Entry{Path: path, Kind: ChangeUnknown, Detail: current.anomaly})
		case !wasPresent:
			entries = append(entries, Entry{Path: path, Kind: ChangeCreated})
		case !isPresent:
			entries = append(entries, Entry{Path: path, Kind: ChangeDeleted})
		case changed(before, current):
			entries = append(entries, Entry{Path: path, Kind: ChangeModified})
		}
	}
	return entries
}

func changed(before, after fileState) bool {
	if before.mode != after.mode {
		return true
	}
	if before.linkTarget != after.linkTarget {
		return true
	}
	if before.digested && after.digested {
		return before.digest != after.digest
	}
	return before.size != after.size || !before.modTime.Equal(after.modTime)
}

// Root returns the subtree this snapshot indexed.
func (s *Snapshot) Root() string {
	return s.root
}

// Len returns the number of indexed entries.
func (s *Snapshot) Len() int {
	return len(s.files)
}
