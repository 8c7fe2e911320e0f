// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package segment implements the on-disk storage unit datasets append
// messages to: a segment is either one gzip-compressed file holding
// every message concatenated together, plus a byte-offset sidecar
// index, or a plain directory holding one file per message. Both
// layouts support append, read-by-offset, repack, and a validating
// check pass.
package segment

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout is implemented by both segment storage strategies.
type Layout interface {
	// Append writes data to the segment, returning the (offset,
	// size) the message can later be read back from.
	Append(data []byte) (offset, size int64, err error)
	// ReadAt returns the raw bytes at (offset, size).
	ReadAt(offset, size int64) ([]byte, error)
	// Size reports the segment's current logical size (the number
	// of bytes appended so far; for the directory layout, the summed
	// size of its member files).
	Size() (int64, error)
	// Check validates the segment's physical layout against its
	// claimed size, returning the list of holes or truncation found.
	// When validate is non-nil, Check also decompresses every member
	// and passes its raw bytes to validate, recording the offset of
	// any member it rejects in Report.Invalid (spec.md §4.1's
	// "--accurate" mode); a nil validate does only the fast
	// offset/size/hole comparison.
	Check(validate func([]byte) error) (Report, error)
	// Repack rewrites the segment keeping only the offsets in keep,
	// in order, and returns the new offset for each. It writes to a
	// temporary file and renames over the original so a crash mid-repack
	// never leaves a half-written segment live.
	Repack(keep []int64) (map[int64]int64, error)
	// Remove deletes the segment's backing files entirely.
	Remove() error
	// Close releases any open file handles.
	Close() error
}

// Report is the outcome of a Check pass: the set of detected
// anomalies, most to least severe.
type Report struct {
	// Holes are internal gaps: claimed data not physically present
	// where the index says it should be.
	Holes []int64
	// Truncated is true when the physical segment is shorter than
	// the index's claimed size.
	Truncated bool
	// TrailingBytes counts bytes physically present after the
	// offset corresponding to the index's claimed size; the directory
	// layout counts member files past its last ordinal instead.
	TrailingBytes int64
	// Invalid holds the offset of each member that failed format
	// validation, populated only when Check was called with a
	// non-nil validate function.
	Invalid []int64
}

// OK reports whether the segment matches its index exactly: no holes,
// no truncation, no unindexed trailing data, and (in accurate mode) no
// member that failed format validation.
func (r Report) OK() bool {
	return len(r.Holes) == 0 && !r.Truncated && r.TrailingBytes == 0 && len(r.Invalid) == 0
}

// ensureDir creates dir (and parents) if it doesn't already exist.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("segment: mkdir %s: %w", dir, err)
	}
	return nil
}

func tempName(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".repack.tmp")
}
