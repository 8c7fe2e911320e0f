// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scanner defines the contract every format-specific decoder
// (GRIB1/GRIB2, BUFR, ODIM, VM2) implements: framing validation,
// lazy metadata extraction, and an optional update-sequence-number
// reader used by the USN replace policy. The decoders themselves are
// external collaborators (spec.md §1, §6); this package only fixes
// the interface and a process-wide registry keyed by message format,
// mirroring the teacher's alias-database/formatter-registry pattern
// of one-time startup initialization (spec.md §9 "Global state").
package scanner

import (
	"fmt"
	"io"
	"sync"

	"github.com/metserv/wxstore/pkg/message"
	"github.com/metserv/wxstore/pkg/wxtype"
)

// Record is one message's extracted metadata, as produced by Scan.
type Record struct {
	Offset int64
	Size   int64
	Items  []wxtype.Item
}

// EmitFunc receives one scanned record; returning an error aborts the
// scan.
type EmitFunc func(Record) error

// Scanner is the per-format decoder contract. Implementations must be
// safe for concurrent use: the maintenance engine fans rescans out
// across a worker pool (spec.md §5).
type Scanner interface {
	// Validate raises on bad framing or truncation of the message at
	// (offset, size) in r without reading the whole message into
	// memory.
	Validate(r io.ReaderAt, offset, size int64) error
	// ValidateBuffer runs the same check against an in-memory
	// message; Segment Check's accurate mode (spec.md §4.1) passes it
	// each member.
	ValidateBuffer(buf []byte) error
	// Scan lazily emits every message found in path, in file order.
	// A scan does not stop at the first bad message; it is up to
	// emit to decide whether to abort (returning an error) or skip.
	Scan(path string, emit EmitFunc) error
	// UpdateSequenceNumber extracts the format-specific revision
	// counter from a message's raw bytes, used by the USN replace
	// policy. ok is false for formats with no such concept.
	UpdateSequenceNumber(raw []byte) (usn int64, ok bool)
}

var (
	mu       sync.RWMutex
	registry = map[message.Format]Scanner{}
)

// Register installs the Scanner for format, replacing any previous
// registration. Intended to be called once at process startup from
// each format package's init, matching the teacher's formatter
// registry being "initialized once ... and treated as immutable
// thereafter" (spec.md §9).
func Register(format message.Format, s Scanner) {
	mu.Lock()
	defer mu.Unlock()
	registry[format] = s
}

// Lookup returns the registered Scanner for format.
func Lookup(format message.Format) (Scanner, error) {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := registry[format]
	if !ok {
		return nil, fmt.Errorf("scanner: no scanner registered for format %q", format)
	}
	return s, nil
}
