// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package errs classifies the failures that can occur while scanning,
// storing, indexing, or repacking a dataset, so callers can decide
// whether a failure should abort an operation or just be logged and
// skipped.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for programmatic handling; it does not
// replace the error's message.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindConfig marks a dataset or daemon configuration problem.
	KindConfig
	// KindFormat marks malformed or unscannable message bytes.
	KindFormat
	// KindDuplicate marks an import rejected by a uniqueness
	// constraint.
	KindDuplicate
	// KindConsistency marks an index/segment state mismatch
	// detected during maintenance.
	KindConsistency
	// KindIO marks a filesystem or process failure.
	KindIO
	// KindSkip marks a recoverable per-message failure a scan
	// should log and continue past rather than abort on.
	KindSkip
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindFormat:
		return "format"
	case KindDuplicate:
		return "duplicate"
	case KindConsistency:
		return "consistency"
	case KindIO:
		return "io"
	case KindSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// Error is a classified failure carrying the dataset and, where
// applicable, the segment it occurred on.
type Error struct {
	Kind    Kind
	Dataset string
	Segment string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	loc := e.Dataset
	if e.Segment != "" {
		loc = fmt.Sprintf("%s/%s", e.Dataset, e.Segment)
	}
	if loc == "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s[%s]: %v", e.Kind, e.Op, loc, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a Kind and the dataset/op it occurred under.
func New(kind Kind, dataset, op string, err error) *Error {
	return &Error{Kind: kind, Dataset: dataset, Op: op, Err: err}
}

// WithSegment attaches a segment name to an existing Error.
func (e *Error) WithSegment(segment string) *Error {
	out := *e
	out.Segment = segment
	return &out
}

// Is reports whether err (or something it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, or KindUnknown if err isn't a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
