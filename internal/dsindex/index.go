// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dsindex defines the queryable index every dataset keeps over
// its segments: which messages exist, where their bytes live, and
// what metadata they carry. Two backends implement the interface: an
// embedded relational index (internal/dsindex/sqlbackend) for datasets
// that need rich queries, and an append-only manifest
// (internal/dsindex/manifest) for datasets that only need sequential
// scans, such as offline archives.
package dsindex

import (
	"context"
	"errors"

	"github.com/metserv/wxstore/pkg/message"
	"github.com/metserv/wxstore/pkg/reftime"
	"github.com/metserv/wxstore/pkg/wxtype"
)

var errNoReftime = errors.New("dsindex: message has no reftime item")

// Record is one indexed message: its storage location, fingerprint,
// and the metadata items it was indexed under.
type Record struct {
	ID          int64
	Fingerprint uint64
	Segment     string
	Offset      int64
	Size        int64
	USN         int64
	Reftime     reftime.Time
	Items       []wxtype.Item
}

// Query selects records by metadata equality and/or a reftime span. A
// nil or zero-value field means "don't filter on this".
type Query struct {
	Reftime *reftime.Time
	Equal   map[wxtype.Code]wxtype.Item
}

// Index is the per-dataset store of what has been imported.
type Index interface {
	// Insert adds a new record. It fails if the fingerprint already
	// exists; use Replace for upsert semantics.
	Insert(ctx context.Context, rec Record) error
	// Replace inserts or overwrites the record sharing rec's
	// fingerprint, honoring the given USN comparison when policy
	// requires newer data to win.
	Replace(ctx context.Context, rec Record, policy ReplacePolicy) error
	// Remove deindexes the record with the given fingerprint,
	// wherever it is currently indexed; the underlying segment bytes
	// are untouched.
	Remove(ctx context.Context, fingerprint uint64) error
	// GetByFingerprint returns the currently indexed record for a
	// fingerprint, if any.
	GetByFingerprint(ctx context.Context, fingerprint uint64) (*Record, bool, error)
	// Query returns every record matching q.
	Query(ctx context.Context, q Query) ([]Record, error)
	// Summary returns the reftime-bounded merge of every record
	// matching q, without materializing each one.
	Summary(ctx context.Context, q Query) (*Summary, error)
	// ScanSegment returns every record indexed against segment, in
	// storage order.
	ScanSegment(ctx context.Context, segment string) ([]Record, error)
	// Segments lists every segment name with at least one record.
	Segments(ctx context.Context) ([]string, error)
	// Vacuum reclaims space freed by prior Remove/Replace calls.
	Vacuum(ctx context.Context) error
	// Close releases any resources the backend holds open.
	Close() error
}

// ReplacePolicy controls Replace's behavior when a fingerprint
// collision is found.
type ReplacePolicy uint8

const (
	// ReplaceNever rejects the write; the existing record wins.
	ReplaceNever ReplacePolicy = iota
	// ReplaceAlways overwrites unconditionally.
	ReplaceAlways
	// ReplaceUSN overwrites only if the new record's USN is
	// strictly greater than the existing one's.
	ReplaceUSN
)

// Summary aggregates a set of records without keeping each one: the
// record count, their total byte size, and the enclosing reftime span.
type Summary struct {
	Count   int64
	Size    int64
	Reftime *reftime.Time
}

// FromMessage builds the Record fields derivable from a Message and
// its storage location, leaving ID/USN for the caller (the writer)
// to fill in.
func FromMessage(m *message.Message, fingerprint uint64, relPath string, offset, size int64) (Record, error) {
	rt, ok := m.Get(wxtype.CodeReftime)
	if !ok {
		return Record{}, errNoReftime
	}
	t, err := reftime.FromItem(rt)
	if err != nil {
		return Record{}, err
	}

	var items []wxtype.Item
	for _, c := range m.Codes() {
		it, _ := m.Get(c)
		items = append(items, it)
	}

	return Record{
		Fingerprint: fingerprint,
		Segment:     relPath,
		Offset:      offset,
		Size:        size,
		Reftime:     t,
		Items:       items,
	}, nil
}
