// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package writer implements the acquire path: appending a message to
// its dataset's segment store and indexing it, in that order, so a
// crash between the two steps never leaves the index pointing at
// bytes that were never written.
package writer

import (
	"context"
	"fmt"
	"os"

	"github.com/metserv/wxstore/internal/dsindex"
	"github.com/metserv/wxstore/internal/dslock"
	"github.com/metserv/wxstore/internal/summarycache"
	"github.com/metserv/wxstore/internal/wxmetrics"
	"github.com/metserv/wxstore/pkg/dsconfig"
	"github.com/metserv/wxstore/pkg/message"
	"github.com/metserv/wxstore/pkg/metadata"
	"github.com/metserv/wxstore/pkg/reftime"
	"github.com/metserv/wxstore/pkg/segment"
	"github.com/metserv/wxstore/pkg/summary"
	"github.com/metserv/wxstore/pkg/wxtype"
)

// Writer acquires messages into one dataset.
type Writer struct {
	Dataset *dsconfig.Dataset
	Store   *segment.Store
	Index   dsindex.Index

	// Summaries, when non-nil, has its affected bucket invalidated
	// after every acquire.
	Summaries *summarycache.Cache

	// Metrics, when non-nil, receives one ObserveAcquire call per
	// Acquire outcome.
	Metrics *wxmetrics.Registry

	// Lock, when non-nil, is held for the duration of each Acquire,
	// excluding any concurrent maintenance.Engine.Run against the
	// same dataset (spec.md §5: "at most one writer or one
	// maintenance agent at a time").
	Lock *dslock.WriterLock

	uniqueKeys []wxtype.Code
	indexKeys  []wxtype.Code
	step       reftime.Step
	useDir     bool
}

// New builds a Writer from a validated dataset configuration. It does
// not open the store or index itself; callers construct those first
// with the backend appropriate to the dataset's configured types and
// pass them in.
func New(ds *dsconfig.Dataset, store *segment.Store, index dsindex.Index) (*Writer, error) {
	uniqueKeys, err := parseCodes(ds.Unique)
	if err != nil {
		return nil, fmt.Errorf("writer: unique keys: %w", err)
	}
	indexKeys, err := parseCodes(ds.Index)
	if err != nil {
		return nil, fmt.Errorf("writer: index keys: %w", err)
	}
	step, err := ds.StepOrDefault()
	if err != nil {
		return nil, fmt.Errorf("writer: step: %w", err)
	}

	return &Writer{
		Dataset:    ds,
		Store:      store,
		Index:      index,
		uniqueKeys: uniqueKeys,
		indexKeys:  indexKeys,
		step:       step,
		useDir:     ds.LayoutOrDefault() == dsconfig.LayoutDir,
	}, nil
}

func parseCodes(names []string) ([]wxtype.Code, error) {
	out := make([]wxtype.Code, 0, len(names))
	for _, n := range names {
		c, err := wxtype.ParseCode(n)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// AcquireResult reports what happened to one message.
type AcquireResult struct {
	Fingerprint uint64
	Segment     string
	Offset      int64
	Size        int64
	// Skipped is true when the message was rejected by the dataset's
	// replace policy rather than written.
	Skipped bool
}

// Acquire writes m's raw bytes to the segment its reftime maps to,
// then indexes it. usn is the update sequence number used when the
// dataset's replace policy is "usn"; usnOK reports whether the
// scanner actually found one in raw (scanner.Scanner.UpdateSequenceNumber's
// ok result) — both usn and usnOK are ignored for every other policy.
func (w *Writer) Acquire(ctx context.Context, m *message.Message, raw []byte, usn int64, usnOK bool) (AcquireResult, error) {
	if w.Lock != nil {
		w.Lock.Lock()
		defer w.Lock.Unlock()
	}
	res, err := w.acquire(ctx, m, raw, usn, usnOK)
	switch {
	case err != nil:
		w.observeAcquire("error")
	case res.Skipped:
		w.observeAcquire("skipped")
	default:
		w.observeAcquire("written")
	}
	return res, err
}

func (w *Writer) observeAcquire(outcome string) {
	if w.Metrics != nil {
		w.Metrics.ObserveAcquire(w.Dataset.Name, outcome)
	}
}

func (w *Writer) acquire(ctx context.Context, m *message.Message, raw []byte, usn int64, usnOK bool) (AcquireResult, error) {
	rtItem, ok := m.Get(wxtype.CodeReftime)
	if !ok {
		return AcquireResult{}, fmt.Errorf("writer: message has no reftime")
	}
	rt, err := reftime.FromItem(rtItem)
	if err != nil {
		return AcquireResult{}, err
	}

	// relPath carries the message format as its own extension (spec.md
	// §3's "2007/07-07.grib1"), on top of which Store/SidecarBase still
	// append their own on-disk suffix (".<layout-extension>.gz") — the
	// two compose rather than collide, since both treat relPath as an
	// opaque prefix.
	relPath := w.step.RelativePath(rt.Begin) + "." + string(m.Format)
	fingerprint := m.Fingerprint(w.uniqueKeys)

	policy := w.Dataset.ReplaceOrDefault()
	// A USN-absent message is never a valid baseline or successor: with
	// no existing record it would stand in as one nothing can ever be
	// compared against, and against an existing record it can't prove
	// it supersedes it (spec.md P8 "absence of USN in either side is
	// rejected").
	if policy == dsconfig.ReplaceUSN && !usnOK {
		return AcquireResult{Fingerprint: fingerprint, Skipped: true}, nil
	}
	if existing, found, err := w.Index.GetByFingerprint(ctx, fingerprint); err != nil {
		return AcquireResult{}, fmt.Errorf("writer: lookup fingerprint: %w", err)
	} else if found {
		switch policy {
		case dsconfig.ReplaceNever:
			return AcquireResult{Fingerprint: fingerprint, Segment: existing.Segment, Skipped: true}, nil
		case dsconfig.ReplaceUSN:
			if usn <= existing.USN {
				return AcquireResult{Fingerprint: fingerprint, Segment: existing.Segment, Skipped: true}, nil
			}
		}
	}

	layout, err := w.Store.Open(relPath)
	if err != nil {
		return AcquireResult{}, fmt.Errorf("writer: open segment %s: %w", relPath, err)
	}
	offset, size, err := layout.Append(raw)
	if err != nil {
		return AcquireResult{}, fmt.Errorf("writer: append to %s: %w", relPath, err)
	}

	rec, err := indexRecord(m, w.indexKeys, fingerprint, relPath, offset, size, usn, rt)
	if err != nil {
		return AcquireResult{}, err
	}

	var idxErr error
	switch policy {
	case dsconfig.ReplaceNever:
		idxErr = w.Index.Insert(ctx, rec)
	default:
		idxErr = w.Index.Replace(ctx, rec, toIndexPolicy(policy))
	}
	if idxErr != nil {
		return AcquireResult{}, fmt.Errorf("writer: index %s: %w", relPath, idxErr)
	}

	if err := w.appendSidecars(relPath, rec); err != nil {
		return AcquireResult{}, err
	}
	if w.Summaries != nil {
		if err := w.Summaries.Invalidate(summarycache.Bucket(rt.Begin)); err != nil {
			return AcquireResult{}, fmt.Errorf("writer: invalidate summary cache: %w", err)
		}
	}

	return AcquireResult{Fingerprint: fingerprint, Segment: relPath, Offset: offset, Size: size}, nil
}

// Remove deindexes a message by fingerprint without touching its
// segment bytes; a subsequent maintenance pack pass reclaims the
// space.
func (w *Writer) Remove(ctx context.Context, fingerprint uint64) error {
	return w.Index.Remove(ctx, fingerprint)
}

func toIndexPolicy(p dsconfig.ReplacePolicy) dsindex.ReplacePolicy {
	switch p {
	case dsconfig.ReplaceAlways:
		return dsindex.ReplaceAlways
	case dsconfig.ReplaceUSN:
		return dsindex.ReplaceUSN
	default:
		return dsindex.ReplaceNever
	}
}

// appendSidecars appends rec's metadata envelope to "<segment>.metadata"
// and folds it into "<segment>.summary", so a freshly acquired
// message is immediately reflected in both sidecars rather than
// waiting for the next maintenance pass (spec.md §3 "Segment",
// P5).
func (w *Writer) appendSidecars(relPath string, rec dsindex.Record) error {
	base := w.Dataset.SidecarBase(w.Store.Root(), relPath)

	if err := metadata.AppendFile(base+".metadata", metadata.Record{Items: rec.Items}); err != nil {
		return fmt.Errorf("writer: append metadata sidecar: %w", err)
	}

	sumPath := base + ".summary"
	s, err := summary.ReadFile(sumPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("writer: read summary sidecar: %w", err)
	}
	s.Add(summary.Summary{Count: 1, Size: rec.Size, Reftime: &rec.Reftime})
	if err := summary.WriteFile(sumPath, s); err != nil {
		return fmt.Errorf("writer: write summary sidecar: %w", err)
	}
	return nil
}

func indexRecord(m *message.Message, indexKeys []wxtype.Code, fingerprint uint64, relPath string, offset, size, usn int64, rt reftime.Time) (dsindex.Record, error) {
	indexed := make(map[wxtype.Code]bool, len(indexKeys))
	for _, c := range indexKeys {
		indexed[c] = true
	}
	var items []wxtype.Item
	for _, c := range m.Codes() {
		if len(indexKeys) > 0 && !indexed[c] {
			continue
		}
		it, _ := m.Get(c)
		items = append(items, it)
	}
	return dsindex.Record{
		Fingerprint: fingerprint,
		Segment:     relPath,
		Offset:      offset,
		Size:        size,
		USN:         usn,
		Reftime:     rt,
		Items:       items,
	}, nil
}
