// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package reader implements the dataset query surface: materializing
// matching messages, producing an aggregate summary, fetching the
// nth result for pagination, and piping results through an external
// postprocessor command.
package reader

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/metserv/wxstore/internal/dsindex"
	"github.com/metserv/wxstore/pkg/dsconfig"
	"github.com/metserv/wxstore/pkg/scanner"
	"github.com/metserv/wxstore/pkg/segment"
)

// Reader answers queries against one dataset.
type Reader struct {
	Dataset *dsconfig.Dataset
	Store   *segment.Store
	Index   dsindex.Index
}

func New(ds *dsconfig.Dataset, store *segment.Store, index dsindex.Index) *Reader {
	return &Reader{Dataset: ds, Store: store, Index: index}
}

// Result pairs an index record with its raw bytes.
type Result struct {
	Record dsindex.Record
	Raw    []byte
}

// QueryData resolves every record matching q and reads its raw bytes
// from the segment store.
func (r *Reader) QueryData(ctx context.Context, q dsindex.Query) ([]Result, error) {
	recs, err := r.Index.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("reader: query: %w", err)
	}

	out := make([]Result, 0, len(recs))
	for _, rec := range recs {
		raw, err := r.readRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, Result{Record: rec, Raw: raw})
	}
	return out, nil
}

func (r *Reader) readRecord(rec dsindex.Record) ([]byte, error) {
	layout, err := r.Store.Open(rec.Segment)
	if err != nil {
		return nil, fmt.Errorf("reader: open segment %s: %w", rec.Segment, err)
	}
	raw, err := layout.ReadAt(rec.Offset, rec.Size)
	if err != nil {
		return nil, fmt.Errorf("reader: read %s at %d: %w", rec.Segment, rec.Offset, err)
	}
	return raw, nil
}

// QueryBytes concatenates every matching message's raw bytes, in
// query order, with no postprocessing.
func (r *Reader) QueryBytes(ctx context.Context, q dsindex.Query) ([]byte, error) {
	results, err := r.QueryData(ctx, q)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for _, res := range results {
		buf.Write(res.Raw)
	}
	return buf.Bytes(), nil
}

// QuerySummary aggregates every matching record without reading its
// bytes.
func (r *Reader) QuerySummary(ctx context.Context, q dsindex.Query) (*dsindex.Summary, error) {
	s, err := r.Index.Summary(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("reader: summary: %w", err)
	}
	return s, nil
}

// Sample pairs a segment with one message read from it, the unit
// ProduceNth emits per segment.
type Sample struct {
	Segment string
	Record  dsindex.Record
	Raw     []byte
}

// ProduceNth returns the nth (zero-based) message of every segment
// matching q, the sampling/diagnostic operation spec.md §4.4 names:
// "emits the nth message of every segment". A segment with fewer than
// n+1 matching messages contributes no Sample rather than an error,
// the same convention ScanTestNth uses.
func (r *Reader) ProduceNth(ctx context.Context, q dsindex.Query, n int) ([]Sample, error) {
	recs, err := r.Index.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("reader: query: %w", err)
	}

	bySegment := make(map[string][]dsindex.Record)
	var order []string
	for _, rec := range recs {
		if _, ok := bySegment[rec.Segment]; !ok {
			order = append(order, rec.Segment)
		}
		bySegment[rec.Segment] = append(bySegment[rec.Segment], rec)
	}

	var out []Sample
	for _, seg := range order {
		segRecs := bySegment[seg]
		if n < 0 || n >= len(segRecs) {
			continue
		}
		rec := segRecs[n]
		raw, err := r.readRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, Sample{Segment: seg, Record: rec, Raw: raw})
	}
	return out, nil
}

// Postprocess runs cmd, piping the concatenated query result in on
// stdin and returning stdout. If cmd exits non-zero, Postprocess
// still returns whatever was written to stdout before the failure,
// alongside the error, so a caller can preserve partial output rather
// than discarding it.
func (r *Reader) Postprocess(ctx context.Context, q dsindex.Query, name string, args []string) ([]byte, error) {
	data, err := r.QueryBytes(ctx, q)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		return stdout.Bytes(), fmt.Errorf("reader: postprocess %s: %w (stderr: %s)", name, runErr, stderr.String())
	}
	return stdout.Bytes(), nil
}

// ScanTest re-reads every record of a dataset end to end, reporting
// every read failure encountered without stopping early, so a
// single corrupt segment doesn't abort validation of the rest.
func (r *Reader) ScanTest(ctx context.Context) ([]ScanError, error) {
	segments, err := r.Index.Segments(ctx)
	if err != nil {
		return nil, fmt.Errorf("reader: list segments: %w", err)
	}

	var errs []ScanError
	for _, seg := range segments {
		recs, err := r.Index.ScanSegment(ctx, seg)
		if err != nil {
			errs = append(errs, ScanError{Segment: seg, Err: err})
			continue
		}
		for _, rec := range recs {
			if _, err := r.readRecord(rec); err != nil {
				errs = append(errs, ScanError{Segment: seg, Offset: rec.Offset, Err: err})
			}
		}
	}
	return errs, nil
}

// ScanTestNth re-validates the nth (zero-based) message of every
// segment against the dataset's format validator, the diagnostic
// arkimet calls "scantest" (spec.md §4.4 scan_test): rather than
// reading every message back, it samples one position across the
// whole dataset, cheap enough to run routinely. A segment with fewer
// than n+1 messages is skipped, not reported as an error.
func (r *Reader) ScanTestNth(ctx context.Context, n int) ([]ScanError, error) {
	segments, err := r.Index.Segments(ctx)
	if err != nil {
		return nil, fmt.Errorf("reader: list segments: %w", err)
	}
	format, err := r.Dataset.MessageFormat()
	if err != nil {
		return nil, fmt.Errorf("reader: scantest: %w", err)
	}
	s, err := scanner.Lookup(format)
	if err != nil {
		return nil, fmt.Errorf("reader: scantest: %w", err)
	}

	var errs []ScanError
	for _, seg := range segments {
		recs, err := r.Index.ScanSegment(ctx, seg)
		if err != nil {
			errs = append(errs, ScanError{Segment: seg, Err: err})
			continue
		}
		if n < 0 || n >= len(recs) {
			continue
		}
		rec := recs[n]
		raw, err := r.readRecord(rec)
		if err != nil {
			errs = append(errs, ScanError{Segment: seg, Offset: rec.Offset, Err: err})
			continue
		}
		if err := s.ValidateBuffer(raw); err != nil {
			errs = append(errs, ScanError{Segment: seg, Offset: rec.Offset, Err: fmt.Errorf("scantest: %w", err)})
		}
	}
	return errs, nil
}

// ScanError is one message that failed to re-read during ScanTest.
type ScanError struct {
	Segment string
	Offset  int64
	Err     error
}

func (e ScanError) Error() string {
	return fmt.Sprintf("reader: %s@%d: %v", e.Segment, e.Offset, e.Err)
}
