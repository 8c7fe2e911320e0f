// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package manifest implements the append-only Index backend: every
// insert/replace/remove is appended as a line to a manifest file, and
// the current state is the result of replaying it in order. It trades
// sqlbackend's indexed equality lookups for a format that is trivial
// to inspect, diff, and repair by hand, which suits archived datasets
// that are written once and read sequentially.
package manifest

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/metserv/wxstore/internal/dsindex"
	"github.com/metserv/wxstore/pkg/reftime"
	"github.com/metserv/wxstore/pkg/wxtype"
)

type opKind string

const (
	opInsert opKind = "I"
	opRemove opKind = "R"
)

// Backend is the append-only manifest Index implementation.
type Backend struct {
	path string

	mu      sync.Mutex
	records map[uint64]dsindex.Record
}

// Open loads (and, if necessary, creates) the manifest at path,
// replaying every recorded operation into memory.
func Open(path string) (*Backend, error) {
	b := &Backend{path: path, records: make(map[uint64]dsindex.Record)}
	if err := b.replay(); err != nil {
		return nil, err
	}
	return b, nil
}

var _ dsindex.Index = (*Backend)(nil)

func (b *Backend) replay() error {
	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("manifest: open %s: %w", b.path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		rec, kind, err := decodeLine(line)
		if err != nil {
			return fmt.Errorf("manifest: %s: %w", b.path, err)
		}
		switch kind {
		case opInsert:
			b.records[rec.Fingerprint] = rec
		case opRemove:
			delete(b.records, rec.Fingerprint)
		}
	}
	return sc.Err()
}

func (b *Backend) appendLine(kind opKind, rec dsindex.Record) error {
	f, err := os.OpenFile(b.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("manifest: open %s for append: %w", b.path, err)
	}
	defer f.Close()

	line := encodeLine(kind, rec)
	if _, err := fmt.Fprintln(f, line); err != nil {
		return fmt.Errorf("manifest: append to %s: %w", b.path, err)
	}
	return nil
}

func (b *Backend) Insert(ctx context.Context, rec dsindex.Record) error {
	return b.upsert(rec, dsindex.ReplaceNever)
}

func (b *Backend) Replace(ctx context.Context, rec dsindex.Record, policy dsindex.ReplacePolicy) error {
	return b.upsert(rec, policy)
}

func (b *Backend) upsert(rec dsindex.Record, policy dsindex.ReplacePolicy) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.records[rec.Fingerprint]
	if ok {
		switch policy {
		case dsindex.ReplaceNever:
			return fmt.Errorf("manifest: fingerprint %x already indexed", rec.Fingerprint)
		case dsindex.ReplaceUSN:
			if rec.USN <= existing.USN {
				return fmt.Errorf("manifest: usn %d does not supersede existing usn %d", rec.USN, existing.USN)
			}
		}
	}

	if err := b.appendLine(opInsert, rec); err != nil {
		return err
	}
	b.records[rec.Fingerprint] = rec
	return nil
}

func (b *Backend) Remove(ctx context.Context, fingerprint uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[fingerprint]
	if !ok {
		return nil
	}
	if err := b.appendLine(opRemove, rec); err != nil {
		return err
	}
	delete(b.records, fingerprint)
	return nil
}

func (b *Backend) GetByFingerprint(ctx context.Context, fingerprint uint64) (*dsindex.Record, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[fingerprint]
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

func (b *Backend) Query(ctx context.Context, q dsindex.Query) ([]dsindex.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []dsindex.Record
	for _, rec := range b.records {
		if matches(rec, q) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Segment < out[j].Segment || (out[i].Segment == out[j].Segment && out[i].Offset < out[j].Offset) })
	return out, nil
}

func (b *Backend) Summary(ctx context.Context, q dsindex.Query) (*dsindex.Summary, error) {
	recs, err := b.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	out := &dsindex.Summary{Count: int64(len(recs))}
	var times []reftime.Time
	for _, r := range recs {
		out.Size += r.Size
		times = append(times, r.Reftime)
	}
	if len(times) > 0 {
		rt := reftime.Merge(times)
		out.Reftime = &rt
	}
	return out, nil
}

func (b *Backend) ScanSegment(ctx context.Context, segment string) ([]dsindex.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []dsindex.Record
	for _, rec := range b.records {
		if rec.Segment == segment {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out, nil
}

func (b *Backend) Segments(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for _, rec := range b.records {
		if !seen[rec.Segment] {
			seen[rec.Segment] = true
			out = append(out, rec.Segment)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Vacuum rewrites the manifest keeping only the current records, one
// insert line each, discarding replay history.
func (b *Backend) Vacuum(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tmp := b.path + ".vacuum.tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("manifest: vacuum: %w", err)
	}
	var fps []uint64
	for fp := range b.records {
		fps = append(fps, fp)
	}
	sort.Slice(fps, func(i, j int) bool { return fps[i] < fps[j] })
	for _, fp := range fps {
		if _, err := fmt.Fprintln(f, encodeLine(opInsert, b.records[fp])); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, b.path)
}

func (b *Backend) Close() error { return nil }

func matches(rec dsindex.Record, q dsindex.Query) bool {
	if q.Reftime != nil && !rec.Reftime.Overlaps(*q.Reftime) {
		return false
	}
	for code, want := range q.Equal {
		found := false
		for _, it := range rec.Items {
			if it.TypeCode() == code && wxtype.Equal(it, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func encodeLine(kind opKind, rec dsindex.Record) string {
	meta := base64.RawStdEncoding.EncodeToString(encodeItems(rec.Items))
	return strings.Join([]string{
		string(kind),
		strconv.FormatUint(rec.Fingerprint, 10),
		rec.Segment,
		strconv.FormatInt(rec.Offset, 10),
		strconv.FormatInt(rec.Size, 10),
		strconv.FormatInt(rec.USN, 10),
		strconv.FormatInt(rec.Reftime.Begin.Unix(), 10),
		strconv.FormatInt(rec.Reftime.End.Unix(), 10),
		meta,
	}, "\t")
}

func decodeLine(line string) (dsindex.Record, opKind, error) {
	parts := strings.Split(line, "\t")
	if len(parts) != 9 {
		return dsindex.Record{}, "", fmt.Errorf("malformed manifest line: %q", line)
	}
	kind := opKind(parts[0])
	fp, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return dsindex.Record{}, "", err
	}
	offset, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return dsindex.Record{}, "", err
	}
	size, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return dsindex.Record{}, "", err
	}
	usn, err := strconv.ParseInt(parts[5], 10, 64)
	if err != nil {
		return dsindex.Record{}, "", err
	}
	begin, err := strconv.ParseInt(parts[6], 10, 64)
	if err != nil {
		return dsindex.Record{}, "", err
	}
	end, err := strconv.ParseInt(parts[7], 10, 64)
	if err != nil {
		return dsindex.Record{}, "", err
	}
	raw, err := base64.RawStdEncoding.DecodeString(parts[8])
	if err != nil {
		return dsindex.Record{}, "", err
	}
	items, err := decodeItems(raw)
	if err != nil {
		return dsindex.Record{}, "", err
	}

	return dsindex.Record{
		Fingerprint: fp,
		Segment:     parts[2],
		Offset:      offset,
		Size:        size,
		USN:         usn,
		Reftime:     reftime.Interval(unixTime(begin), unixTime(end)),
		Items:       items,
	}, kind, nil
}

func unixTime(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func encodeItems(items []wxtype.Item) []byte {
	var buf []byte
	for _, it := range items {
		buf = append(buf, wxtype.Encode(it)...)
	}
	return buf
}

func decodeItems(buf []byte) ([]wxtype.Item, error) {
	var out []wxtype.Item
	for len(buf) > 0 {
		it, n, err := wxtype.DecodePrefixed(buf)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
		buf = buf[n:]
	}
	return out, nil
}
