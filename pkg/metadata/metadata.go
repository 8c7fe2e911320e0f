// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metadata implements the per-segment "<segment>.metadata"
// sidecar (spec.md §3 "Segment"): a concatenation of one
// wire.SigMetadata envelope per message, each envelope's payload being
// that message's items in canonical type-code order. The file exists
// purely as an on-disk witness of what the index claims a segment
// holds; maintenance treats its absence (or the absence of its sibling
// ".summary") as a sign the segment needs rescanning (spec.md P5), and
// rebuilds it whenever it repacks, reindexes, or rescans a segment.
package metadata

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/metserv/wxstore/pkg/wire"
	"github.com/metserv/wxstore/pkg/wxtype"
)

// Record is one message's metadata items, in the order they'll be
// concatenated inside a single envelope.
type Record struct {
	Items []wxtype.Item
}

// Encode renders r's items to their canonical concatenated form,
// ordered by type-code so the bytes are stable regardless of the
// order Items was built in.
func (r Record) Encode() []byte {
	items := append([]wxtype.Item(nil), r.Items...)
	sort.Slice(items, func(i, j int) bool { return wxtype.Compare(items[i], items[j]) < 0 })

	var out []byte
	for _, it := range items {
		out = append(out, wxtype.Encode(it)...)
	}
	return out
}

// Decode parses the concatenated item stream produced by Encode.
func Decode(payload []byte) (Record, error) {
	var items []wxtype.Item
	for len(payload) > 0 {
		it, n, err := wxtype.DecodePrefixed(payload)
		if err != nil {
			return Record{}, fmt.Errorf("metadata: decode item: %w", err)
		}
		items = append(items, it)
		payload = payload[n:]
	}
	return Record{Items: items}, nil
}

// WriteFile replaces path's contents with one envelope per record, in
// order — the form maintenance uses after a repack or rescan, since
// the file must mirror the segment's current record order exactly.
func WriteFile(path string, records []Record) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("metadata: create %s: %w", tmp, err)
	}
	bw := bufio.NewWriter(f)
	for _, rec := range records {
		if err := wire.WriteEnvelope(bw, wire.SigMetadata, wire.CurrentVersion, rec.Encode()); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("metadata: write %s: %w", tmp, err)
		}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// AppendFile appends a single record's envelope to path, creating it
// if necessary — the form a writer's acquire uses, since it indexes
// one message at a time and a full rewrite would be wasteful.
func AppendFile(path string, rec Record) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("metadata: open %s: %w", path, err)
	}
	defer f.Close()
	if err := wire.WriteEnvelope(f, wire.SigMetadata, wire.CurrentVersion, rec.Encode()); err != nil {
		return fmt.Errorf("metadata: append %s: %w", path, err)
	}
	return nil
}

// ReadFile reads every record concatenated in path, in file order.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(bufio.NewReader(f))
}

// Read decodes every envelope available from r until EOF.
func Read(r io.ByteReader) ([]Record, error) {
	var out []Record
	for {
		env, err := wire.ReadEnvelope(r)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("metadata: read envelope: %w", err)
		}
		if env.Sig != wire.SigMetadata {
			return nil, fmt.Errorf("metadata: unexpected envelope signature %q", env.Sig)
		}
		rec, err := Decode(env.Payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}
